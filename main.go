package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"videoStitch/assembler"
	"videoStitch/config"
	"videoStitch/logging"
	"videoStitch/pipeline"
	"videoStitch/processors"
	"videoStitch/storage"
)

func main() {
	var (
		verbose  = flag.Bool("verbose", false, "enable debug logging")
		ingest   = flag.String("ingest", "", "path to an ingest manifest (json)")
		query    = flag.String("query", "", "search query to answer with a merged video")
		limit    = flag.Int("limit", 10, "maximum candidate scenes per query")
		minScore = flag.Float64("min-score", 0.3, "minimum similarity score for candidates")
		remove   = flag.String("delete", "", "video id to remove")
		list     = flag.Bool("list", false, "list known videos")
	)
	flag.Parse()

	logging.Init(*verbose)
	logger := logging.Component("main")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if !cfg.HasValidAPI() {
		logger.Fatal().Msg("api_key and base_url must be configured")
	}

	ctx := context.Background()
	catalog := storage.NewVideoCatalog()
	index := storage.NewVectorStore(ctx, cfg, catalog)
	registry := storage.NewArtifactRegistry(ctx, cfg)

	clipper, err := assembler.NewFFmpegClipper()
	if err != nil {
		logger.Fatal().Err(err).Msg("media tooling unavailable")
	}

	var analyzer pipeline.SceneAnalyzer = noAnalyzer{}
	var manifest *ingestManifest
	if *ingest != "" {
		manifest, err = loadManifest(*ingest)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *ingest).Msg("failed to load manifest")
		}
		analyzer = manifest
	}

	p := pipeline.New(cfg, catalog, index, registry,
		storage.NewOpenAIEmbedder(cfg), analyzer, processors.NewOpenAIOracle(cfg), clipper)

	switch {
	case manifest != nil:
		for _, v := range manifest.Videos {
			count, err := p.IngestVideo(ctx, pipeline.IngestRequest{
				VideoID:    v.VideoID,
				Title:      v.Title,
				SourcePath: v.SourcePath,
				Duration:   v.Duration,
				Samples:    v.hashSamples(),
			})
			if err != nil {
				logger.Error().Err(err).Str("video_id", v.VideoID).Msg("ingestion failed")
				continue
			}
			logger.Info().Str("video_id", v.VideoID).Int("scenes", count).Msg("video indexed")
		}
		if *query == "" {
			return
		}
		fallthrough

	case *query != "":
		resp, err := p.SearchAndAssemble(ctx, *query, *limit, *minScore)
		if err != nil {
			logger.Fatal().Err(err).Msg("query failed")
		}
		printJSON(resp)

	case *remove != "":
		if err := p.DeleteVideo(ctx, *remove); err != nil {
			logger.Fatal().Err(err).Str("video_id", *remove).Msg("delete failed")
		}
		logger.Info().Str("video_id", *remove).Msg("video deleted")

	case *list:
		printJSON(p.ListVideos())

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ingestManifest carries precomputed analysis from the external providers:
// frame hash samples for boundary detection and per-scene transcripts,
// visual context and embeddings.
type ingestManifest struct {
	Videos []manifestVideo `json:"videos"`
}

type manifestVideo struct {
	VideoID    string           `json:"video_id"`
	Title      string           `json:"title"`
	SourcePath string           `json:"source_path"`
	Duration   float64          `json:"duration"`
	Samples    []manifestSample `json:"samples"`
	Scenes     []manifestScene  `json:"scenes"`
}

type manifestSample struct {
	Timestamp float64 `json:"timestamp"`
	Hash      uint64  `json:"hash"`
}

type manifestScene struct {
	Start         float64   `json:"start_time"`
	End           float64   `json:"end_time"`
	Transcript    string    `json:"transcript"`
	VisualContext string    `json:"visual_context"`
	Embedding     []float32 `json:"embedding"`
}

func loadManifest(path string) (*ingestManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m ingestManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func (v manifestVideo) hashSamples() []processors.HashSample {
	samples := make([]processors.HashSample, 0, len(v.Samples))
	for _, s := range v.Samples {
		samples = append(samples, processors.HashSample{Timestamp: s.Timestamp, Hash: s.Hash})
	}
	return samples
}

// Analyze resolves an interval to the manifest scene with the largest overlap.
func (m *ingestManifest) Analyze(ctx context.Context, source string, iv processors.Interval) (pipeline.SceneContent, error) {
	var best *manifestScene
	var bestOverlap float64
	for _, v := range m.Videos {
		if v.SourcePath != source {
			continue
		}
		for i := range v.Scenes {
			sc := &v.Scenes[i]
			overlap := min(sc.End, iv.End) - max(sc.Start, iv.Start)
			if overlap > bestOverlap {
				best = sc
				bestOverlap = overlap
			}
		}
	}
	if best == nil {
		return pipeline.SceneContent{}, fmt.Errorf("no manifest analysis covers %s [%.2f, %.2f]", source, iv.Start, iv.End)
	}
	return pipeline.SceneContent{
		Transcript:    best.Transcript,
		VisualContext: best.VisualContext,
		Embedding:     best.Embedding,
	}, nil
}

// noAnalyzer rejects ingestion when no manifest was supplied.
type noAnalyzer struct{}

func (noAnalyzer) Analyze(ctx context.Context, source string, iv processors.Interval) (pipeline.SceneContent, error) {
	return pipeline.SceneContent{}, fmt.Errorf("no ingest manifest loaded")
}
