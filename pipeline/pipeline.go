package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"videoStitch/assembler"
	"videoStitch/config"
	"videoStitch/core"
	"videoStitch/logging"
	"videoStitch/processors"
	"videoStitch/storage"
)

// SceneContent is the analysis produced for one scene interval by the external
// providers: transcript, visual description and the precomputed embedding.
type SceneContent struct {
	Transcript    string
	VisualContext string
	Embedding     []float32
}

// SceneAnalyzer produces scene content for an interval of a source video.
// Transcription, captioning and embedding computation live behind this
// boundary.
type SceneAnalyzer interface {
	Analyze(ctx context.Context, sourcePath string, iv processors.Interval) (SceneContent, error)
}

// IngestRequest registers one video and its frame hash samples for indexing.
type IngestRequest struct {
	VideoID    string // generated when empty
	Title      string
	SourcePath string
	Duration   float64
	Samples    []processors.HashSample
}

// SearchResponse is the full result of one query: the raw ranked candidates,
// the per-video judged timelines and, when assembly produced output, the
// merged artifact.
type SearchResponse struct {
	Query          string               `json:"query"`
	Results        []core.SearchResult  `json:"results"`
	VideoTimelines []core.VideoTimeline `json:"video_timelines"`
	MergedVideo    *core.MergedArtifact `json:"merged_video,omitempty"`
}

// Pipeline wires the stages together: ingest (boundary detection, analysis,
// indexing) and query (embed, search, synthesize, merge, assemble).
type Pipeline struct {
	cfg      *config.Config
	catalog  *storage.VideoCatalog
	index    storage.VectorStore
	registry storage.ArtifactRegistry
	embedder storage.Embedder
	analyzer SceneAnalyzer

	synth  *processors.Synthesizer
	merger *processors.Merger
	asm    *assembler.Assembler

	leases *core.KeyedLease
	logger zerolog.Logger
}

func New(cfg *config.Config, catalog *storage.VideoCatalog, index storage.VectorStore,
	registry storage.ArtifactRegistry, embedder storage.Embedder, analyzer SceneAnalyzer,
	oracle processors.Oracle, clipper assembler.Clipper) *Pipeline {

	duration := func(videoID string) (float64, bool) {
		v, err := catalog.Get(videoID)
		if err != nil {
			return 0, false
		}
		return v.Duration, true
	}

	return &Pipeline{
		cfg:      cfg,
		catalog:  catalog,
		index:    index,
		registry: registry,
		embedder: embedder,
		analyzer: analyzer,
		synth: &processors.Synthesizer{
			Oracle:        oracle,
			Padding:       cfg.TimelinePadding,
			Timeout:       cfg.OracleTimeout(),
			VideoDuration: duration,
		},
		merger: &processors.Merger{
			GapTolerance:  cfg.MergeGap,
			VideoDuration: duration,
		},
		asm: assembler.New(clipper, registry, catalog.Get, cfg.OutputDir,
			cfg.SeparatorSeconds, cfg.TrimTimeout()),
		leases: core.NewKeyedLease(),
		logger: logging.Component("pipeline"),
	}
}

// IngestVideo detects scene boundaries, analyzes each scene and indexes the
// result as one batch. The index never exposes a partially ingested video:
// scenes are upserted only after every interval analyzed successfully, and any
// failure clears the video's index state and marks it failed. Re-ingesting a
// video replaces its previous scene set. Concurrent ingestion of the same
// video id is rejected.
func (p *Pipeline) IngestVideo(ctx context.Context, req IngestRequest) (int, error) {
	videoID := req.VideoID
	if videoID == "" {
		videoID = core.NewID()
	}

	if existing, err := p.catalog.Get(videoID); err == nil && existing.Status == core.StatusProcessing {
		return 0, core.ErrAlreadyProcessing
	}
	if !p.leases.TryAcquire(videoID) {
		return 0, core.ErrAlreadyProcessing
	}
	defer p.leases.Release(videoID)

	p.catalog.Put(core.Video{
		VideoID:    videoID,
		Title:      req.Title,
		SourcePath: req.SourcePath,
		Duration:   req.Duration,
		Status:     core.StatusProcessing,
		UploadedAt: time.Now().UTC(),
	})

	policy := processors.BoundaryPolicy{
		Threshold:        p.cfg.SceneHashThreshold,
		MinSceneDuration: p.cfg.MinSceneDuration,
	}
	intervals := policy.DetectScenes(req.Samples, req.Duration)
	if len(intervals) == 0 {
		return 0, p.failIngestion(ctx, videoID, "boundary detection", fmt.Errorf("no scenes detected for duration %.2fs", req.Duration))
	}
	p.logger.Info().Str("video_id", videoID).Int("scenes", len(intervals)).Msg("scene boundaries detected")

	scenes := make([]core.Scene, 0, len(intervals))
	for i, iv := range intervals {
		content, err := p.analyzer.Analyze(ctx, req.SourcePath, iv)
		if err != nil {
			return 0, p.failIngestion(ctx, videoID, fmt.Sprintf("scene %d analysis", i+1), err)
		}
		scenes = append(scenes, core.Scene{
			SceneID:         core.NewID(),
			VideoID:         videoID,
			SceneNumber:     i + 1,
			StartTime:       iv.Start,
			EndTime:         iv.End,
			Transcript:      content.Transcript,
			VisualContext:   content.VisualContext,
			CombinedContext: combineContext(content),
			Embedding:       content.Embedding,
		})
	}

	// Re-ingestion mints fresh scene ids, so the prior scene set must go
	// before the new one is published or both would rank in searches.
	if err := p.index.DeleteVideo(ctx, videoID); err != nil {
		return 0, p.failIngestion(ctx, videoID, "clearing prior index state", err)
	}
	if err := p.index.Upsert(ctx, scenes); err != nil {
		return 0, p.failIngestion(ctx, videoID, "indexing", err)
	}
	p.catalog.SetSceneCount(videoID, len(scenes))
	p.catalog.SetStatus(videoID, core.StatusReady, "")
	p.logger.Info().Str("video_id", videoID).Int("scenes", len(scenes)).Msg("video ingested")
	return len(scenes), nil
}

func (p *Pipeline) failIngestion(ctx context.Context, videoID, step string, err error) error {
	// Best effort: the batch upsert means the index normally holds nothing yet.
	if derr := p.index.DeleteVideo(ctx, videoID); derr != nil {
		p.logger.Warn().Err(derr).Str("video_id", videoID).Msg("failed to clear index state after ingestion failure")
	}
	ie := &core.IngestionError{VideoID: videoID, Step: step, Err: err}
	p.catalog.SetStatus(videoID, core.StatusFailed, ie.Error())
	p.logger.Error().Err(err).Str("video_id", videoID).Str("step", step).Msg("ingestion failed")
	return ie
}

// SearchAndAssemble runs the full query path. A query matching nothing returns
// an empty response with no error; assembly failures are returned alongside
// the search results and timelines that were produced before the failure.
func (p *Pipeline) SearchAndAssemble(ctx context.Context, query string, limit int, minScore float64) (*SearchResponse, error) {
	resp := &SearchResponse{Query: query}

	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := p.index.Search(ctx, vec, limit, minScore)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	resp.Results = results
	if len(results) == 0 {
		return resp, nil
	}

	resp.VideoTimelines = p.synth.Synthesize(ctx, query, results)
	segments, _ := p.merger.Merge(resp.VideoTimelines)
	if len(segments) == 0 {
		return resp, nil
	}

	artifact, err := p.asm.Assemble(ctx, query, segments, assemblyReasoning(resp.VideoTimelines))
	if err != nil {
		if errors.Is(err, core.ErrNoAssemblableContent) {
			p.logger.Warn().Str("query", query).Msg("no segment could be extracted, returning timelines only")
			return resp, err
		}
		return resp, fmt.Errorf("assemble merged video: %w", err)
	}
	resp.MergedVideo = artifact
	return resp, nil
}

// Artifact looks up a previously assembled output by fingerprint.
func (p *Pipeline) Artifact(ctx context.Context, fingerprint string) (core.MergedArtifact, error) {
	return p.registry.Get(ctx, fingerprint)
}

// ArtifactByFilename resolves a download request to its artifact record.
func (p *Pipeline) ArtifactByFilename(ctx context.Context, name string) (core.MergedArtifact, error) {
	return p.registry.ByFilename(ctx, name)
}

// Video returns the catalog record for one video.
func (p *Pipeline) Video(videoID string) (core.Video, error) {
	return p.catalog.Get(videoID)
}

// ListVideos returns every known video ordered by id.
func (p *Pipeline) ListVideos() []core.Video {
	return p.catalog.List()
}

// DeleteVideo removes the video from the catalog, drops its scenes from the
// index and invalidates cached artifacts that used it.
func (p *Pipeline) DeleteVideo(ctx context.Context, videoID string) error {
	if _, err := p.catalog.Get(videoID); err != nil {
		return err
	}
	if err := p.index.DeleteVideo(ctx, videoID); err != nil {
		return fmt.Errorf("delete video scenes: %w", err)
	}
	if err := p.registry.DeleteForVideo(ctx, videoID); err != nil {
		return fmt.Errorf("invalidate artifacts: %w", err)
	}
	p.catalog.Delete(videoID)
	p.logger.Info().Str("video_id", videoID).Msg("video deleted")
	return nil
}

func combineContext(c SceneContent) string {
	parts := make([]string, 0, 2)
	if t := strings.TrimSpace(c.Transcript); t != "" {
		parts = append(parts, t)
	}
	if v := strings.TrimSpace(c.VisualContext); v != "" {
		parts = append(parts, "Visual: "+v)
	}
	return strings.Join(parts, "\n")
}

func assemblyReasoning(timelines []core.VideoTimeline) string {
	parts := make([]string, 0, len(timelines))
	for _, tl := range timelines {
		parts = append(parts, fmt.Sprintf("%s: %s", tl.VideoTitle, tl.RelevanceReasoning))
	}
	return strings.Join(parts, "\n")
}
