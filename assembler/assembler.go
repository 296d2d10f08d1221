package assembler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"videoStitch/core"
	"videoStitch/logging"
	"videoStitch/storage"
)

// Resolver maps a video id to its catalog record (source path and title).
type Resolver func(videoID string) (core.Video, error)

// Assembler turns an ordered cut list into one output video. Builds are
// idempotent per fingerprint: a cached artifact is returned without touching
// ffmpeg, and concurrent identical requests share a single in-flight build.
type Assembler struct {
	clipper   Clipper
	registry  storage.ArtifactRegistry
	resolve   Resolver
	outputDir string

	separatorSeconds float64
	trimTimeout      time.Duration

	logger zerolog.Logger

	mu       sync.Mutex
	inflight map[string]*build
}

type build struct {
	done     chan struct{}
	artifact *core.MergedArtifact
	err      error
}

func New(clipper Clipper, registry storage.ArtifactRegistry, resolve Resolver, outputDir string, separatorSeconds float64, trimTimeout time.Duration) *Assembler {
	return &Assembler{
		clipper:          clipper,
		registry:         registry,
		resolve:          resolve,
		outputDir:        outputDir,
		separatorSeconds: separatorSeconds,
		trimTimeout:      trimTimeout,
		logger:           logging.Component("assembler"),
		inflight:         make(map[string]*build),
	}
}

// Assemble returns the artifact for the given cut list, building it at most
// once per fingerprint. A caller cancelling its context detaches from a
// shared build without tearing it down; the build completes for the other
// waiters and for cache population.
func (a *Assembler) Assemble(ctx context.Context, query string, segments []core.MergedSegment, reasoning string) (*core.MergedArtifact, error) {
	if len(segments) == 0 {
		return nil, core.ErrNoAssemblableContent
	}
	fp := Fingerprint(query, segments, a.separatorSeconds)

	if cached, err := a.registry.Get(ctx, fp); err == nil {
		if _, statErr := os.Stat(cached.FilePath); statErr == nil {
			a.logger.Debug().Str("fingerprint", fp).Msg("artifact cache hit")
			return &cached, nil
		}
		// Registry entry outlived its file; rebuild below.
	}

	a.mu.Lock()
	b, running := a.inflight[fp]
	if !running {
		b = &build{done: make(chan struct{})}
		a.inflight[fp] = b
		go a.runBuild(context.WithoutCancel(ctx), fp, query, segments, reasoning, b)
	}
	a.mu.Unlock()

	select {
	case <-b.done:
		if b.err != nil {
			return nil, b.err
		}
		return b.artifact, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Assembler) runBuild(ctx context.Context, fp, query string, segments []core.MergedSegment, reasoning string, b *build) {
	defer func() {
		a.mu.Lock()
		delete(a.inflight, fp)
		a.mu.Unlock()
		close(b.done)
	}()
	b.artifact, b.err = a.build(ctx, fp, query, segments, reasoning)
}

func (a *Assembler) build(ctx context.Context, fp, query string, segments []core.MergedSegment, reasoning string) (*core.MergedArtifact, error) {
	if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	workDir, err := os.MkdirTemp("", "stitch-build-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	var (
		clips       []string
		kept        []core.MergedSegment
		videoIDs    []string
		failures    []string
		duration    float64
		lastVideoID string
	)

	for i, seg := range segments {
		video, err := a.resolve(seg.VideoID)
		if err != nil {
			failures = append(failures, fmt.Sprintf("segment %d (video %s): source not found", i+1, seg.VideoID))
			continue
		}

		clipPath := filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", i))
		trimCtx, cancel := a.withTrimTimeout(ctx)
		err = a.clipper.Trim(trimCtx, video.SourcePath, seg.Start, seg.End, clipPath)
		cancel()
		if err != nil {
			a.logger.Warn().Err(err).Str("video_id", seg.VideoID).Msg("segment extraction failed, skipping")
			failures = append(failures, fmt.Sprintf("segment %d (video %s, %.1fs-%.1fs): %v", i+1, seg.VideoID, seg.Start, seg.End, err))
			continue
		}

		// Separator card between segments of different source videos.
		if len(clips) > 0 && seg.VideoID != lastVideoID {
			cardPath := filepath.Join(workDir, fmt.Sprintf("title_%03d.mp4", i))
			cardCtx, cancel := a.withTrimTimeout(ctx)
			cardErr := a.clipper.TitleCard(cardCtx, video.Title, a.separatorSeconds, cardPath)
			cancel()
			if cardErr != nil {
				a.logger.Warn().Err(cardErr).Str("video_id", seg.VideoID).Msg("title card failed, continuing without separator")
			} else {
				clips = append(clips, cardPath)
				duration += a.separatorSeconds
			}
		}

		clips = append(clips, clipPath)
		kept = append(kept, seg)
		duration += seg.Duration()
		if seg.VideoID != lastVideoID {
			videoIDs = append(videoIDs, seg.VideoID)
			lastVideoID = seg.VideoID
		}
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: all %d segments failed to extract", core.ErrNoAssemblableContent, len(segments))
	}

	fileName := fmt.Sprintf("merged_%s_%dsegments_%s.mp4", core.SanitizeName(query, 50), len(kept), fp[:8])
	finalPath := filepath.Join(a.outputDir, fileName)
	partialPath := finalPath + ".partial"

	concatCtx, cancel := a.withTrimTimeout(ctx)
	err = a.clipper.Concat(concatCtx, clips, partialPath)
	cancel()
	if err != nil {
		os.Remove(partialPath)
		return nil, fmt.Errorf("concatenate clips: %w", err)
	}
	// Publish atomically so a partial file is never visible as the artifact.
	if err := os.Rename(partialPath, finalPath); err != nil {
		os.Remove(partialPath)
		return nil, fmt.Errorf("publish artifact: %w", err)
	}

	var sizeMB float64
	if st, err := os.Stat(finalPath); err == nil {
		sizeMB = float64(st.Size()) / (1024 * 1024)
	}

	if len(failures) > 0 {
		reasoning = strings.TrimSpace(reasoning + "\nSkipped segments: " + strings.Join(failures, "; "))
	}

	artifact := &core.MergedArtifact{
		Query:          query,
		Fingerprint:    fp,
		Segments:       kept,
		FilePath:       finalPath,
		FileName:       fileName,
		TotalDuration:  duration,
		FileSizeMB:     sizeMB,
		SegmentsCount:  len(kept),
		SourceVideoIDs: dedupe(videoIDs),
		CreatedAt:      time.Now().UTC(),
		Reasoning:      reasoning,
	}
	if err := a.registry.Save(ctx, *artifact); err != nil {
		return nil, fmt.Errorf("record artifact: %w", err)
	}
	a.logger.Info().Str("fingerprint", fp).Str("file", fileName).Float64("duration", duration).Msg("artifact assembled")
	return artifact, nil
}

func (a *Assembler) withTrimTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.trimTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.trimTimeout)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
