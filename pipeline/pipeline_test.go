package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"videoStitch/config"
	"videoStitch/core"
	"videoStitch/processors"
	"videoStitch/storage"
)

// fakeAnalyzer marks the first hour of any video as on-topic. gate, when set,
// blocks analysis until the channel is closed.
type fakeAnalyzer struct {
	err  error
	gate chan struct{}
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, source string, iv processors.Interval) (SceneContent, error) {
	if a.gate != nil {
		<-a.gate
	}
	if a.err != nil {
		return SceneContent{}, a.err
	}
	if iv.Start < 60 {
		return SceneContent{
			Transcript:    "relevant discussion of neural network training",
			VisualContext: "slide with a loss curve",
			Embedding:     []float32{1, 0, 0},
		}, nil
	}
	return SceneContent{
		Transcript: "closing remarks and credits",
		Embedding:  []float32{0, 1, 0},
	}, nil
}

// fakeEmbedder maps queries onto the same toy vector space as the analyzer.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "credits") {
		return []float32{0, 1, 0}, nil
	}
	if strings.Contains(text, "unmatched") {
		return []float32{0, 0, 1}, nil
	}
	return []float32{1, 0, 0}, nil
}

// selectingOracle keeps candidates whose transcript mentions the word
// "relevant" and bounds the window to their union.
type selectingOracle struct {
	err   error
	calls int
}

func (o *selectingOracle) Judge(ctx context.Context, query string, candidates []core.SearchResult) (*processors.Judgment, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	j := &processors.Judgment{OverallStart: math.Inf(1), OverallEnd: math.Inf(-1), Reasoning: "transcript match"}
	for _, c := range candidates {
		if !strings.Contains(c.Scene.Transcript, "relevant") {
			continue
		}
		j.SelectedSceneIDs = append(j.SelectedSceneIDs, c.Scene.SceneID)
		j.OverallStart = math.Min(j.OverallStart, c.Scene.StartTime)
		j.OverallEnd = math.Max(j.OverallEnd, c.Scene.EndTime)
	}
	if len(j.SelectedSceneIDs) == 0 {
		return &processors.Judgment{OverallStart: 0, OverallEnd: 1, Reasoning: "nothing on topic"}, nil
	}
	return j, nil
}

// stubClipper writes placeholder files so assembly can rename and stat them.
type stubClipper struct {
	mu    sync.Mutex
	cards int
}

func (c *stubClipper) Trim(ctx context.Context, src string, start, end float64, out string) error {
	return os.WriteFile(out, []byte("clip"), 0o644)
}

func (c *stubClipper) TitleCard(ctx context.Context, title string, seconds float64, out string) error {
	c.mu.Lock()
	c.cards++
	c.mu.Unlock()
	return os.WriteFile(out, []byte("card"), 0o644)
}

func (c *stubClipper) Concat(ctx context.Context, inputs []string, out string) error {
	return os.WriteFile(out, []byte("merged"), 0o644)
}

func (c *stubClipper) Duration(ctx context.Context, path string) (float64, error) { return 0, nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:              "memory",
		Registry:           "memory",
		OutputDir:          t.TempDir(),
		SceneHashThreshold: 6,
		MinSceneDuration:   3.0,
		TimelinePadding:    10.0,
		MergeGap:           5.0,
		SeparatorSeconds:   3.0,
	}
}

type testEnv struct {
	pipeline *Pipeline
	analyzer *fakeAnalyzer
	oracle   *selectingOracle
	clipper  *stubClipper
	registry storage.ArtifactRegistry
	index    storage.VectorStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	catalog := storage.NewVideoCatalog()
	index := storage.NewMemoryVectorStore(catalog)
	registry := storage.NewMemoryRegistry()
	analyzer := &fakeAnalyzer{}
	oracle := &selectingOracle{}
	clipper := &stubClipper{}
	return &testEnv{
		pipeline: New(cfg, catalog, index, registry, fakeEmbedder{}, analyzer, oracle, clipper),
		analyzer: analyzer,
		oracle:   oracle,
		clipper:  clipper,
		registry: registry,
		index:    index,
	}
}

// samplesWithCuts produces one hash sample per second with a hash flip at
// every cut timestamp.
func samplesWithCuts(duration float64, cuts ...float64) []processors.HashSample {
	samples := make([]processors.HashSample, 0, int(duration))
	hash := uint64(0)
	next := 0
	for ts := 0.0; ts < duration; ts++ {
		if next < len(cuts) && ts >= cuts[next] {
			hash = ^hash
			next++
		}
		samples = append(samples, processors.HashSample{Timestamp: ts, Hash: hash})
	}
	return samples
}

func ingestLecture(t *testing.T, env *testEnv, videoID, title string) {
	t.Helper()
	count, err := env.pipeline.IngestVideo(context.Background(), IngestRequest{
		VideoID:    videoID,
		Title:      title,
		SourcePath: "/media/" + videoID + ".mp4",
		Duration:   90,
		Samples:    samplesWithCuts(90, 30, 60),
	})
	if err != nil {
		t.Fatalf("ingest %s: %v", videoID, err)
	}
	if count != 3 {
		t.Fatalf("ingest %s: %d scenes, want 3", videoID, count)
	}
}

func TestIngestVideo(t *testing.T) {
	env := newTestEnv(t)
	ingestLecture(t, env, "video-a", "Deep Learning 101")

	v, err := env.pipeline.Video("video-a")
	if err != nil {
		t.Fatal(err)
	}
	if v.Status != core.StatusReady {
		t.Errorf("status %q, want ready", v.Status)
	}
	if v.SceneCount != 3 {
		t.Errorf("scene count %d, want 3", v.SceneCount)
	}

	results, err := env.index.Search(context.Background(), []float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("indexed %d on-topic scenes, want 2", len(results))
	}
}

func TestReingestReplacesSceneSet(t *testing.T) {
	env := newTestEnv(t)
	ingestLecture(t, env, "video-a", "Deep Learning 101")
	ingestLecture(t, env, "video-a", "Deep Learning 101 (reprocessed)")

	results, err := env.index.Search(context.Background(), []float32{1, 0, 0}, 100, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("index holds %d scenes after re-ingest, want 3", len(results))
	}
	seen := map[int]bool{}
	for _, r := range results {
		if seen[r.Scene.SceneNumber] {
			t.Errorf("duplicate scene number %d", r.Scene.SceneNumber)
		}
		seen[r.Scene.SceneNumber] = true
		if r.VideoTitle != "Deep Learning 101 (reprocessed)" {
			t.Errorf("stale record survived re-ingest: %q", r.VideoTitle)
		}
	}

	v, err := env.pipeline.Video("video-a")
	if err != nil {
		t.Fatal(err)
	}
	if v.SceneCount != 3 || v.Status != core.StatusReady {
		t.Errorf("catalog after re-ingest: %d scenes, status %q", v.SceneCount, v.Status)
	}
}

func TestIngestRejectsConcurrentSameVideo(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := env.pipeline.IngestVideo(context.Background(), IngestRequest{
			VideoID:    "video-a",
			Title:      "First",
			SourcePath: "/media/a.mp4",
			Duration:   90,
			Samples:    samplesWithCuts(90, 30, 60),
		})
		done <- err
	}()

	// Wait for the first ingestion to hold the lease.
	for {
		if v, err := env.pipeline.Video("video-a"); err == nil && v.Status == core.StatusProcessing {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := env.pipeline.IngestVideo(context.Background(), IngestRequest{
		VideoID:    "video-a",
		Title:      "Second",
		SourcePath: "/media/a.mp4",
		Duration:   90,
	})
	if !errors.Is(err, core.ErrAlreadyProcessing) {
		t.Errorf("got %v, want ErrAlreadyProcessing", err)
	}

	close(env.analyzer.gate)
	if err := <-done; err != nil {
		t.Fatalf("first ingestion failed: %v", err)
	}
}

func TestIngestFailureMarksVideoFailed(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.err = fmt.Errorf("transcription provider down")

	_, err := env.pipeline.IngestVideo(context.Background(), IngestRequest{
		VideoID:    "video-a",
		Title:      "Broken",
		SourcePath: "/media/a.mp4",
		Duration:   90,
		Samples:    samplesWithCuts(90, 30, 60),
	})
	var ie *core.IngestionError
	if !errors.As(err, &ie) {
		t.Fatalf("got %v, want IngestionError", err)
	}
	if ie.VideoID != "video-a" {
		t.Errorf("error names video %q", ie.VideoID)
	}

	v, err := env.pipeline.Video("video-a")
	if err != nil {
		t.Fatal(err)
	}
	if v.Status != core.StatusFailed || v.ErrorMessage == "" {
		t.Errorf("status %q / %q, want failed with message", v.Status, v.ErrorMessage)
	}

	results, err := env.index.Search(context.Background(), []float32{1, 0, 0}, 10, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("failed video left %d scenes in the index", len(results))
	}
}

func TestSearchAndAssembleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ingestLecture(t, env, "video-a", "Deep Learning 101")
	ingestLecture(t, env, "video-b", "Optimization Basics")

	resp, err := env.pipeline.SearchAndAssemble(context.Background(), "neural network training", 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 4 {
		t.Errorf("got %d candidates, want 2 on-topic scenes per video", len(resp.Results))
	}
	if len(resp.VideoTimelines) != 2 {
		t.Fatalf("got %d timelines, want 2", len(resp.VideoTimelines))
	}
	for _, tl := range resp.VideoTimelines {
		if tl.Fallback {
			t.Errorf("unexpected fallback for %s", tl.VideoID)
		}
		if len(tl.RelevantScenes) != 2 {
			t.Errorf("%s kept %d scenes, want 2", tl.VideoID, len(tl.RelevantScenes))
		}
	}

	artifact := resp.MergedVideo
	if artifact == nil {
		t.Fatal("no merged artifact")
	}
	// Two adjacent on-topic scenes per video union into one segment each.
	if artifact.SegmentsCount != 2 {
		t.Errorf("segments count %d, want 2", artifact.SegmentsCount)
	}
	if len(artifact.SourceVideoIDs) != 2 {
		t.Errorf("source videos %v, want both", artifact.SourceVideoIDs)
	}
	// 60s per video plus one 3s separator.
	if artifact.TotalDuration != 123 {
		t.Errorf("total duration %.1f, want 123", artifact.TotalDuration)
	}
	if env.clipper.cards != 1 {
		t.Errorf("title cards %d, want 1 between the two videos", env.clipper.cards)
	}
	if _, err := os.Stat(artifact.FilePath); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}

func TestSearchNoMatches(t *testing.T) {
	env := newTestEnv(t)
	ingestLecture(t, env, "video-a", "Deep Learning 101")

	resp, err := env.pipeline.SearchAndAssemble(context.Background(), "unmatched topic", 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 || len(resp.VideoTimelines) != 0 || resp.MergedVideo != nil {
		t.Errorf("expected empty response, got %+v", resp)
	}
}

func TestSearchOracleFailureStillAssembles(t *testing.T) {
	env := newTestEnv(t)
	ingestLecture(t, env, "video-a", "Deep Learning 101")
	env.oracle.err = fmt.Errorf("oracle unavailable")

	resp, err := env.pipeline.SearchAndAssemble(context.Background(), "neural network training", 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.VideoTimelines) != 1 || !resp.VideoTimelines[0].Fallback {
		t.Fatalf("expected one fallback timeline, got %+v", resp.VideoTimelines)
	}
	if resp.MergedVideo == nil {
		t.Error("fallback timelines should still assemble")
	}
}

func TestArtifactLookup(t *testing.T) {
	env := newTestEnv(t)
	ingestLecture(t, env, "video-a", "Deep Learning 101")

	resp, err := env.pipeline.SearchAndAssemble(context.Background(), "neural network training", 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	byPrint, err := env.pipeline.Artifact(ctx, resp.MergedVideo.Fingerprint)
	if err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	byName, err := env.pipeline.ArtifactByFilename(ctx, resp.MergedVideo.FileName)
	if err != nil {
		t.Fatalf("ArtifactByFilename: %v", err)
	}
	if byPrint.Fingerprint != byName.Fingerprint {
		t.Error("lookups disagree")
	}
	if _, err := env.pipeline.Artifact(ctx, "bogus"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestRepeatQueryReusesArtifact(t *testing.T) {
	env := newTestEnv(t)
	ingestLecture(t, env, "video-a", "Deep Learning 101")

	first, err := env.pipeline.SearchAndAssemble(context.Background(), "neural network training", 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.pipeline.SearchAndAssemble(context.Background(), "neural network training", 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if first.MergedVideo.Fingerprint != second.MergedVideo.Fingerprint {
		t.Error("identical queries produced different artifacts")
	}
	if first.MergedVideo.FilePath != second.MergedVideo.FilePath {
		t.Error("identical queries produced different files")
	}
}

func TestDeleteVideo(t *testing.T) {
	env := newTestEnv(t)
	ingestLecture(t, env, "video-a", "Deep Learning 101")
	ingestLecture(t, env, "video-b", "Optimization Basics")

	resp, err := env.pipeline.SearchAndAssemble(context.Background(), "neural network training", 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	fp := resp.MergedVideo.Fingerprint
	ctx := context.Background()

	if err := env.pipeline.DeleteVideo(ctx, "video-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.pipeline.Video("video-a"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("catalog still has the video: %v", err)
	}

	results, err := env.index.Search(ctx, []float32{1, 0, 0}, 10, -1)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Scene.VideoID == "video-a" {
			t.Errorf("deleted video still indexed: %v", r.Scene)
		}
	}

	// The cached artifact referenced the deleted video and must be gone.
	if _, err := env.pipeline.Artifact(ctx, fp); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("artifact survived source deletion: %v", err)
	}

	if err := env.pipeline.DeleteVideo(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
