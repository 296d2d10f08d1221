package storage

import (
	"context"
	"math"
	"testing"

	"videoStitch/core"
)

func newTestStore(t *testing.T) (*MemoryVectorStore, *VideoCatalog) {
	t.Helper()
	catalog := NewVideoCatalog()
	catalog.Put(core.Video{VideoID: "video-a", Title: "Alpha", Status: core.StatusReady})
	catalog.Put(core.Video{VideoID: "video-b", Title: "Beta", Status: core.StatusReady})
	return NewMemoryVectorStore(catalog), catalog
}

func scene(videoID string, n int, embedding []float32) core.Scene {
	return core.Scene{
		SceneID:     core.NewID(),
		VideoID:     videoID,
		SceneNumber: n,
		StartTime:   float64(n-1) * 10,
		EndTime:     float64(n) * 10,
		Embedding:   embedding,
	}
}

func TestMemoryStoreRanking(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, []core.Scene{
		scene("video-a", 1, []float32{1, 0, 0}),
		scene("video-a", 2, []float32{0.5, 0.5, 0}),
		scene("video-b", 1, []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, 10, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("result %d score %.3f above predecessor %.3f", i, results[i].Score, results[i-1].Score)
		}
	}
	if results[0].Scene.VideoID != "video-a" || results[0].Scene.SceneNumber != 1 {
		t.Errorf("top result %s/%d, want video-a scene 1", results[0].Scene.VideoID, results[0].Scene.SceneNumber)
	}
}

func TestMemoryStoreTieBreaks(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Identical embeddings produce identical scores; ordering must fall back
	// to (video id, scene number) ascending.
	vec := []float32{1, 1, 0}
	err := store.Upsert(ctx, []core.Scene{
		scene("video-b", 1, vec),
		scene("video-a", 2, vec),
		scene("video-a", 1, vec),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := store.Search(ctx, vec, 10, -1)
	if err != nil {
		t.Fatal(err)
	}
	got := make([][2]interface{}, 0, len(results))
	for _, r := range results {
		got = append(got, [2]interface{}{r.Scene.VideoID, r.Scene.SceneNumber})
	}
	want := [][2]interface{}{{"video-a", 1}, {"video-a", 2}, {"video-b", 1}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestMemoryStoreMinScoreFilter(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, []core.Scene{
		scene("video-a", 1, []float32{1, 0, 0}),
		scene("video-a", 2, []float32{0, 1, 0}), // orthogonal, score 0
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results above 0.5, want 1", len(results))
	}
}

func TestMemoryStoreLimit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	scenes := make([]core.Scene, 0, 10)
	for i := 1; i <= 10; i++ {
		scenes = append(scenes, scene("video-a", i, []float32{1, float32(i) * 0.01, 0}))
	}
	if err := store.Upsert(ctx, scenes); err != nil {
		t.Fatal(err)
	}
	results, err := store.Search(ctx, []float32{1, 0, 0}, 3, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want limit 3", len(results))
	}
}

func TestMemoryStoreUpsertIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sc := scene("video-a", 1, []float32{1, 0, 0})
	if err := store.Upsert(ctx, []core.Scene{sc}); err != nil {
		t.Fatal(err)
	}
	sc.Transcript = "updated"
	if err := store.Upsert(ctx, []core.Scene{sc}); err != nil {
		t.Fatal(err)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, 10, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results after re-upsert, want 1", len(results))
	}
	if results[0].Scene.Transcript != "updated" {
		t.Errorf("transcript %q, want updated record", results[0].Scene.Transcript)
	}
}

func TestMemoryStoreDeleteVideo(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, []core.Scene{
		scene("video-a", 1, []float32{1, 0, 0}),
		scene("video-b", 1, []float32{1, 0, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteVideo(ctx, "video-a"); err != nil {
		t.Fatal(err)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, 10, -1)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Scene.VideoID == "video-a" {
			t.Errorf("deleted video still in index: %v", r.Scene)
		}
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1 surviving scene", len(results))
	}
}

func TestMemoryStoreResolvesTitles(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, []core.Scene{scene("video-a", 1, []float32{1, 0, 0})}); err != nil {
		t.Fatal(err)
	}
	results, err := store.Search(ctx, []float32{1, 0, 0}, 1, -1)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].VideoTitle != "Alpha" {
		t.Errorf("title %q, want Alpha", results[0].VideoTitle)
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{1, 0}, []float32{}, 0},
		{[]float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, c := range cases {
		if got := CosineSimilarity(c.a, c.b); math.Abs(got-c.want) > 1e-6 {
			t.Errorf("cosine(%v, %v) = %.4f, want %.4f", c.a, c.b, got, c.want)
		}
	}
}

func TestCatalogLifecycle(t *testing.T) {
	catalog := NewVideoCatalog()
	if _, err := catalog.Get("missing"); err != core.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	catalog.Put(core.Video{VideoID: "v1", Title: "One", Status: core.StatusProcessing})
	if err := catalog.SetStatus("v1", core.StatusFailed, "analysis failed"); err != nil {
		t.Fatal(err)
	}
	v, err := catalog.Get("v1")
	if err != nil {
		t.Fatal(err)
	}
	if v.Status != core.StatusFailed || v.ErrorMessage != "analysis failed" {
		t.Errorf("got status %q / %q", v.Status, v.ErrorMessage)
	}

	catalog.Put(core.Video{VideoID: "v0", Title: "Zero"})
	list := catalog.List()
	if len(list) != 2 || list[0].VideoID != "v0" {
		t.Errorf("list %v, want sorted by id", list)
	}

	catalog.Delete("v1")
	if _, err := catalog.Get("v1"); err != core.ErrNotFound {
		t.Errorf("got %v after delete, want ErrNotFound", err)
	}
}
