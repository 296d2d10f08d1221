package storage

import (
	"context"
	"math"
	"sort"
	"sync"

	"videoStitch/core"
)

// MemoryVectorStore is the brute-force cosine reference backend. It is the
// default runtime store and the correctness oracle for the external backends:
// identical corpora and queries must produce identical rankings within
// floating-point tolerance.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	scenes  map[string]core.Scene // scene_id -> scene
	catalog *VideoCatalog
}

func NewMemoryVectorStore(catalog *VideoCatalog) *MemoryVectorStore {
	return &MemoryVectorStore{scenes: make(map[string]core.Scene), catalog: catalog}
}

func (s *MemoryVectorStore) Upsert(ctx context.Context, scenes []core.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range scenes {
		s.scenes[sc.SceneID] = sc
	}
	return nil
}

func (s *MemoryVectorStore) Search(ctx context.Context, queryVec []float32, k int, minScore float64) ([]core.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]core.SearchResult, 0, len(s.scenes))
	for _, sc := range s.scenes {
		score := CosineSimilarity(queryVec, sc.Embedding)
		if score < minScore {
			continue
		}
		title := sc.VideoID
		if s.catalog != nil {
			if v, err := s.catalog.Get(sc.VideoID); err == nil {
				title = v.Title
			}
		}
		results = append(results, core.SearchResult{Scene: sc, VideoTitle: title, Score: score})
	}

	// Deterministic ranking: score desc, then (video_id, scene_number) asc.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Scene.VideoID != results[j].Scene.VideoID {
			return results[i].Scene.VideoID < results[j].Scene.VideoID
		}
		return results[i].Scene.SceneNumber < results[j].Scene.SceneNumber
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryVectorStore) DeleteVideo(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sc := range s.scenes {
		if sc.VideoID == videoID {
			delete(s.scenes, id)
		}
	}
	return nil
}

// CosineSimilarity computes the cosine of the angle between two vectors,
// returning 0 for mismatched or zero-length inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
