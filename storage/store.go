package storage

import (
	"context"

	"videoStitch/config"
	"videoStitch/core"
	"videoStitch/logging"
)

// VectorStore abstracts the embedding-index backend. Upsert is idempotent on
// scene id; Search returns up to k results sorted by descending cosine
// similarity with ties broken by ascending (video id, scene number);
// DeleteVideo removes every scene of a video.
type VectorStore interface {
	Upsert(ctx context.Context, scenes []core.Scene) error
	Search(ctx context.Context, queryVec []float32, k int, minScore float64) ([]core.SearchResult, error)
	DeleteVideo(ctx context.Context, videoID string) error
}

// NewVectorStore builds the backend selected in cfg.Store, falling back to the
// in-memory reference implementation when an external backend cannot be
// reached.
func NewVectorStore(ctx context.Context, cfg *config.Config, catalog *VideoCatalog) VectorStore {
	logger := logging.Component("storage")
	switch cfg.Store {
	case "pgvector":
		s, err := newPgVectorStore(ctx, cfg, catalog)
		if err != nil {
			logger.Warn().Err(err).Msg("pgvector store unavailable, falling back to memory store")
			return NewMemoryVectorStore(catalog)
		}
		return s
	case "milvus":
		s, err := newMilvusVectorStore(ctx, cfg, catalog)
		if err != nil {
			logger.Warn().Err(err).Msg("milvus store unavailable, falling back to memory store")
			return NewMemoryVectorStore(catalog)
		}
		return s
	default:
		return NewMemoryVectorStore(catalog)
	}
}
