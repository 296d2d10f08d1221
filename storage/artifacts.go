package storage

import (
	"context"
	"sync"

	"videoStitch/config"
	"videoStitch/core"
	"videoStitch/logging"
)

// ArtifactRegistry persists MergedArtifact records keyed by fingerprint. It
// backs the at-most-one-build-per-fingerprint guarantee across restarts when a
// durable backend is configured; the memory backend loses state on restart by
// design.
type ArtifactRegistry interface {
	Save(ctx context.Context, a core.MergedArtifact) error
	Get(ctx context.Context, fingerprint string) (core.MergedArtifact, error)
	ByFilename(ctx context.Context, name string) (core.MergedArtifact, error)
	// DeleteForVideo drops every artifact whose segments reference the video.
	DeleteForVideo(ctx context.Context, videoID string) error
}

// NewArtifactRegistry builds the backend selected in cfg.Registry, falling
// back to memory when an external backend cannot be reached.
func NewArtifactRegistry(ctx context.Context, cfg *config.Config) ArtifactRegistry {
	logger := logging.Component("registry")
	switch cfg.Registry {
	case "sqlite":
		r, err := newSQLiteRegistry(cfg.SQLitePath)
		if err != nil {
			logger.Warn().Err(err).Msg("sqlite registry unavailable, falling back to memory registry")
			return NewMemoryRegistry()
		}
		return r
	case "redis":
		r, err := newRedisRegistry(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn().Err(err).Msg("redis registry unavailable, falling back to memory registry")
			return NewMemoryRegistry()
		}
		return r
	default:
		return NewMemoryRegistry()
	}
}

// MemoryRegistry is the reference registry backend.
type MemoryRegistry struct {
	mu      sync.RWMutex
	byPrint map[string]core.MergedArtifact
	byName  map[string]string // file name -> fingerprint
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byPrint: make(map[string]core.MergedArtifact),
		byName:  make(map[string]string),
	}
}

func (r *MemoryRegistry) Save(ctx context.Context, a core.MergedArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPrint[a.Fingerprint] = a
	r.byName[a.FileName] = a.Fingerprint
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, fingerprint string) (core.MergedArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byPrint[fingerprint]
	if !ok {
		return core.MergedArtifact{}, core.ErrNotFound
	}
	return a, nil
}

func (r *MemoryRegistry) ByFilename(ctx context.Context, name string) (core.MergedArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fp, ok := r.byName[name]
	if !ok {
		return core.MergedArtifact{}, core.ErrNotFound
	}
	return r.byPrint[fp], nil
}

func (r *MemoryRegistry) DeleteForVideo(ctx context.Context, videoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for fp, a := range r.byPrint {
		if artifactReferencesVideo(a, videoID) {
			delete(r.byPrint, fp)
			delete(r.byName, a.FileName)
		}
	}
	return nil
}

func artifactReferencesVideo(a core.MergedArtifact, videoID string) bool {
	for _, id := range a.SourceVideoIDs {
		if id == videoID {
			return true
		}
	}
	return false
}
