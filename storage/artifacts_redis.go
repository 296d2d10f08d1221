package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"videoStitch/core"
)

const (
	redisArtifactPrefix = "artifact:"
	redisFilenamePrefix = "artifact_file:"
	redisArtifactSet    = "artifacts"
)

// RedisRegistry shares the artifact cache between processes. Records are JSON
// values keyed by fingerprint, with a filename -> fingerprint alias and a set
// of known fingerprints for scans.
type RedisRegistry struct {
	client *redis.Client
}

func newRedisRegistry(ctx context.Context, addr string) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisRegistry{client: client}, nil
}

func (r *RedisRegistry) Save(ctx context.Context, a core.MergedArtifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := r.client.Set(ctx, redisArtifactPrefix+a.Fingerprint, data, 0).Err(); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	if err := r.client.Set(ctx, redisFilenamePrefix+a.FileName, a.Fingerprint, 0).Err(); err != nil {
		return fmt.Errorf("save filename alias: %w", err)
	}
	if err := r.client.SAdd(ctx, redisArtifactSet, a.Fingerprint).Err(); err != nil {
		return fmt.Errorf("track fingerprint: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, fingerprint string) (core.MergedArtifact, error) {
	data, err := r.client.Get(ctx, redisArtifactPrefix+fingerprint).Bytes()
	if err == redis.Nil {
		return core.MergedArtifact{}, core.ErrNotFound
	}
	if err != nil {
		return core.MergedArtifact{}, fmt.Errorf("get artifact: %w", err)
	}
	var a core.MergedArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return core.MergedArtifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	return a, nil
}

func (r *RedisRegistry) ByFilename(ctx context.Context, name string) (core.MergedArtifact, error) {
	fp, err := r.client.Get(ctx, redisFilenamePrefix+name).Result()
	if err == redis.Nil {
		return core.MergedArtifact{}, core.ErrNotFound
	}
	if err != nil {
		return core.MergedArtifact{}, fmt.Errorf("resolve filename: %w", err)
	}
	return r.Get(ctx, fp)
}

func (r *RedisRegistry) DeleteForVideo(ctx context.Context, videoID string) error {
	prints, err := r.client.SMembers(ctx, redisArtifactSet).Result()
	if err != nil {
		return fmt.Errorf("list fingerprints: %w", err)
	}
	for _, fp := range prints {
		a, err := r.Get(ctx, fp)
		if err == core.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if !artifactReferencesVideo(a, videoID) {
			continue
		}
		if err := r.client.Del(ctx, redisArtifactPrefix+fp, redisFilenamePrefix+a.FileName).Err(); err != nil {
			return fmt.Errorf("delete artifact %s: %w", fp, err)
		}
		if err := r.client.SRem(ctx, redisArtifactSet, fp).Err(); err != nil {
			return fmt.Errorf("untrack fingerprint %s: %w", fp, err)
		}
	}
	return nil
}
