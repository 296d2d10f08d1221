package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config carries every tunable of the pipeline. Values load from config.json
// and are overridden by environment variables when present.
type Config struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	EmbeddingModel string `json:"embedding_model"`
	ChatModel      string `json:"chat_model"`

	// Store selects the embedding-index backend: memory, pgvector or milvus.
	Store       string `json:"store"`
	PostgresURL string `json:"postgres_url"`
	MilvusAddr  string `json:"milvus_addr"`

	// Registry selects the artifact-cache backend: memory, sqlite or redis.
	Registry   string `json:"registry"`
	SQLitePath string `json:"sqlite_path"`
	RedisAddr  string `json:"redis_addr"`

	OutputDir string `json:"output_dir"`

	// Scene boundary policy.
	SceneHashThreshold int     `json:"scene_hash_threshold"`
	MinSceneDuration   float64 `json:"min_scene_duration_seconds"`

	// Timeline synthesis and merge.
	TimelinePadding float64 `json:"timeline_padding_seconds"`
	MergeGap        float64 `json:"merge_gap_seconds"`

	// Assembly.
	SeparatorSeconds float64 `json:"separator_seconds"`

	// External call budgets, in seconds.
	OracleTimeoutSec int `json:"oracle_timeout_seconds"`
	TrimTimeoutSec   int `json:"trim_timeout_seconds"`
}

var (
	globalConfig *Config
	loadOnce     sync.Once
)

// Load reads config.json when present, applies environment overrides and
// defaults, and caches the result for the process lifetime.
func Load() (*Config, error) {
	loadOnce.Do(func() {
		cfg := &Config{}
		if data, err := os.ReadFile("config.json"); err == nil {
			_ = json.Unmarshal(data, cfg)
		}
		applyEnv(cfg)
		applyDefaults(cfg)
		globalConfig = cfg
	})
	return globalConfig, nil
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.APIKey, "API_KEY")
	setStr(&cfg.BaseURL, "BASE_URL")
	setStr(&cfg.EmbeddingModel, "EMBEDDING_MODEL")
	setStr(&cfg.ChatModel, "CHAT_MODEL")
	setStr(&cfg.Store, "STORE")
	setStr(&cfg.PostgresURL, "POSTGRES_URL")
	setStr(&cfg.MilvusAddr, "MILVUS_ADDR")
	setStr(&cfg.Registry, "REGISTRY")
	setStr(&cfg.SQLitePath, "SQLITE_PATH")
	setStr(&cfg.RedisAddr, "REDIS_ADDR")
	setStr(&cfg.OutputDir, "OUTPUT_DIR")

	if v := os.Getenv("SCENE_HASH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SceneHashThreshold = n
		}
	}
	if v := os.Getenv("MIN_SCENE_DURATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinSceneDuration = f
		}
	}
	if v := os.Getenv("TIMELINE_PADDING"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TimelinePadding = f
		}
	}
	if v := os.Getenv("MERGE_GAP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MergeGap = f
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o"
	}
	if cfg.Store == "" {
		cfg.Store = "memory"
	}
	if cfg.MilvusAddr == "" {
		cfg.MilvusAddr = "localhost:19530"
	}
	if cfg.Registry == "" {
		cfg.Registry = "memory"
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "data/artifacts.sqlite"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "data/merged_videos"
	}
	if cfg.SceneHashThreshold == 0 {
		cfg.SceneHashThreshold = 6
	}
	if cfg.MinSceneDuration == 0 {
		cfg.MinSceneDuration = 3.0
	}
	if cfg.TimelinePadding == 0 {
		cfg.TimelinePadding = 10.0
	}
	if cfg.MergeGap == 0 {
		cfg.MergeGap = 5.0
	}
	if cfg.SeparatorSeconds == 0 {
		cfg.SeparatorSeconds = 3.0
	}
	if cfg.OracleTimeoutSec == 0 {
		cfg.OracleTimeoutSec = 30
	}
	if cfg.TrimTimeoutSec == 0 {
		cfg.TrimTimeoutSec = 120
	}
}

// OracleTimeout returns the judgment-call budget as a duration.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.OracleTimeoutSec) * time.Second
}

// TrimTimeout returns the per-clip media budget as a duration.
func (c *Config) TrimTimeout() time.Duration {
	return time.Duration(c.TrimTimeoutSec) * time.Second
}

// HasValidAPI reports whether the OpenAI-backed components can be used.
func (c *Config) HasValidAPI() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.BaseURL) != ""
}

// Validate checks the fields required by the configured backends.
func (c *Config) Validate() error {
	var problems []string
	switch c.Store {
	case "memory":
	case "pgvector":
		if strings.TrimSpace(c.PostgresURL) == "" {
			problems = append(problems, "postgres_url is required for the pgvector store")
		}
	case "milvus":
		if strings.TrimSpace(c.MilvusAddr) == "" {
			problems = append(problems, "milvus_addr is required for the milvus store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store %q", c.Store))
	}
	switch c.Registry {
	case "memory", "sqlite":
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			problems = append(problems, "redis_addr is required for the redis registry")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown registry %q", c.Registry))
	}
	if c.MinSceneDuration < 0 || c.MergeGap < 0 || c.TimelinePadding < 0 || c.SeparatorSeconds < 0 {
		problems = append(problems, "durations must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
