package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"videoStitch/config"
	"videoStitch/core"
)

// PgVectorStore keeps scene vectors in Postgres with the pgvector extension.
// Cosine distance via the <=> operator; ranking ties resolved in SQL the same
// way the memory store resolves them.
type PgVectorStore struct {
	mu      sync.Mutex // pgx.Conn is not safe for concurrent use
	conn    *pgx.Conn
	catalog *VideoCatalog
	dim     int
}

func newPgVectorStore(ctx context.Context, cfg *config.Config, catalog *VideoCatalog) (*PgVectorStore, error) {
	conn, err := pgx.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PgVectorStore{conn: conn, catalog: catalog, dim: 1536}
	if err := s.ensureSchema(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) ensureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS video_scenes (
			scene_id VARCHAR(255) PRIMARY KEY,
			video_id VARCHAR(255) NOT NULL,
			scene_number INT NOT NULL,
			start_time FLOAT NOT NULL,
			end_time FLOAT NOT NULL,
			transcript TEXT NOT NULL,
			visual_context TEXT,
			combined_context TEXT NOT NULL,
			embedding vector(%d)
		);
	`, s.dim)
	if _, err := s.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create video_scenes table: %w", err)
	}
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_video_scenes_video_id ON video_scenes(video_id);",
		`CREATE INDEX IF NOT EXISTS idx_video_scenes_embedding
			ON video_scenes USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);`,
	}
	for _, q := range indexes {
		if _, err := s.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, scenes []core.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range scenes {
		vec := pgvector.NewVector(sc.Embedding)
		_, err := s.conn.Exec(ctx, `
			INSERT INTO video_scenes
				(scene_id, video_id, scene_number, start_time, end_time, transcript, visual_context, combined_context, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (scene_id) DO UPDATE SET
				video_id = EXCLUDED.video_id,
				scene_number = EXCLUDED.scene_number,
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				transcript = EXCLUDED.transcript,
				visual_context = EXCLUDED.visual_context,
				combined_context = EXCLUDED.combined_context,
				embedding = EXCLUDED.embedding
		`, sc.SceneID, sc.VideoID, sc.SceneNumber, sc.StartTime, sc.EndTime,
			sc.Transcript, sc.VisualContext, sc.CombinedContext, vec)
		if err != nil {
			return fmt.Errorf("upsert scene %s: %w", sc.SceneID, err)
		}
	}
	return nil
}

func (s *PgVectorStore) Search(ctx context.Context, queryVec []float32, k int, minScore float64) ([]core.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k <= 0 {
		k = 10
	}
	vec := pgvector.NewVector(queryVec)
	rows, err := s.conn.Query(ctx, `
		SELECT scene_id, video_id, scene_number, start_time, end_time,
			   transcript, COALESCE(visual_context, ''), combined_context,
			   1 - (embedding <=> $1) AS similarity
		FROM video_scenes
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1, video_id, scene_number
		LIMIT $3
	`, vec, minScore, k)
	if err != nil {
		return nil, fmt.Errorf("search scenes: %w", err)
	}
	defer rows.Close()

	var results []core.SearchResult
	for rows.Next() {
		var sc core.Scene
		var score float64
		if err := rows.Scan(&sc.SceneID, &sc.VideoID, &sc.SceneNumber, &sc.StartTime, &sc.EndTime,
			&sc.Transcript, &sc.VisualContext, &sc.CombinedContext, &score); err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		title := sc.VideoID
		if s.catalog != nil {
			if v, err := s.catalog.Get(sc.VideoID); err == nil {
				title = v.Title
			}
		}
		results = append(results, core.SearchResult{Scene: sc, VideoTitle: title, Score: score})
	}
	return results, rows.Err()
}

func (s *PgVectorStore) DeleteVideo(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Exec(ctx, "DELETE FROM video_scenes WHERE video_id = $1", videoID); err != nil {
		return fmt.Errorf("delete scenes for video %s: %w", videoID, err)
	}
	return nil
}

// Close releases the database connection.
func (s *PgVectorStore) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
