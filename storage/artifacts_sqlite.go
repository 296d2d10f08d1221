package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"videoStitch/core"
)

// SQLiteRegistry is the durable artifact registry. Records are stored as JSON
// with indexed lookup columns, one row per fingerprint.
type SQLiteRegistry struct {
	db *sql.DB
}

func newSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create registry dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	r := &SQLiteRegistry{db: db}
	if err := r.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRegistry) ensureSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			fingerprint TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			record TEXT NOT NULL,
			created_at REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_artifacts_file_name ON artifacts(file_name);
	`)
	if err != nil {
		return fmt.Errorf("create artifacts table: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) Save(ctx context.Context, a core.MergedArtifact) error {
	record, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO artifacts (fingerprint, file_name, record, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			file_name = excluded.file_name,
			record = excluded.record,
			created_at = excluded.created_at
	`, a.Fingerprint, a.FileName, string(record), float64(a.CreatedAt.UnixMilli())/1000)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) Get(ctx context.Context, fingerprint string) (core.MergedArtifact, error) {
	row := r.db.QueryRowContext(ctx, "SELECT record FROM artifacts WHERE fingerprint = ?", fingerprint)
	return scanArtifact(row)
}

func (r *SQLiteRegistry) ByFilename(ctx context.Context, name string) (core.MergedArtifact, error) {
	row := r.db.QueryRowContext(ctx, "SELECT record FROM artifacts WHERE file_name = ? LIMIT 1", name)
	return scanArtifact(row)
}

func (r *SQLiteRegistry) DeleteForVideo(ctx context.Context, videoID string) error {
	rows, err := r.db.QueryContext(ctx, "SELECT fingerprint, record FROM artifacts")
	if err != nil {
		return fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var fp, record string
		if err := rows.Scan(&fp, &record); err != nil {
			return fmt.Errorf("scan artifact: %w", err)
		}
		var a core.MergedArtifact
		if err := json.Unmarshal([]byte(record), &a); err != nil {
			continue
		}
		if artifactReferencesVideo(a, videoID) {
			stale = append(stale, fp)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, fp := range stale {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM artifacts WHERE fingerprint = ?", fp); err != nil {
			return fmt.Errorf("delete artifact %s: %w", fp, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (r *SQLiteRegistry) Close() error { return r.db.Close() }

func scanArtifact(row *sql.Row) (core.MergedArtifact, error) {
	var record string
	if err := row.Scan(&record); err != nil {
		if err == sql.ErrNoRows {
			return core.MergedArtifact{}, core.ErrNotFound
		}
		return core.MergedArtifact{}, fmt.Errorf("scan artifact: %w", err)
	}
	var a core.MergedArtifact
	if err := json.Unmarshal([]byte(record), &a); err != nil {
		return core.MergedArtifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	return a, nil
}
