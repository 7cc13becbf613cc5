package media

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pixelbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteRegistry implements domain.ImageRegistry on SQLite. It lets a restarted
// process find and evict images written before it went down.
type SQLiteRegistry struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteRegistry(dbPath string, logger *slog.Logger) (*SQLiteRegistry, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	reg := &SQLiteRegistry{db: db, logger: logger}
	if err := reg.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return reg, nil
}

func (r *SQLiteRegistry) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generated_images (
		filename    TEXT PRIMARY KEY,
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_generated_images_created ON generated_images(created_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRegistry) Add(ctx context.Context, rec domain.ImageRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO generated_images (filename, created_at) VALUES (?, ?)`,
		rec.Filename, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("register image: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) Remove(ctx context.Context, filename string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM generated_images WHERE filename = ?`, filename)
	if err != nil {
		return fmt.Errorf("unregister image: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) Expired(ctx context.Context, before time.Time) ([]domain.ImageRecord, error) {
	return r.query(ctx,
		`SELECT filename, created_at FROM generated_images
		 WHERE created_at < ? ORDER BY created_at, filename`,
		before.UnixNano(),
	)
}

func (r *SQLiteRegistry) Oldest(ctx context.Context, n int) ([]domain.ImageRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	return r.query(ctx,
		`SELECT filename, created_at FROM generated_images
		 ORDER BY created_at, filename LIMIT ?`,
		n,
	)
}

func (r *SQLiteRegistry) Len(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generated_images`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return count, nil
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

func (r *SQLiteRegistry) query(ctx context.Context, q string, args ...any) ([]domain.ImageRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var out []domain.ImageRecord
	for rows.Next() {
		var (
			rec   domain.ImageRecord
			nanos int64
		)
		if err := rows.Scan(&rec.Filename, &nanos); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		rec.CreatedAt = time.Unix(0, nanos)
		out = append(out, rec)
	}
	return out, rows.Err()
}
