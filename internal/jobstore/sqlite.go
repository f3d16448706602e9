package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_records (
    job_key    TEXT PRIMARY KEY,
    payload    TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_records_expires_at ON job_records(expires_at);
`

// sqliteBackend is the durable primary persistence target.
type sqliteBackend struct {
	db   *sql.DB
	path string
}

func openSQLite(path string) (*sqliteBackend, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &sqliteBackend{db: db, path: path}, nil
}

func (b *sqliteBackend) save(ctx context.Context, key string, payload []byte, expiresAt time.Time) error {
	_, err := b.db.ExecContext(
		ctx,
		`INSERT INTO job_records (job_key, payload, updated_at, expires_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(job_key) DO UPDATE SET
             payload = excluded.payload,
             updated_at = excluded.updated_at,
             expires_at = excluded.expires_at`,
		key,
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
		expiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

func (b *sqliteBackend) get(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	row := b.db.QueryRowContext(ctx, `SELECT payload, expires_at FROM job_records WHERE job_key = ?`, key)

	var payload, expiresRaw string
	if err := row.Scan(&payload, &expiresRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get record: %w", err)
	}

	if expired(expiresRaw, now) {
		_, _ = b.db.ExecContext(ctx, `DELETE FROM job_records WHERE job_key = ?`, key)
		return nil, false, nil
	}
	return []byte(payload), true, nil
}

func (b *sqliteBackend) remove(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM job_records WHERE job_key = ?`, key); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (b *sqliteBackend) loadAll(ctx context.Context, prefix string, now time.Time) ([][]byte, error) {
	// rowid order preserves first insertion even across upserts.
	rows, err := b.db.QueryContext(
		ctx,
		`SELECT payload, expires_at FROM job_records WHERE job_key LIKE ? || '%' ORDER BY rowid`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var payload, expiresRaw string
		if err := rows.Scan(&payload, &expiresRaw); err != nil {
			return nil, err
		}
		if expired(expiresRaw, now) {
			continue
		}
		payloads = append(payloads, []byte(payload))
	}
	return payloads, rows.Err()
}

func (b *sqliteBackend) purgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := b.db.ExecContext(
		ctx,
		`DELETE FROM job_records WHERE expires_at < ?`,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (b *sqliteBackend) close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func expired(raw string, now time.Time) bool {
	expiresAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false
	}
	return now.After(expiresAt)
}
