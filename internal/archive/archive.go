// Package archive keeps a durable SQLite record of finished jobs. It is
// write-mostly: the live registry never reads it back.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raysh454/auditai/internal/jobs"
	"github.com/raysh454/auditai/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

var ErrNotTerminal = errors.New("archive: job is not terminal")

const DefaultListLimit = 50

type Archive struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the database at path.
func Open(path string, logger logging.Logger) (*Archive, error) {
	if path == "" {
		return nil, errors.New("archive: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: apply schema: %w", err)
	}

	l := logger.With(logging.Field{Key: "component", Value: "archive"})
	l.Info("archive opened", logging.Field{Key: "path", Value: path})
	return &Archive{db: db, logger: l}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Record stores a terminal job. Recording the same job twice replaces it.
func (a *Archive) Record(ctx context.Context, info jobs.Info) error {
	if !info.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, info.ID, info.Status)
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("archive: encode job %s: %w", info.ID, err)
	}
	ended := info.CreatedAt
	if info.EndedAt != nil {
		ended = *info.EndedAt
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, status, target, scan_id, provider, error_kind, created_at, ended_at, info_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error_kind = excluded.error_kind,
			ended_at = excluded.ended_at,
			info_json = excluded.info_json`,
		info.ID, string(info.Kind), string(info.Status), info.Target, info.ScanID, info.Provider,
		string(info.ErrorKind), info.CreatedAt.UnixNano(), ended.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("archive: insert job %s: %w", info.ID, err)
	}
	return nil
}

// ListRecent returns up to limit finished jobs of kind, most recently ended
// first. An empty kind lists every kind. Results decode as raw JSON.
func (a *Archive) ListRecent(ctx context.Context, kind jobs.Kind, limit int) ([]jobs.Info, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if kind == "" {
		rows, err = a.db.QueryContext(ctx,
			`SELECT info_json FROM jobs ORDER BY ended_at DESC, id LIMIT ?`, limit)
	} else {
		rows, err = a.db.QueryContext(ctx,
			`SELECT info_json FROM jobs WHERE kind = ? ORDER BY ended_at DESC, id LIMIT ?`, string(kind), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: query jobs: %w", err)
	}
	defer rows.Close()

	var out []jobs.Info
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("archive: scan row: %w", err)
		}
		info, err := decodeInfo([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate rows: %w", err)
	}
	return out, nil
}

func decodeInfo(data []byte) (jobs.Info, error) {
	var (
		info jobs.Info
		aux  struct {
			Result json.RawMessage `json:"result"`
		}
	)
	if err := json.Unmarshal(data, &info); err != nil {
		return jobs.Info{}, fmt.Errorf("archive: decode job: %w", err)
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return jobs.Info{}, fmt.Errorf("archive: decode job result: %w", err)
	}
	info.Result = nil
	if len(aux.Result) > 0 {
		info.Result = aux.Result
	}
	return info, nil
}

// Hook returns a registry terminal hook recording every finished job.
// Failures are logged, never propagated.
func (a *Archive) Hook(timeout time.Duration) func(jobs.Info) {
	return func(info jobs.Info) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.Record(ctx, info); err != nil {
			a.logger.Error("archiving job", logging.Field{Key: "job_id", Value: info.ID}, logging.Err(err))
		}
	}
}

func (a *Archive) Close() error {
	return a.db.Close()
}
