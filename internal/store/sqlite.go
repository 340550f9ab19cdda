package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/heatsense-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	fingerprint     TEXT NOT NULL,
	status          TEXT NOT NULL,
	cell_count      INTEGER NOT NULL DEFAULT 0,
	hotspot_count   INTEGER NOT NULL DEFAULT 0,
	rec_count       INTEGER NOT NULL DEFAULT 0,
	timings         TEXT,
	stage_errors    TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run model.Run) (*model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	timingsJSON, err := json.Marshal(run.Timings)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal timings")
	}
	errorsJSON, err := json.Marshal(run.StageErrors)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal stage errors")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, fingerprint, status, cell_count, hotspot_count, rec_count, timings, stage_errors, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Fingerprint, string(run.Status),
		run.CellCount, run.HotspotCount, run.RecommendationCount,
		string(timingsJSON), string(errorsJSON), run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fingerprint, status, cell_count, hotspot_count, rec_count, timings, stage_errors, created_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, fingerprint, status, cell_count, hotspot_count, rec_count, timings, stage_errors, created_at
	          FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Fingerprint != "" {
		query += ` AND fingerprint = ?`
		args = append(args, filter.Fingerprint)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, eris.New("sqlite: retention days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE created_at < ?`, cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old runs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var timingsJSON, errorsJSON sql.NullString

	err := row.Scan(&r.ID, &r.Fingerprint, &status,
		&r.CellCount, &r.HotspotCount, &r.RecommendationCount,
		&timingsJSON, &errorsJSON, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)

	if timingsJSON.Valid && timingsJSON.String != "" && timingsJSON.String != "null" {
		if err := json.Unmarshal([]byte(timingsJSON.String), &r.Timings); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal timings")
		}
	}
	if errorsJSON.Valid && errorsJSON.String != "" && errorsJSON.String != "null" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &r.StageErrors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stage errors")
		}
	}
	return &r, nil
}
