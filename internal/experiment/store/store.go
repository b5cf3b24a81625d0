// Package store persists experiment run summaries and per-item results in
// PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/experiment"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/postgres"
)

// Schema creates the tables the store writes to.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS experiment_runs (
	    run_id      TEXT PRIMARY KEY,
	    query_set   TEXT NOT NULL,
	    metrics     JSONB NOT NULL,
	    pipelines   JSONB NOT NULL,
	    aborted     BOOLEAN NOT NULL DEFAULT FALSE,
	    started_at  TIMESTAMPTZ NOT NULL,
	    finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS experiment_items (
	    run_id      TEXT NOT NULL,
	    pipeline    TEXT NOT NULL,
	    qid         TEXT NOT NULL,
	    fingerprint TEXT NOT NULL,
	    query       TEXT NOT NULL,
	    retrieved   INTEGER NOT NULL,
	    top_docnos  JSONB NOT NULL,
	    metric_values JSONB NOT NULL,
	    error       TEXT,
	    cache_hit   BOOLEAN NOT NULL,
	    latency_ms  BIGINT NOT NULL,
	    recorded_at TIMESTAMPTZ NOT NULL,
	    PRIMARY KEY (run_id, pipeline, qid)
	)`,
	`CREATE INDEX IF NOT EXISTS experiment_runs_started_idx ON experiment_runs (started_at DESC)`,
}

// Store persists experiment events.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a Store on db.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("experiment-store"),
	}
}

// Migrate creates the schema if needed.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, Schema...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveItem upserts one item result.
func (s *Store) SaveItem(ctx context.Context, e experiment.ItemEvent) error {
	return saveItem(ctx, s.db.DB, e)
}

func saveItem(ctx context.Context, ex execer, e experiment.ItemEvent) error {
	values, err := json.Marshal(e.Values)
	if err != nil {
		return fmt.Errorf("marshaling metric values: %w", err)
	}
	docnos, err := json.Marshal(e.TopDocnos)
	if err != nil {
		return fmt.Errorf("marshaling docnos: %w", err)
	}
	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO experiment_items
		    (run_id, pipeline, qid, fingerprint, query, retrieved, top_docnos, metric_values, error, cache_hit, latency_ms, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (run_id, pipeline, qid) DO UPDATE SET
		    query = EXCLUDED.query,
		    retrieved = EXCLUDED.retrieved,
		    top_docnos = EXCLUDED.top_docnos,
		    metric_values = EXCLUDED.metric_values,
		    error = EXCLUDED.error,
		    cache_hit = EXCLUDED.cache_hit,
		    latency_ms = EXCLUDED.latency_ms,
		    recorded_at = EXCLUDED.recorded_at`,
		e.RunID, e.Pipeline, e.QID, e.Fingerprint, e.Query, e.Retrieved,
		docnos, values, errText, e.CacheHit, e.LatencyMs, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("saving item %s/%s: %w", e.Pipeline, e.QID, err)
	}
	return nil
}

// SaveRun upserts a run summary.
func (s *Store) SaveRun(ctx context.Context, e experiment.RunEvent) error {
	if err := saveRun(ctx, s.db.DB, e); err != nil {
		return err
	}
	s.logger.Info("run saved", "run_id", e.RunID, "pipelines", len(e.Pipelines), "aborted", e.Aborted)
	return nil
}

func saveRun(ctx context.Context, ex execer, e experiment.RunEvent) error {
	metrics, err := json.Marshal(e.Metrics)
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}
	pipelines, err := json.Marshal(e.Pipelines)
	if err != nil {
		return fmt.Errorf("marshaling pipelines: %w", err)
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO experiment_runs (run_id, query_set, metrics, pipelines, aborted, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (run_id) DO UPDATE SET
		    pipelines = EXCLUDED.pipelines,
		    aborted = EXCLUDED.aborted,
		    finished_at = EXCLUDED.finished_at`,
		e.RunID, e.QuerySet, metrics, pipelines, e.Aborted, e.StartedAt, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", e.RunID, err)
	}
	return nil
}

// SaveReport stores every item of r and its summary in one transaction.
func (s *Store) SaveReport(ctx context.Context, r *experiment.Report) error {
	items, run := r.Events()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, e := range items {
			if err := saveItem(ctx, tx, e); err != nil {
				return err
			}
		}
		return saveRun(ctx, tx, run)
	})
	if err != nil {
		return err
	}
	s.logger.Info("report saved", "run_id", run.RunID, "items", len(items), "aborted", run.Aborted)
	return nil
}

// RunRecord is one stored run.
type RunRecord struct {
	RunID      string
	QuerySet   string
	Metrics    []string
	Pipelines  []experiment.PipelineSummary
	Aborted    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Run loads one run summary.
func (s *Store) Run(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT run_id, query_set, metrics, pipelines, aborted, started_at, finished_at
		 FROM experiment_runs WHERE run_id = $1`,
		runID,
	)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "run %s", runID)
	}
	return rec, err
}

// ListRuns returns the last limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT run_id, query_set, metrics, pipelines, aborted, started_at, finished_at
		 FROM experiment_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			s.logger.Warn("skipping corrupt run row", "error", err)
			continue
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		rec                RunRecord
		metrics, pipelines []byte
	)
	if err := row.Scan(&rec.RunID, &rec.QuerySet, &metrics, &pipelines, &rec.Aborted, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metrics, &rec.Metrics); err != nil {
		return nil, fmt.Errorf("decoding metrics of run %s: %w", rec.RunID, err)
	}
	if err := json.Unmarshal(pipelines, &rec.Pipelines); err != nil {
		return nil, fmt.Errorf("decoding pipelines of run %s: %w", rec.RunID, err)
	}
	return &rec, nil
}
