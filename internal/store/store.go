package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mohammad-safakhou/researcher/models"
)

// ErrRunNotFound is returned by GetRun for unknown ids.
var ErrRunNotFound = models.ErrRunNotFound

// Store archives research runs in Postgres.
type Store struct {
	DB *sql.DB
}

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

const upsertRun = `
INSERT INTO research_runs (id, query, status, plan, questions, facts, citations, final_summary, revisions, unapproved, error, triggered_by, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  plan = EXCLUDED.plan,
  questions = EXCLUDED.questions,
  facts = EXCLUDED.facts,
  citations = EXCLUDED.citations,
  final_summary = EXCLUDED.final_summary,
  revisions = EXCLUDED.revisions,
  unapproved = EXCLUDED.unapproved,
  error = EXCLUDED.error,
  finished_at = EXCLUDED.finished_at;
`

// SaveRun inserts the run or updates its mutable fields.
func (s *Store) SaveRun(ctx context.Context, run models.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id must be provided")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	var finished *time.Time
	if !run.FinishedAt.IsZero() {
		finished = &run.FinishedAt
	}
	_, err := s.DB.ExecContext(ctx, upsertRun,
		run.ID, run.Query, string(run.Status), run.Plan,
		pq.StringArray(run.Questions), pq.StringArray(run.Facts), pq.StringArray(run.Citations),
		run.FinalSummary, run.Revisions, run.Unapproved, run.Error, run.Trigger,
		run.StartedAt, finished)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

const selectRun = `
SELECT id, query, status, plan, questions, facts, citations, final_summary, revisions, unapproved, error, triggered_by, started_at, finished_at
FROM research_runs`

// GetRun fetches a single run.
func (s *Store) GetRun(ctx context.Context, id string) (models.Run, error) {
	row := s.DB.QueryRowContext(ctx, selectRun+"\nWHERE id=$1", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Run{}, ErrRunNotFound
	}
	if err != nil {
		return models.Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.DB.QueryContext(ctx, selectRun+"\nORDER BY started_at DESC\nLIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (models.Run, error) {
	var (
		r         models.Run
		status    string
		questions pq.StringArray
		facts     pq.StringArray
		citations pq.StringArray
		finished  sql.NullTime
	)
	err := sc.Scan(&r.ID, &r.Query, &status, &r.Plan, &questions, &facts, &citations,
		&r.FinalSummary, &r.Revisions, &r.Unapproved, &r.Error, &r.Trigger, &r.StartedAt, &finished)
	if err != nil {
		return models.Run{}, err
	}
	r.Status = models.RunStatus(status)
	r.Questions = []string(questions)
	r.Facts = []string(facts)
	r.Citations = []string(citations)
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return r, nil
}
