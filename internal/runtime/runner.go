package runtime

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/models"
)

// Engine is the part of research.Engine the runner needs.
type Engine interface {
	RunWithID(ctx context.Context, runID, query string) (research.State, error)
}

// Archive persists run records.
type Archive interface {
	SaveRun(ctx context.Context, run models.Run) error
}

// Indexer makes finished briefs searchable.
type Indexer interface {
	Add(run models.Run) error
}

// Runner executes research runs and records them. Archive and Index are
// optional; their failures are logged and never fail the run.
type Runner struct {
	Engine  Engine
	Archive Archive
	Index   Indexer
	Logger  logrus.FieldLogger
}

// Run executes one research run. trigger records who asked for it.
func (r *Runner) Run(ctx context.Context, query, trigger string) (research.State, models.Run, error) {
	return r.RunWithID(ctx, uuid.NewString(), query, trigger)
}

func (r *Runner) RunWithID(ctx context.Context, runID, query, trigger string) (research.State, models.Run, error) {
	if strings.TrimSpace(query) == "" {
		return research.State{Query: query}, models.Run{}, research.ErrEmptyQuery
	}
	log := r.logger().WithFields(logrus.Fields{"run_id": runID, "trigger": trigger})
	run := models.Run{
		ID:        runID,
		Query:     query,
		Status:    models.RunStatusRunning,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	r.save(ctx, log, run)

	state, err := r.Engine.RunWithID(ctx, runID, query)
	run = RunFromState(run, state, err)
	r.save(ctx, log, run)
	if err == nil && r.Index != nil {
		if ierr := r.Index.Add(run); ierr != nil {
			log.WithError(ierr).Warn("index brief")
		}
	}
	return state, run, err
}

func (r *Runner) save(ctx context.Context, log logrus.FieldLogger, run models.Run) {
	if r.Archive == nil {
		return
	}
	// the final record must land even when the run was cancelled
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.Archive.SaveRun(sctx, run); err != nil {
		log.WithError(err).Warn("archive run")
	}
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

// RunFromState folds a finished workflow state into an archive record.
func RunFromState(base models.Run, s research.State, runErr error) models.Run {
	out := base
	out.Plan = s.Plan
	out.Questions = s.Questions
	out.Facts = s.Facts
	out.Citations = helpers.DedupeCitations(s.Citations)
	out.FinalSummary = s.FinalSummary
	out.Revisions = s.Revisions
	out.Unapproved = s.Unapproved
	out.FinishedAt = time.Now().UTC()
	if !s.FinishedAt.IsZero() {
		out.FinishedAt = s.FinishedAt
	}
	if runErr != nil {
		out.Status = models.RunStatusFailed
		out.Error = runErr.Error()
		return out
	}
	out.Status = models.RunStatusCompleted
	return out
}
