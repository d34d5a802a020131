package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/researcher/provider"
)

const tracerName = "github.com/mohammad-safakhou/researcher/internal/research"

// successors is the fixed routing table. Evaluate is the only stage with
// two legal exits.
var successors = map[Agent][]Agent{
	AgentPlanner:    {AgentSearch},
	AgentSearch:     {AgentExtraction},
	AgentExtraction: {AgentWriter},
	AgentWriter:     {AgentEvaluator},
	AgentEvaluator:  {AgentWriter, AgentEnd},
}

type Options struct {
	// QuestionCount is the exact number of search questions to derive.
	QuestionCount int
	// MaxRevisions bounds Evaluate->Draft loops; 0 means unbounded.
	MaxRevisions int
	// FactPreview is how many facts the evaluator sees; defaults to 3.
	FactPreview int
	// StageTimeout bounds each service call a stage makes; 0 means
	// unbounded. Evidence gathering is outside it and relies on the
	// per-provider timeouts, so slow providers degrade to empty evidence
	// instead of failing the stage.
	StageTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.QuestionCount <= 0 {
		o.QuestionCount = 10
	}
	if o.MaxRevisions < 0 {
		o.MaxRevisions = 0
	}
	if o.FactPreview <= 0 {
		o.FactPreview = 3
	}
	return o
}

// Engine runs the plan, search, extract, write, evaluate workflow.
type Engine struct {
	llm             provider.Transformer
	evidence        Gatherer
	opts            Options
	observer        Observer
	questionsSchema *provider.Schema
}

func NewEngine(llm provider.Transformer, evidence Gatherer, opts Options, observer Observer) (*Engine, error) {
	if llm == nil {
		return nil, errors.New("research engine requires a transformer")
	}
	if evidence == nil {
		return nil, errors.New("research engine requires an evidence gatherer")
	}
	opts = opts.withDefaults()
	qs, err := questionsSchema(opts.QuestionCount)
	if err != nil {
		return nil, fmt.Errorf("questions schema: %w", err)
	}
	if observer == nil {
		observer = MultiObserver{}
	}
	return &Engine{llm: llm, evidence: evidence, opts: opts, observer: observer, questionsSchema: qs}, nil
}

// Run executes a research run under a fresh run id.
func (e *Engine) Run(ctx context.Context, query string) (State, error) {
	return e.RunWithID(ctx, uuid.NewString(), query)
}

// RunWithID executes a research run synchronously. On failure the returned
// state is the last successfully completed one and the error is a
// *StageError, ErrEmptyQuery, or the context error when cancelled between
// stages.
func (e *Engine) RunWithID(ctx context.Context, runID, query string) (State, error) {
	s := State{
		RunID:       runID,
		Query:       query,
		Questions:   []string{},
		RawEvidence: []string{},
		Facts:       []string{},
		Citations:   []string{},
		Messages:    []Message{},
		StartedAt:   time.Now().UTC(),
	}
	if strings.TrimSpace(query) == "" {
		return s, ErrEmptyQuery
	}

	// resolved per run so a provider installed after start-up is honoured
	ctx, span := otel.Tracer(tracerName).Start(ctx, "research.run", trace.WithAttributes(
		attribute.String("research.run_id", runID),
	))
	defer span.End()

	current := AgentPlanner
	for current != AgentEnd {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			e.emit(ctx, Event{RunID: runID, Stage: current, Status: StatusFailed, Message: "run cancelled before stage"})
			return s, fmt.Errorf("research cancelled before %s: %w", current, err)
		}

		next, took, err := e.step(ctx, current, s)
		if err == nil && !legal(current, next.Next) {
			err = fmt.Errorf("%w: %s -> %q", ErrInvalidTransition, current, next.Next)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.emit(ctx, Event{RunID: runID, Stage: current, Status: StatusFailed, Message: err.Error(), Took: took})
			return s, &StageError{Stage: current, Err: err}
		}

		e.emit(ctx, Event{
			RunID:   runID,
			Stage:   current,
			Status:  StatusCompleted,
			Message: lastMessage(next),
			Detail:  stageDetail(current, next),
			Took:    took,
		})
		s = next.say("Router", "Router: sending to "+next.Next.String())
		current = s.Next
	}

	s.FinishedAt = time.Now().UTC()
	span.SetAttributes(
		attribute.Int("research.revisions", s.Revisions),
		attribute.Bool("research.unapproved", s.Unapproved),
	)
	e.emit(ctx, Event{
		RunID:   runID,
		Stage:   AgentEnd,
		Status:  StatusFinished,
		Message: "research complete",
		Detail: map[string]interface{}{
			"draft_passes": s.DraftPasses,
			"revisions":    s.Revisions,
			"unapproved":   s.Unapproved,
		},
		Took: s.FinishedAt.Sub(s.StartedAt),
	})
	return s, nil
}

func (e *Engine) step(ctx context.Context, a Agent, s State) (State, time.Duration, error) {
	tracer := trace.SpanFromContext(ctx).TracerProvider().Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "research.stage", trace.WithAttributes(
		attribute.String("research.stage", a.String()),
	))
	defer span.End()

	e.emit(ctx, Event{RunID: s.RunID, Stage: a, Status: StatusStarted, Message: a.Label() + " started"})
	start := time.Now()
	next, err := e.dispatch(ctx, a, s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return next, time.Since(start), err
}

// bounded returns the context for one service call.
func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.StageTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.StageTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) dispatch(ctx context.Context, a Agent, s State) (State, error) {
	switch a {
	case AgentPlanner:
		return e.plan(ctx, s)
	case AgentSearch:
		return e.search(ctx, s)
	case AgentExtraction:
		return e.extract(ctx, s)
	case AgentWriter:
		return e.write(ctx, s)
	case AgentEvaluator:
		return e.evaluate(ctx, s)
	default:
		return s, fmt.Errorf("%w: no stage for %q", ErrInvalidTransition, a)
	}
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	ev.At = time.Now().UTC()
	e.observer.OnEvent(ctx, ev)
}

func legal(from, to Agent) bool {
	for _, a := range successors[from] {
		if a == to {
			return true
		}
	}
	return false
}

func lastMessage(s State) string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}

// stageDetail carries the per-stage preview shown by progress consumers.
func stageDetail(a Agent, s State) map[string]interface{} {
	switch a {
	case AgentPlanner:
		return map[string]interface{}{"plan_preview": preview(s.Plan, 120)}
	case AgentSearch:
		empty := 0
		for _, ev := range s.RawEvidence {
			if ev == "" {
				empty++
			}
		}
		return map[string]interface{}{"questions": len(s.Questions), "evidence": len(s.RawEvidence), "empty_evidence": empty}
	case AgentExtraction:
		return map[string]interface{}{"facts": len(s.Facts), "citations": len(s.Citations)}
	case AgentWriter:
		return map[string]interface{}{"draft_preview": preview(s.Draft, 120), "pass": s.DraftPasses}
	case AgentEvaluator:
		d := map[string]interface{}{"approved": s.Next == AgentEnd && !s.Unapproved, "revisions": s.Revisions}
		if s.Next == AgentWriter {
			d["feedback_preview"] = preview(s.EvaluatorFeedback, 150)
		}
		if s.Unapproved {
			d["unapproved"] = true
		}
		return d
	default:
		return nil
	}
}
