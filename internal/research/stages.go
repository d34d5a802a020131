package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/researcher/provider"
)

// Gatherer resolves search questions into evidence, one entry per question.
type Gatherer interface {
	GatherAll(ctx context.Context, questions []string) ([]string, error)
}

const missingFeedback = "The evaluator rejected the draft without details. Re-check that every part of the query is answered and every claim is backed by the facts."

func (e *Engine) plan(ctx context.Context, s State) (State, error) {
	cctx, cancel := e.bounded(ctx)
	out, err := provider.Invoke[planOutput](cctx, e.llm, buildPlanPrompt(s.Query), planSchema)
	cancel()
	if err != nil {
		return s, err
	}
	plan := strings.TrimSpace(out.Plan)
	if plan == "" {
		return s, fmt.Errorf("%w: empty plan", provider.ErrSchemaViolation)
	}
	s.Plan = plan
	s.Next = AgentSearch
	return s.say(AgentPlanner.Label(), "Planner: Steps created"), nil
}

func (e *Engine) search(ctx context.Context, s State) (State, error) {
	n := e.opts.QuestionCount
	cctx, cancel := e.bounded(ctx)
	out, err := provider.Invoke[questionsOutput](cctx, e.llm, buildQuestionsPrompt(s.Query, s.Plan, n), e.questionsSchema)
	cancel()
	if err != nil {
		return s, err
	}
	if len(out.Questions) != n {
		return s, fmt.Errorf("%w: got %d questions, want %d", provider.ErrSchemaViolation, len(out.Questions), n)
	}
	questions := make([]string, n)
	for i, q := range out.Questions {
		questions[i] = strings.TrimSpace(q)
		if questions[i] == "" {
			return s, fmt.Errorf("%w: question %d is blank", provider.ErrSchemaViolation, i+1)
		}
	}

	evidence, err := e.evidence.GatherAll(ctx, questions)
	if err != nil {
		return s, fmt.Errorf("gather evidence: %w", err)
	}
	if len(evidence) != len(questions) {
		return s, fmt.Errorf("gather evidence: got %d entries for %d questions", len(evidence), len(questions))
	}

	s.Questions = questions
	s.RawEvidence = evidence
	s.Next = AgentExtraction
	return s.say(AgentSearch.Label(), "Search Agent: Evidence collected in raw_evidence"), nil
}

func (e *Engine) extract(ctx context.Context, s State) (State, error) {
	cctx, cancel := e.bounded(ctx)
	out, err := provider.Invoke[extractionOutput](cctx, e.llm, buildExtractionPrompt(s.Questions, s.RawEvidence), extractionSchema)
	cancel()
	if err != nil {
		return s, err
	}
	s.Facts = nonNil(out.Facts)
	s.Citations = nonNil(out.Citations)
	s.Next = AgentWriter
	return s.say(AgentExtraction.Label(), "Extractor: facts extracted"), nil
}

func (e *Engine) write(ctx context.Context, s State) (State, error) {
	prompt := buildDraftPrompt(s.Query, s.Facts, s.Citations, s.EvaluatorFeedback)
	cctx, cancel := e.bounded(ctx)
	out, err := provider.Invoke[draftOutput](cctx, e.llm, prompt, draftSchema)
	cancel()
	if err != nil {
		return s, err
	}
	draft := strings.TrimSpace(out.Draft)
	if draft == "" {
		return s, fmt.Errorf("%w: empty draft", provider.ErrSchemaViolation)
	}
	s.Draft = draft
	s.DraftPasses++
	s.Next = AgentEvaluator
	return s.say(AgentWriter.Label(), "Writer Agent: Draft created"), nil
}

func (e *Engine) evaluate(ctx context.Context, s State) (State, error) {
	factPreview := s.Facts
	if len(factPreview) > e.opts.FactPreview {
		factPreview = factPreview[:e.opts.FactPreview]
	}
	cctx, cancel := e.bounded(ctx)
	out, err := provider.Invoke[evaluationOutput](cctx, e.llm, buildEvaluationPrompt(s.Query, s.Draft, factPreview, len(s.Facts)), evaluationSchema)
	cancel()
	if err != nil {
		return s, err
	}

	if !out.NeedsFix {
		// stale feedback from an earlier pass is left in place
		s.FinalSummary = s.Draft
		s.Next = AgentEnd
		return s.say(AgentEvaluator.Label(), "Evaluator: summary finalized"), nil
	}

	feedback := strings.TrimSpace(out.Feedback)
	if feedback == "" {
		feedback = missingFeedback
	}
	s.EvaluatorFeedback = feedback
	s.Revisions++
	if e.opts.MaxRevisions > 0 && s.Revisions > e.opts.MaxRevisions {
		s.FinalSummary = s.Draft
		s.Unapproved = true
		s.Next = AgentEnd
		return s.say(AgentEvaluator.Label(), fmt.Sprintf("Evaluator: revision limit (%d) reached, finalizing unapproved draft", e.opts.MaxRevisions)), nil
	}
	s.Next = AgentWriter
	return s.say(AgentEvaluator.Label(), "Evaluator: issues found, sending back"), nil
}

func nonNil(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
