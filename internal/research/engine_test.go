package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mohammad-safakhou/researcher/provider"
)

// scriptedLLM replies per schema name; the last reply of a script repeats.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	calls   []string
	prompts map[string][]string
	// lenient skips schema validation, like a backend that ignores the schema
	lenient bool
}

func newScriptedLLM(replies map[string][]string) *scriptedLLM {
	return &scriptedLLM{replies: replies, errs: map[string]error{}, prompts: map[string][]string{}}
}

func (l *scriptedLLM) Invoke(ctx context.Context, prompt string, schema *provider.Schema, out any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := schema.Name
	l.calls = append(l.calls, name)
	idx := len(l.prompts[name])
	l.prompts[name] = append(l.prompts[name], prompt)
	if err := l.errs[name]; err != nil {
		return err
	}
	script := l.replies[name]
	if len(script) == 0 {
		return fmt.Errorf("no scripted reply for %s", name)
	}
	if idx >= len(script) {
		idx = len(script) - 1
	}
	reply := script[idx]
	if !l.lenient {
		if err := schema.Validate([]byte(reply)); err != nil {
			return fmt.Errorf("%w: %v", provider.ErrSchemaViolation, err)
		}
	}
	return json.Unmarshal([]byte(reply), out)
}

func (l *scriptedLLM) count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts[name])
}

type echoGatherer struct {
	empty bool
	calls int
}

func (g *echoGatherer) GatherAll(ctx context.Context, questions []string) ([]string, error) {
	g.calls++
	out := make([]string, len(questions))
	for i, q := range questions {
		if !g.empty {
			out[i] = "Source " + q + ": evidence for " + q
		}
	}
	return out, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
	hook   func(Event)
}

func (r *recordingObserver) OnEvent(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if r.hook != nil {
		r.hook(ev)
	}
}

func (r *recordingObserver) completed() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Agent
	for _, ev := range r.events {
		if ev.Status == StatusCompleted {
			out = append(out, ev.Stage)
		}
	}
	return out
}

func questionsReply(n int) string {
	qs := make([]string, n)
	for i := range qs {
		qs[i] = fmt.Sprintf("What is photosynthesis fact %d?", i+1)
	}
	b, _ := json.Marshal(map[string]interface{}{"questions": qs})
	return string(b)
}

func evalReply(needsFix bool, feedback string) string {
	b, _ := json.Marshal(map[string]interface{}{"needs_fix": needsFix, "feedback": feedback})
	return string(b)
}

func draftReply(text string) string {
	b, _ := json.Marshal(map[string]string{"draft": text})
	return string(b)
}

var photosynthesisFacts = []string{
	"Photosynthesis converts light energy into chemical energy.",
	"Chlorophyll absorbs mostly blue and red light.",
	"The light-dependent reactions occur in the thylakoid membranes.",
	"The Calvin cycle fixes carbon dioxide into sugars.",
	"Oxygen is released as a by-product of splitting water.",
}

var photosynthesisCitations = []string{
	"https://en.wikipedia.org/wiki/Photosynthesis",
	"National Geographic Education",
	"Khan Academy: Light-dependent reactions",
}

func photosynthesisLLM() *scriptedLLM {
	extraction, _ := json.Marshal(map[string]interface{}{"facts": photosynthesisFacts, "citations": photosynthesisCitations})
	draft := "# Photosynthesis Basics\n\n**Overview**\n" + strings.Join(photosynthesisFacts, "\n") +
		"\n\n**Citations**\n" + strings.Join(photosynthesisCitations, "\n")
	return newScriptedLLM(map[string][]string{
		"plan":       {`{"plan": "1. Define photosynthesis\n2. Describe the light reactions\n3. Describe the Calvin cycle"}`},
		"questions":  {questionsReply(10)},
		"extraction": {string(extraction)},
		"draft":      {draftReply(draft)},
		"evaluation": {evalReply(false, "")},
	})
}

func newTestEngine(t *testing.T, llm provider.Transformer, g Gatherer, opts Options, obs Observer) *Engine {
	t.Helper()
	e, err := NewEngine(llm, g, opts, obs)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestRunPhotosynthesisEndToEnd(t *testing.T) {
	llm := photosynthesisLLM()
	gatherer := &echoGatherer{}
	obs := &recordingObserver{}
	e := newTestEngine(t, llm, gatherer, Options{MaxRevisions: 3, FactPreview: 3}, obs)

	st, err := e.Run(context.Background(), "Explain photosynthesis basics")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !st.Complete() || st.FinalSummary == "" {
		t.Fatalf("expected complete state, got next=%s summary=%q", st.Next, st.FinalSummary)
	}
	for _, c := range photosynthesisCitations {
		if !strings.Contains(st.FinalSummary, c) {
			t.Fatalf("final summary missing citation %q", c)
		}
	}
	if len(st.Questions) != 10 || len(st.RawEvidence) != 10 {
		t.Fatalf("questions=%d evidence=%d, want 10/10", len(st.Questions), len(st.RawEvidence))
	}
	for i, ev := range st.RawEvidence {
		if !strings.Contains(ev, st.Questions[i]) {
			t.Fatalf("evidence %d not aligned with question %q", i, st.Questions[i])
		}
	}
	if len(st.Facts) != 5 || len(st.Citations) != 3 {
		t.Fatalf("facts=%d citations=%d, want 5/3", len(st.Facts), len(st.Citations))
	}

	want := []Agent{AgentPlanner, AgentSearch, AgentExtraction, AgentWriter, AgentEvaluator}
	if diff := cmp.Diff(want, obs.completed()); diff != "" {
		t.Fatalf("visited stages mismatch (-want +got):\n%s", diff)
	}
	last := obs.events[len(obs.events)-1]
	if last.Stage != AgentEnd || last.Status != StatusFinished {
		t.Fatalf("last event = %+v, want finished", last)
	}
	if fmt.Sprint(llm.calls) != "[plan questions extraction draft evaluation]" {
		t.Fatalf("service calls = %v", llm.calls)
	}
	if st.DraftPasses != 1 || st.Revisions != 0 || st.Unapproved {
		t.Fatalf("unexpected loop counters %+v", st)
	}
	if gatherer.calls != 1 {
		t.Fatalf("gatherer calls = %d, want 1", gatherer.calls)
	}

	var routed []string
	for _, m := range st.Messages {
		if m.From == "Router" {
			routed = append(routed, strings.TrimPrefix(m.Content, "Router: sending to "))
		}
	}
	if fmt.Sprint(routed) != "[search_agent extraction_agent writer_agent evaluator_agent end]" {
		t.Fatalf("router messages = %v", routed)
	}
	if st.StartedAt.IsZero() || st.FinishedAt.Before(st.StartedAt) {
		t.Fatalf("bad timestamps %s %s", st.StartedAt, st.FinishedAt)
	}
}

func TestRunRevisionLoop(t *testing.T) {
	llm := photosynthesisLLM()
	llm.replies["draft"] = []string{draftReply("draft one"), draftReply("draft two"), draftReply("draft three")}
	llm.replies["evaluation"] = []string{
		evalReply(true, "Missing the Calvin cycle."),
		evalReply(true, "Cite the sources inline."),
		evalReply(false, ""),
	}
	obs := &recordingObserver{}
	e := newTestEngine(t, llm, &echoGatherer{}, Options{MaxRevisions: 3}, obs)

	st, err := e.Run(context.Background(), "Explain photosynthesis basics")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.DraftPasses != 3 || llm.count("draft") != 3 {
		t.Fatalf("draft passes = %d (calls %d), want 3", st.DraftPasses, llm.count("draft"))
	}
	if st.FinalSummary != "draft three" || st.Draft != "draft three" {
		t.Fatalf("final summary = %q, want third draft", st.FinalSummary)
	}
	if st.Revisions != 2 || st.Unapproved {
		t.Fatalf("revisions=%d unapproved=%v", st.Revisions, st.Unapproved)
	}
	// stale feedback is kept after approval
	if st.EvaluatorFeedback != "Cite the sources inline." {
		t.Fatalf("feedback = %q", st.EvaluatorFeedback)
	}
	prompts := llm.prompts["draft"]
	if strings.Contains(prompts[0], "CRITICAL") {
		t.Fatalf("first draft prompt should not carry revision directive")
	}
	if !strings.Contains(prompts[1], "Missing the Calvin cycle.") || !strings.Contains(prompts[2], "Cite the sources inline.") {
		t.Fatalf("revision prompts missing feedback")
	}

	want := "[planner_agent search_agent extraction_agent writer_agent evaluator_agent writer_agent evaluator_agent writer_agent evaluator_agent]"
	if got := fmt.Sprint(obs.completed()); got != want {
		t.Fatalf("visited %s", got)
	}
}

func TestRunMaxRevisionsForcesTermination(t *testing.T) {
	llm := photosynthesisLLM()
	llm.replies["draft"] = []string{draftReply("d1"), draftReply("d2"), draftReply("d3")}
	llm.replies["evaluation"] = []string{evalReply(true, "still wrong")}
	e := newTestEngine(t, llm, &echoGatherer{}, Options{MaxRevisions: 1}, nil)

	st, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !st.Unapproved || !st.Complete() {
		t.Fatalf("expected forced unapproved completion, got %+v", st)
	}
	if st.DraftPasses != 2 || st.Revisions != 2 || st.FinalSummary != "d2" {
		t.Fatalf("passes=%d revisions=%d summary=%q", st.DraftPasses, st.Revisions, st.FinalSummary)
	}
}

func TestRunUnboundedRevisions(t *testing.T) {
	llm := photosynthesisLLM()
	script := make([]string, 0, 7)
	for i := 0; i < 6; i++ {
		script = append(script, evalReply(true, "again"))
	}
	llm.replies["evaluation"] = append(script, evalReply(false, ""))
	e := newTestEngine(t, llm, &echoGatherer{}, Options{MaxRevisions: 0}, nil)

	st, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.DraftPasses != 7 || st.Unapproved {
		t.Fatalf("passes=%d unapproved=%v, want 7/false", st.DraftPasses, st.Unapproved)
	}
}

func TestRunEmptyQuery(t *testing.T) {
	llm := photosynthesisLLM()
	g := &echoGatherer{}
	e := newTestEngine(t, llm, g, Options{}, nil)
	for _, q := range []string{"", "   \n"} {
		st, err := e.Run(context.Background(), q)
		if !errors.Is(err, ErrEmptyQuery) {
			t.Fatalf("Run(%q) error = %v, want ErrEmptyQuery", q, err)
		}
		if st.Plan != "" || st.FinalSummary != "" {
			t.Fatalf("state mutated on empty query: %+v", st)
		}
	}
	if len(llm.calls) != 0 || g.calls != 0 {
		t.Fatalf("services called on empty query: llm=%v gatherer=%d", llm.calls, g.calls)
	}
}

func TestRunQuestionCountEnforced(t *testing.T) {
	llm := photosynthesisLLM()
	llm.replies["questions"] = []string{questionsReply(9)}
	e := newTestEngine(t, llm, &echoGatherer{}, Options{}, nil)

	st, err := e.Run(context.Background(), "q")
	var se *StageError
	if !errors.As(err, &se) || se.Stage != AgentSearch {
		t.Fatalf("Run() error = %v, want search stage error", err)
	}
	if !errors.Is(err, provider.ErrSchemaViolation) {
		t.Fatalf("expected schema violation, got %v", err)
	}
	if st.Plan == "" || len(st.Questions) != 0 {
		t.Fatalf("partial state should hold the plan only: %+v", st)
	}
}

func TestRunCustomQuestionCount(t *testing.T) {
	llm := photosynthesisLLM()
	llm.replies["questions"] = []string{questionsReply(4)}
	e := newTestEngine(t, llm, &echoGatherer{}, Options{QuestionCount: 4}, nil)

	st, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(st.Questions) != 4 || len(st.RawEvidence) != 4 {
		t.Fatalf("questions=%d evidence=%d, want 4", len(st.Questions), len(st.RawEvidence))
	}
	if !strings.Contains(llm.prompts["questions"][0], "exactly 4 atomic") {
		t.Fatalf("questions prompt does not pin the count")
	}
}

func TestRunStageFailureAborts(t *testing.T) {
	llm := photosynthesisLLM()
	llm.errs["extraction"] = errors.New("service unavailable")
	obs := &recordingObserver{}
	e := newTestEngine(t, llm, &echoGatherer{}, Options{}, obs)

	st, err := e.Run(context.Background(), "q")
	var se *StageError
	if !errors.As(err, &se) || se.Stage != AgentExtraction {
		t.Fatalf("Run() error = %v, want extraction stage error", err)
	}
	if len(st.RawEvidence) != 10 || len(st.Facts) != 0 || st.FinalSummary != "" {
		t.Fatalf("unexpected partial state %+v", st)
	}
	if llm.count("draft") != 0 {
		t.Fatalf("draft must not run after extraction failure")
	}
	last := obs.events[len(obs.events)-1]
	if last.Status != StatusFailed || last.Stage != AgentExtraction {
		t.Fatalf("last event = %+v", last)
	}
}

func TestRunCancelledBetweenStages(t *testing.T) {
	llm := photosynthesisLLM()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	obs := &recordingObserver{hook: func(ev Event) {
		if ev.Stage == AgentPlanner && ev.Status == StatusCompleted {
			cancel()
		}
	}}
	e := newTestEngine(t, llm, &echoGatherer{}, Options{}, obs)

	st, err := e.Run(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want canceled", err)
	}
	if st.Plan == "" || st.Next != AgentSearch {
		t.Fatalf("planner output should survive cancellation: %+v", st)
	}
	if fmt.Sprint(llm.calls) != "[plan]" {
		t.Fatalf("calls after cancel = %v", llm.calls)
	}
}

func TestRunWithEmptyEvidence(t *testing.T) {
	llm := photosynthesisLLM()
	llm.replies["extraction"] = []string{`{"facts": [], "citations": []}`}
	e := newTestEngine(t, llm, &echoGatherer{empty: true}, Options{}, nil)

	st, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(st.RawEvidence) != 10 || st.RawEvidence[0] != "" {
		t.Fatalf("expected ten empty evidence entries, got %q", st.RawEvidence)
	}
	if !strings.Contains(llm.prompts["extraction"][0], "(no evidence found)") {
		t.Fatalf("extraction prompt should mark empty evidence")
	}
	if st.Facts == nil || len(st.Facts) != 0 || !st.Complete() {
		t.Fatalf("expected completion with an empty fact set, got %+v", st)
	}
}

func TestExtractDeterministic(t *testing.T) {
	llm := photosynthesisLLM()
	e := newTestEngine(t, llm, &echoGatherer{}, Options{}, nil)
	in := State{Questions: []string{"a"}, RawEvidence: []string{"x: y"}}

	first, err := e.extract(context.Background(), in)
	if err != nil {
		t.Fatalf("extract() error = %v", err)
	}
	second, err := e.extract(context.Background(), in)
	if err != nil {
		t.Fatalf("extract() error = %v", err)
	}
	if fmt.Sprint(first.Facts, first.Citations) != fmt.Sprint(second.Facts, second.Citations) {
		t.Fatalf("extract not deterministic: %v vs %v", first.Facts, second.Facts)
	}
	if len(in.Messages) != 0 {
		t.Fatalf("input state mutated")
	}
}

func TestEvaluateFinalSummaryIffEnd(t *testing.T) {
	llm := photosynthesisLLM()
	llm.replies["evaluation"] = []string{evalReply(true, ""), evalReply(false, "")}
	e := newTestEngine(t, llm, &echoGatherer{}, Options{MaxRevisions: 5}, nil)
	in := State{Query: "q", Draft: "d", Facts: []string{"f1", "f2", "f3", "f4"}}

	rejected, err := e.evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("evaluate() error = %v", err)
	}
	if rejected.FinalSummary != "" || rejected.Next != AgentWriter {
		t.Fatalf("rejected draft: summary=%q next=%s", rejected.FinalSummary, rejected.Next)
	}
	if rejected.EvaluatorFeedback != missingFeedback {
		t.Fatalf("blank feedback should be replaced, got %q", rejected.EvaluatorFeedback)
	}
	if !strings.Contains(llm.prompts["evaluation"][0], "1 more facts not shown") {
		t.Fatalf("evaluation prompt should preview three facts")
	}

	approved, err := e.evaluate(context.Background(), rejected)
	if err != nil {
		t.Fatalf("evaluate() error = %v", err)
	}
	if approved.FinalSummary != "d" || approved.Next != AgentEnd {
		t.Fatalf("approved draft: summary=%q next=%s", approved.FinalSummary, approved.Next)
	}
}

func TestParseAgentAndTransitions(t *testing.T) {
	t.Parallel()
	for _, a := range agents {
		got, err := ParseAgent(a.String())
		if err != nil || got != a {
			t.Fatalf("ParseAgent(%q) = %q, %v", a, got, err)
		}
	}
	if _, err := ParseAgent("super_agent"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ParseAgent(super_agent) error = %v", err)
	}
	if !legal(AgentEvaluator, AgentWriter) || !legal(AgentEvaluator, AgentEnd) {
		t.Fatalf("evaluator exits must be legal")
	}
	if legal(AgentPlanner, AgentWriter) || legal(AgentWriter, AgentEnd) || legal(AgentEnd, AgentPlanner) {
		t.Fatalf("illegal transitions accepted")
	}
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	if _, err := NewEngine(nil, &echoGatherer{}, Options{}, nil); err == nil {
		t.Fatalf("expected error without transformer")
	}
	if _, err := NewEngine(photosynthesisLLM(), nil, Options{}, nil); err == nil {
		t.Fatalf("expected error without gatherer")
	}
}

func TestRunRejectsBlankQuestion(t *testing.T) {
	qs := make([]string, 10)
	for i := range qs {
		qs[i] = fmt.Sprintf("Question %d?", i+1)
	}
	qs[4] = "  \t "
	b, _ := json.Marshal(map[string]interface{}{"questions": qs})

	for _, lenient := range []bool{false, true} {
		llm := photosynthesisLLM()
		llm.lenient = lenient
		llm.replies["questions"] = []string{string(b)}
		g := &echoGatherer{}
		e := newTestEngine(t, llm, g, Options{}, nil)

		_, err := e.Run(context.Background(), "q")
		var se *StageError
		if !errors.As(err, &se) || se.Stage != AgentSearch {
			t.Fatalf("lenient=%v: Run() error = %v, want search stage error", lenient, err)
		}
		if !errors.Is(err, provider.ErrSchemaViolation) {
			t.Fatalf("lenient=%v: expected schema violation, got %v", lenient, err)
		}
		if g.calls != 0 {
			t.Fatalf("lenient=%v: blank question reached the search providers", lenient)
		}
	}
}

func TestFactPreviewZeroSelectsDefault(t *testing.T) {
	for _, tc := range []struct {
		preview int
		shown   int
	}{{0, 3}, {1, 1}, {5, 5}} {
		llm := photosynthesisLLM()
		e := newTestEngine(t, llm, &echoGatherer{}, Options{FactPreview: tc.preview}, nil)
		if _, err := e.Run(context.Background(), "q"); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		prompt := llm.prompts["evaluation"][0]
		for i, f := range photosynthesisFacts {
			if got, want := strings.Contains(prompt, "- "+f), i < tc.shown; got != want {
				t.Fatalf("preview=%d: fact %d shown=%v, want %v", tc.preview, i, got, want)
			}
		}
	}
}
