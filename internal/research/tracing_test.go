package research

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestRunRecordsSpans(t *testing.T) {
	rec := installRecorder(t)
	llm := photosynthesisLLM()
	llm.replies["evaluation"] = []string{evalReply(true, "Add the Calvin cycle."), evalReply(false, "")}
	e := newTestEngine(t, llm, &echoGatherer{}, Options{}, nil)

	st, err := e.RunWithID(context.Background(), "run-42", "Explain photosynthesis basics")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var run sdktrace.ReadOnlySpan
	var stages []sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		switch s.Name() {
		case "research.run":
			run = s
		case "research.stage":
			stages = append(stages, s)
		}
	}
	if run == nil {
		t.Fatalf("no research.run span recorded")
	}
	if got := spanAttr(run, "research.run_id"); got != "run-42" {
		t.Fatalf("run_id attribute = %q", got)
	}
	if got := spanAttr(run, "research.revisions"); got != "1" || st.Revisions != 1 {
		t.Fatalf("revisions attribute = %q (state %d)", got, st.Revisions)
	}

	var order []string
	for _, s := range stages {
		if s.Parent().SpanID() != run.SpanContext().SpanID() {
			t.Fatalf("stage span %q is not a child of the run span", spanAttr(s, "research.stage"))
		}
		order = append(order, spanAttr(s, "research.stage"))
	}
	want := []string{"planner_agent", "search_agent", "extraction_agent", "writer_agent", "evaluator_agent", "writer_agent", "evaluator_agent"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("stage spans mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRecordsStageErrorOnSpan(t *testing.T) {
	rec := installRecorder(t)
	llm := photosynthesisLLM()
	llm.replies["questions"] = []string{questionsReply(2)}
	e := newTestEngine(t, llm, &echoGatherer{}, Options{}, nil)

	if _, err := e.Run(context.Background(), "q"); err == nil {
		t.Fatalf("expected stage error")
	}
	var failed int
	for _, s := range rec.Ended() {
		if s.Status().Code.String() == "Error" {
			failed++
		}
	}
	// the search stage span and the run span
	if failed != 2 {
		t.Fatalf("spans with error status = %d, want 2", failed)
	}
}
