package runtime

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammad-safakhou/researcher/internal/research"
)

func TestMetricsObservesRunEvents(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	m.OnEvent(ctx, research.Event{Stage: research.AgentPlanner, Status: research.StatusCompleted, Took: 2 * time.Second})
	m.OnEvent(ctx, research.Event{Stage: research.AgentEnd, Status: research.StatusFinished,
		Detail: map[string]interface{}{"revisions": 2, "unapproved": false}})
	m.OnEvent(ctx, research.Event{Stage: research.AgentEnd, Status: research.StatusFinished,
		Detail: map[string]interface{}{"revisions": 4, "unapproved": true}})
	m.OnEvent(ctx, research.Event{Stage: research.AgentExtraction, Status: research.StatusFailed})

	if got := testutil.ToFloat64(m.runs.WithLabelValues("approved")); got != 1 {
		t.Fatalf("approved runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("unapproved")); got != 1 {
		t.Fatalf("unapproved runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.stageFailures.WithLabelValues("extraction_agent")); got != 1 {
		t.Fatalf("extraction failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.stageDuration); got != 1 {
		t.Fatalf("stage duration series = %d, want 1", got)
	}
}

func TestMetricsObserveSearch(t *testing.T) {
	m := NewMetrics()
	m.ObserveSearch("serper", "empty", 10*time.Millisecond)
	m.ObserveSearch("serper", "empty", 10*time.Millisecond)
	m.ObserveSearch("duckduckgo", "ok", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.searchRequests.WithLabelValues("serper", "empty")); got != 2 {
		t.Fatalf("serper empty = %v, want 2", got)
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `researcher_search_requests_total{outcome="ok",provider="duckduckgo"} 1`) {
		t.Fatalf("metrics output missing search counter:\n%s", body)
	}
}
