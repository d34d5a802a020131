package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/models"
)

type stubEngine struct {
	state research.State
	err   error
	calls int
}

func (s *stubEngine) RunWithID(_ context.Context, runID, query string) (research.State, error) {
	s.calls++
	st := s.state
	st.RunID = runID
	st.Query = query
	return st, s.err
}

type memArchive struct {
	saved []models.Run
	err   error
}

func (m *memArchive) SaveRun(_ context.Context, run models.Run) error {
	m.saved = append(m.saved, run)
	return m.err
}

type memIndex struct{ added []models.Run }

func (m *memIndex) Add(run models.Run) error {
	m.added = append(m.added, run)
	return nil
}

func TestRunnerArchivesAndIndexes(t *testing.T) {
	eng := &stubEngine{state: research.State{
		Plan:         "plan",
		Questions:    []string{"q1"},
		Facts:        []string{"f1"},
		Citations:    []string{"https://example.com", "https://EXAMPLE.com/"},
		FinalSummary: "brief",
		Revisions:    1,
		Next:         research.AgentEnd,
	}}
	arch := &memArchive{}
	idx := &memIndex{}
	r := &Runner{Engine: eng, Archive: arch, Index: idx}

	state, run, err := r.Run(context.Background(), "Explain photosynthesis basics", "cli")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.RunID == "" || state.RunID != run.ID {
		t.Fatalf("run id mismatch: state=%q run=%q", state.RunID, run.ID)
	}
	if len(arch.saved) != 2 {
		t.Fatalf("expected running and final saves, got %d", len(arch.saved))
	}
	if arch.saved[0].Status != models.RunStatusRunning || arch.saved[1].Status != models.RunStatusCompleted {
		t.Fatalf("unexpected statuses: %s then %s", arch.saved[0].Status, arch.saved[1].Status)
	}
	if run.FinalSummary != "brief" || run.Trigger != "cli" || run.FinishedAt.IsZero() {
		t.Fatalf("unexpected run record: %#v", run)
	}
	if len(run.Citations) != 1 {
		t.Fatalf("archived citations should be deduplicated, got %v", run.Citations)
	}
	if len(idx.added) != 1 || idx.added[0].ID != run.ID {
		t.Fatalf("expected brief to be indexed, got %#v", idx.added)
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	boom := &research.StageError{Stage: research.AgentWriter, Err: errors.New("llm down")}
	eng := &stubEngine{err: boom, state: research.State{Plan: "partial"}}
	arch := &memArchive{err: errors.New("db offline")}
	idx := &memIndex{}
	r := &Runner{Engine: eng, Archive: arch, Index: idx}

	_, run, err := r.Run(context.Background(), "q", "api")
	if !errors.Is(err, boom) {
		t.Fatalf("expected stage error, got %v", err)
	}
	if run.Status != models.RunStatusFailed || run.Error == "" || run.Plan != "partial" {
		t.Fatalf("unexpected failed record: %#v", run)
	}
	if len(idx.added) != 0 {
		t.Fatalf("failed runs must not be indexed")
	}
}

func TestRunnerRejectsEmptyQuery(t *testing.T) {
	eng := &stubEngine{}
	arch := &memArchive{}
	_, _, err := (&Runner{Engine: eng, Archive: arch}).Run(context.Background(), "   ", "cli")
	if !errors.Is(err, research.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if eng.calls != 0 || len(arch.saved) != 0 {
		t.Fatalf("empty query must not reach the engine or archive")
	}
}
