package research

import (
	"fmt"
	"time"
)

// Agent names a workflow stage. The zero value is not a valid agent.
type Agent string

const (
	AgentPlanner    Agent = "planner_agent"
	AgentSearch     Agent = "search_agent"
	AgentExtraction Agent = "extraction_agent"
	AgentWriter     Agent = "writer_agent"
	AgentEvaluator  Agent = "evaluator_agent"
	AgentEnd        Agent = "end"
)

var agents = []Agent{AgentPlanner, AgentSearch, AgentExtraction, AgentWriter, AgentEvaluator, AgentEnd}

// ParseAgent maps a routing token to an Agent.
func ParseAgent(s string) (Agent, error) {
	for _, a := range agents {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown agent %q", ErrInvalidTransition, s)
}

func (a Agent) String() string { return string(a) }

// Label is the human name used in progress messages.
func (a Agent) Label() string {
	switch a {
	case AgentPlanner:
		return "Planner"
	case AgentSearch:
		return "Search Agent"
	case AgentExtraction:
		return "Extractor"
	case AgentWriter:
		return "Writer Agent"
	case AgentEvaluator:
		return "Evaluator"
	case AgentEnd:
		return "End"
	default:
		return string(a)
	}
}

// Message is one line of the append-only run log.
type Message struct {
	From    string    `json:"from"` // stage label or "Router"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// State is the single record threaded through a research run. Stages take
// it by value and return the updated copy.
type State struct {
	RunID             string    `json:"run_id"`
	Query             string    `json:"query"`
	Plan              string    `json:"plan"`
	Questions         []string  `json:"questions"`
	RawEvidence       []string  `json:"raw_evidence"`
	Facts             []string  `json:"facts"`
	Citations         []string  `json:"citations"`
	Draft             string    `json:"draft"`
	EvaluatorFeedback string    `json:"evaluator_feedback"`
	FinalSummary      string    `json:"final_summary"`
	Next              Agent     `json:"next_agent"`
	Messages          []Message `json:"messages"`
	Revisions         int       `json:"revisions"`
	DraftPasses       int       `json:"draft_passes"`
	Unapproved        bool      `json:"unapproved"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at,omitempty"`
}

// Complete reports whether the run reached the terminal state.
func (s State) Complete() bool {
	return s.FinalSummary != "" && s.Next == AgentEnd
}

// say appends a message. Messages is copied so earlier State values that
// share the backing array are never mutated.
func (s State) say(from, content string) State {
	msgs := make([]Message, len(s.Messages), len(s.Messages)+1)
	copy(msgs, s.Messages)
	s.Messages = append(msgs, Message{From: from, Content: content, At: time.Now().UTC()})
	return s
}
