package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when an archived run is not found
var ErrRunNotFound = errors.New("run not found")

// Prompt is a single structured-output request to a language model.
type Prompt struct {
	System string
	User   string
	// SchemaName and Schema describe the expected JSON reply; vendors that
	// support native structured output pass them through.
	SchemaName string
	Schema     map[string]interface{}
}

// APIError is a non-2xx reply from a model vendor.
type APIError struct {
	Provider string
	Code     int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.Code, e.Body)
}

// Retryable reports whether the call may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.Code == 429 || e.Code >= 500
}

// Run is the archived outcome of one research run.
type Run struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	Status       RunStatus `json:"status"`
	Plan         string    `json:"plan,omitempty"`
	Questions    []string  `json:"questions,omitempty"`
	Facts        []string  `json:"facts,omitempty"`
	Citations    []string  `json:"citations,omitempty"`
	FinalSummary string    `json:"final_summary,omitempty"`
	Revisions    int       `json:"revisions"`
	Unapproved   bool      `json:"unapproved"`
	Error        string    `json:"error,omitempty"`
	Trigger      string    `json:"trigger,omitempty"` // cli, api or schedule name
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)
