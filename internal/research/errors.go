package research

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuery is returned before any stage runs when the query is blank.
	ErrEmptyQuery = errors.New("research query is empty")
	// ErrInvalidTransition is returned when a stage routes to an illegal successor.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// StageError identifies the stage whose failure aborted a run.
type StageError struct {
	Stage Agent
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
