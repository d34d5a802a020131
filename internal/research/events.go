package research

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type EventStatus string

const (
	StatusStarted   EventStatus = "started"
	StatusCompleted EventStatus = "completed"
	StatusFailed    EventStatus = "failed"
	// StatusFinished marks the end of a whole run; Stage is AgentEnd.
	StatusFinished EventStatus = "finished"
)

// Event reports progress of a run.
type Event struct {
	RunID   string                 `json:"run_id"`
	Stage   Agent                  `json:"stage"`
	Status  EventStatus            `json:"status"`
	Message string                 `json:"message,omitempty"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
	Took    time.Duration          `json:"took,omitempty"`
	At      time.Time              `json:"at"`
}

// Observer receives events synchronously on the run goroutine and must not
// block for long.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// MultiObserver fans an event out to every non-nil observer in order.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(ctx context.Context, ev Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(ctx, ev)
		}
	}
}

// LogObserver writes events to a logrus logger.
type LogObserver struct {
	Logger logrus.FieldLogger
}

func (l LogObserver) OnEvent(_ context.Context, ev Event) {
	entry := l.Logger.WithFields(logrus.Fields{
		"run_id": ev.RunID,
		"stage":  ev.Stage.String(),
		"status": string(ev.Status),
	})
	if len(ev.Detail) > 0 {
		entry = entry.WithFields(logrus.Fields(ev.Detail))
	}
	switch ev.Status {
	case StatusFailed:
		entry.Error(ev.Message)
	case StatusStarted:
		entry.Debug(ev.Message)
	default:
		entry.Info(ev.Message)
	}
}
