package streams

import (
	"context"
	"time"
)

type scheduledPayload struct {
	RunID    string    `json:"run_id"`
	Schedule string    `json:"schedule"`
	Query    string    `json:"query"`
	NextAt   time.Time `json:"next_at,omitempty"`
}

// ScheduleAnnouncer publishes research.scheduled events.
type ScheduleAnnouncer struct {
	Publisher *Publisher
	Stream    string
	MaxLen    int64
}

func (a *ScheduleAnnouncer) Announce(ctx context.Context, runID, schedule, query string, nextAt time.Time) error {
	payload := scheduledPayload{RunID: runID, Schedule: schedule, Query: query, NextAt: nextAt}
	_, err := a.Publisher.PublishRaw(ctx, a.Stream, EventScheduled, runID, payload, WithMaxLenApprox(a.MaxLen))
	return err
}
