package evidence

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	web_search "github.com/mohammad-safakhou/researcher/tools/web_search"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

// BreakerSettings controls when a provider is taken out of rotation.
type BreakerSettings struct {
	FailureThreshold uint32
	Cooldown         time.Duration
}

// guarded wraps a provider in a circuit breaker. Empty result sets count
// as successes; only transport, status and decode failures trip it.
type guarded struct {
	inner web_search.WebSearcher
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker returns s guarded by a consecutive-failure breaker. A zero
// threshold disables the breaker and returns s unchanged.
func WithBreaker(s web_search.WebSearcher, settings BreakerSettings, logger *logrus.Logger) web_search.WebSearcher {
	if s == nil || settings.FailureThreshold == 0 {
		return s
	}
	cooldown := settings.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	threshold := settings.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about provider health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.WithFields(logrus.Fields{"provider": name, "from": from.String(), "to": to.String()}).Warn("search provider breaker state changed")
			}
		},
	})
	return &guarded{inner: s, cb: cb}
}

func (g *guarded) Name() string { return g.inner.Name() }

func (g *guarded) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.inner.Discover(ctx, q, k)
	})
	if err != nil {
		return nil, err
	}
	results, _ := out.([]models.Result)
	return results, nil
}

// breakerOpen reports whether err came from a tripped breaker.
func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
