package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/models"
)

// Runner executes a research run under a caller-chosen id.
type Runner interface {
	RunWithID(ctx context.Context, runID, query, trigger string) (research.State, models.Run, error)
}

// Announcer is told about each scheduled run before it starts.
type Announcer interface {
	Announce(ctx context.Context, runID, schedule, query string, nextAt time.Time) error
}

type job struct {
	name  string
	query string
	expr  *cronexpr.Expression
	next  time.Time
}

// Scheduler fires configured research queries on their cron schedules.
// With a Redis client, a SetNX lock keeps replicas from firing the same slot
// twice.
type Scheduler struct {
	runner    Runner
	locker    redis.Cmdable
	announcer Announcer
	logger    logrus.FieldLogger
	tick      time.Duration
	lockTTL   time.Duration
	now       func() time.Time

	jobs []*job
	wg   sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocker enables distributed locking through Redis.
func WithLocker(rdb redis.Cmdable) Option { return func(s *Scheduler) { s.locker = rdb } }

func WithAnnouncer(a Announcer) Option { return func(s *Scheduler) { s.announcer = a } }

func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func withClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// New parses every schedule. Invalid cron expressions are an error.
func New(schedules []config.ScheduleConfig, runner Runner, logger logrus.FieldLogger, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler requires a runner")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Scheduler{
		runner:  runner,
		logger:  logger,
		tick:    30 * time.Second,
		lockTTL: 10 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.now()
	for i, sc := range schedules {
		expr, err := parse(sc.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("schedule-%d", i+1)
		}
		if strings.TrimSpace(sc.Query) == "" {
			return nil, fmt.Errorf("schedule %q: query is required", name)
		}
		s.jobs = append(s.jobs, &job{name: name, query: sc.Query, expr: expr, next: expr.Next(now)})
	}
	return s, nil
}

// parse accepts @hourly and @daily shorthands and standard cron expressions.
func parse(spec string) (*cronexpr.Expression, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("cron expression is required")
	}
	return cronexpr.Parse(spec)
}

// Next reports when each schedule fires next, keyed by name.
func (s *Scheduler) Next() map[string]time.Time {
	out := make(map[string]time.Time, len(s.jobs))
	for _, j := range s.jobs {
		out[j.name] = j.next
	}
	return out
}

// Run ticks until ctx is done, then waits for in-flight runs.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		s.logger.Info("no schedules configured")
		<-ctx.Done()
		return nil
	}
	for _, j := range s.jobs {
		s.logger.WithFields(logrus.Fields{"schedule": j.name, "next": j.next}).Info("schedule loaded")
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

// fire starts every due job and advances its next slot.
func (s *Scheduler) fire(ctx context.Context) {
	now := s.now()
	for _, j := range s.jobs {
		if j.next.IsZero() || j.next.After(now) {
			continue
		}
		slot := j.next
		j.next = j.expr.Next(now)

		log := s.logger.WithFields(logrus.Fields{"schedule": j.name, "slot": slot})
		if !s.lock(ctx, j.name, slot, log) {
			continue
		}

		runID := uuid.NewString()
		if s.announcer != nil {
			if err := s.announcer.Announce(ctx, runID, j.name, j.query, j.next); err != nil {
				log.WithError(err).Warn("announce scheduled run")
			}
		}
		s.wg.Add(1)
		go func(name, query string) {
			defer s.wg.Done()
			_, run, err := s.runner.RunWithID(ctx, runID, query, "schedule:"+name)
			if err != nil {
				log.WithError(err).WithField("run_id", runID).Error("scheduled research failed")
				return
			}
			log.WithFields(logrus.Fields{"run_id": runID, "revisions": run.Revisions}).Info("scheduled research completed")
		}(j.name, j.query)
	}
}

func (s *Scheduler) lock(ctx context.Context, name string, slot time.Time, log logrus.FieldLogger) bool {
	if s.locker == nil {
		return true
	}
	key := fmt.Sprintf("researcher:sched:lock:%s:%d", name, slot.Unix())
	ok, err := s.locker.SetNX(ctx, key, "1", s.lockTTL).Result()
	if err != nil {
		log.WithError(err).Warn("schedule lock")
		return false
	}
	return ok
}

// Wait blocks until every started run has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }
