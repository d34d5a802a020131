package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/evidence"
	"github.com/mohammad-safakhou/researcher/internal/logging"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
	"github.com/mohammad-safakhou/researcher/internal/store"
	"github.com/mohammad-safakhou/researcher/provider"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch"
	"github.com/mohammad-safakhou/researcher/tools/web_search"
)

// app holds every long-lived dependency of a command.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	metrics *runtime.Metrics
	runner  *runtime.Runner
	store   *store.Store
	index   *store.Index
	rdb     *redis.Client
	closers []func() error
}

// newApp wires the research engine and whichever optional backends are
// configured. extra observers receive progress next to logs, metrics and
// the Redis stream.
func newApp(ctx context.Context, cfg *config.Config, extra ...research.Observer) (*app, error) {
	logger := logging.New(cfg)
	a := &app{cfg: cfg, logger: logger, metrics: runtime.NewMetrics()}

	// installed first so it is shut down last and flushes spans of every run
	tracing, err := runtime.SetupTracing(ctx, cfg.Telemetry, "researcher")
	if err != nil {
		return nil, err
	}
	if tracing.Enabled() {
		logger.WithField("endpoint", cfg.Telemetry.OTLPEndpoint).Info("exporting traces")
		a.closers = append(a.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tracing.Shutdown(sctx)
		})
	}

	llm, err := provider.NewProvider(cfg.LLM, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	gatherer, err := a.gatherer()
	if err != nil {
		a.Close()
		return nil, err
	}

	observers := research.MultiObserver{research.LogObserver{Logger: logger}, a.metrics}
	observers = append(observers, extra...)
	if cfg.Storage.Redis.Enabled() {
		rdb, obs, err := runtime.InitStreams(ctx, cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rdb = rdb
		a.closers = append(a.closers, rdb.Close)
		observers = append(observers, obs)
	}

	rc := cfg.Research.Normalize()
	engine, err := research.NewEngine(llm, gatherer, research.Options{
		QuestionCount: rc.QuestionCount,
		MaxRevisions:  rc.MaxRevisions,
		FactPreview:   rc.FactPreview,
		StageTimeout:  rc.StageTimeout,
	}, observers)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner = &runtime.Runner{Engine: engine, Logger: logger}

	if cfg.Storage.Postgres.Enabled() {
		st, err := runtime.OpenStore(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
		a.runner.Archive = st
	}

	idx, err := store.NewIndex(cfg.Storage.IndexPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.index = idx
	a.closers = append(a.closers, idx.Close)
	a.runner.Index = idx
	if a.store != nil {
		if runs, err := a.store.ListRuns(ctx, 500, 0); err != nil {
			logger.WithError(err).Warn("warm search index")
		} else if err := idx.Load(runs); err != nil {
			logger.WithError(err).Warn("warm search index")
		}
	}
	return a, nil
}

func (a *app) gatherer() (*evidence.Gatherer, error) {
	ws := a.cfg.Sources.WebSearch
	primary, err := a.searcher(ws.Primary)
	if err != nil {
		return nil, err
	}
	secondary, err := a.searcher(ws.Secondary)
	if err != nil {
		return nil, err
	}

	rc := a.cfg.Research.Normalize()
	opts := evidence.Options{
		MaxResults:  ws.MaxResults,
		Timeout:     ws.Timeout,
		Delay:       rc.EvidenceDelay,
		Concurrency: rc.EvidenceConcurrency,
		Recorder:    a.metrics,
		Logger:      a.logger,
	}
	if ws.EnrichTopResult {
		fetcher, err := web_fetch.NewWebFetcher(web_fetch.ReadableFetcherType, ws.Timeout, 0)
		if err != nil {
			return nil, err
		}
		opts.Fetcher = fetcher
	}
	return evidence.NewGatherer(primary, secondary, opts), nil
}

// searcher builds a breaker-guarded provider. A provider without its API key
// is reported and left out rather than failing startup.
func (a *app) searcher(name string) (web_search.WebSearcher, error) {
	if name == "" {
		return nil, nil
	}
	ws := a.cfg.Sources.WebSearch
	s, err := web_search.NewWebSearcher(web_search.Provider(name), web_search.Options{
		APIKey:      ws.APIKey(name),
		Timeout:     ws.Timeout,
		MinInterval: ws.MinInterval,
	})
	if errors.Is(err, web_search.ErrMissingAPIKey) {
		a.logger.WithField("provider", name).Warn("search provider has no api key; it will be skipped")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search provider %q: %w", name, err)
	}
	return evidence.WithBreaker(s, evidence.BreakerSettings{
		FailureThreshold: ws.Breaker.FailureThreshold,
		Cooldown:         ws.Breaker.Cooldown,
	}, a.logger), nil
}

// Close releases backends in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Debug("close")
		}
	}
	a.closers = nil
}
