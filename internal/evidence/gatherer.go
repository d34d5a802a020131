package evidence

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	web_fetch "github.com/mohammad-safakhou/researcher/tools/web_fetch"
	web_search "github.com/mohammad-safakhou/researcher/tools/web_search"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

// Search outcomes reported to a Recorder.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
	OutcomeOpen  = "breaker_open"
)

// Recorder receives one observation per provider call.
type Recorder interface {
	ObserveSearch(provider, outcome string, took time.Duration)
}

type Options struct {
	MaxResults int
	// Timeout bounds each individual provider call.
	Timeout time.Duration
	// Delay is the pause between consecutive questions in sequential mode.
	Delay time.Duration
	// Concurrency > 1 fetches questions in parallel; provider clients keep
	// their own pacing so the per-provider rate contract still holds.
	Concurrency int
	// Fetcher, when set, appends a readable extract of the top result.
	Fetcher       web_fetch.WebFetcher
	EnrichMaxChar int
	Recorder      Recorder
	Logger        *logrus.Logger
}

// Gatherer turns search questions into evidence strings, trying the
// primary provider first and the secondary at most once per question.
type Gatherer struct {
	primary   web_search.WebSearcher
	secondary web_search.WebSearcher
	opts      Options
	log       *logrus.Entry
}

// NewGatherer accepts nil providers; a nil provider is treated as
// unavailable and contributes no results.
func NewGatherer(primary, secondary web_search.WebSearcher, opts Options) *Gatherer {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.EnrichMaxChar <= 0 {
		opts.EnrichMaxChar = 1500
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gatherer{
		primary:   primary,
		secondary: secondary,
		opts:      opts,
		log:       logger.WithField("component", "evidence"),
	}
}

// Gather returns the combined evidence for one question. It never fails:
// if both providers come back empty the result is "".
func (g *Gatherer) Gather(ctx context.Context, question string) string {
	results := g.search(ctx, g.primary, question)
	if len(results) == 0 && g.secondary != nil {
		g.log.WithField("question", question).Debug("primary returned nothing, falling back")
		results = g.search(ctx, g.secondary, question)
	}
	if len(results) == 0 {
		g.log.WithField("question", question).Warn("no evidence found")
		return ""
	}

	evidence := models.Combine(results)
	if g.opts.Fetcher != nil {
		if extra := g.enrich(ctx, results[0]); extra != "" {
			if evidence == "" {
				evidence = extra
			} else {
				evidence += "\n\n" + extra
			}
		}
	}
	return evidence
}

// GatherAll returns one evidence entry per question with index
// correspondence preserved. The only error is ctx cancellation.
func (g *Gatherer) GatherAll(ctx context.Context, questions []string) ([]string, error) {
	out := make([]string, len(questions))
	if len(questions) == 0 {
		return out, nil
	}

	if g.opts.Concurrency > 1 {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(g.opts.Concurrency)
		for i, q := range questions {
			i, q := i, q
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				out[i] = g.Gather(egCtx, q)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return out, err
		}
		return out, ctx.Err()
	}

	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out[i] = g.Gather(ctx, q)
		if i < len(questions)-1 && g.opts.Delay > 0 {
			select {
			case <-time.After(g.opts.Delay):
			case <-ctx.Done():
				return out, ctx.Err()
			}
		}
	}
	return out, nil
}

func (g *Gatherer) search(ctx context.Context, s web_search.WebSearcher, question string) []models.Result {
	if s == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	results, err := s.Discover(cctx, question, g.opts.MaxResults)
	took := time.Since(start)

	outcome := OutcomeOK
	switch {
	case err != nil && breakerOpen(err):
		outcome = OutcomeOpen
	case err != nil:
		outcome = OutcomeError
	case len(results) == 0:
		outcome = OutcomeEmpty
	}
	if g.opts.Recorder != nil {
		g.opts.Recorder.ObserveSearch(s.Name(), outcome, took)
	}
	if err != nil {
		g.log.WithError(err).WithFields(logrus.Fields{"provider": s.Name(), "question": question}).Warn("search provider failed")
		return nil
	}
	return results
}

func (g *Gatherer) enrich(ctx context.Context, top models.Result) string {
	if strings.TrimSpace(top.URL) == "" {
		return ""
	}
	page, err := g.opts.Fetcher.Exec(ctx, top.URL)
	if err != nil {
		g.log.WithError(err).WithField("url", top.URL).Debug("enrichment fetch failed")
		return ""
	}
	text := strings.Join(strings.Fields(page.Text), " ")
	if text == "" {
		return ""
	}
	text = helpers.TruncateRunes(text, g.opts.EnrichMaxChar)
	title := page.Title
	if title == "" {
		title = top.Title
	}
	return models.Result{Title: title, Snippet: text}.Line()
}
