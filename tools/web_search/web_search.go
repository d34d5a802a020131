package web_search

import (
	"context"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/tools/web_search/brave"
	"github.com/mohammad-safakhou/researcher/tools/web_search/duckduckgo"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
	"github.com/mohammad-safakhou/researcher/tools/web_search/serper"
	"github.com/mohammad-safakhou/researcher/tools/web_search/tavily"
	"github.com/mohammad-safakhou/researcher/tools/web_search/transport"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
	Name() string
}

type Provider string

const (
	SerperProvider     Provider = "serper"
	BraveProvider      Provider = "brave"
	DuckDuckGoProvider Provider = "duckduckgo"
	TavilyProvider     Provider = "tavily"
)

type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrUnsupportedProvider = &Error{"unsupported provider"}
	ErrMissingAPIKey       = &Error{"missing api key"}
)

// Options configures a provider client. Endpoint overrides the vendor URL.
type Options struct {
	APIKey      string
	Endpoint    string
	Timeout     time.Duration
	MinInterval time.Duration
	Retries     int
}

func (o Options) transport() transport.Options {
	return transport.Options{Timeout: o.Timeout, MinInterval: o.MinInterval, Retries: o.Retries}
}

// NewWebSearcher builds a paced client for the named provider. Key-based
// providers without a key return ErrMissingAPIKey so callers can treat the
// provider as unavailable.
func NewWebSearcher(provider Provider, opts Options) (WebSearcher, error) {
	switch provider {
	case SerperProvider:
		if strings.TrimSpace(opts.APIKey) == "" {
			return nil, ErrMissingAPIKey
		}
		s := serper.New(opts.APIKey, opts.transport())
		if opts.Endpoint != "" {
			s.Endpoint = opts.Endpoint
		}
		return s, nil
	case BraveProvider:
		if strings.TrimSpace(opts.APIKey) == "" {
			return nil, ErrMissingAPIKey
		}
		s := brave.New(opts.APIKey, opts.transport())
		if opts.Endpoint != "" {
			s.Endpoint = opts.Endpoint
		}
		return s, nil
	case TavilyProvider:
		if strings.TrimSpace(opts.APIKey) == "" {
			return nil, ErrMissingAPIKey
		}
		s := tavily.New(opts.APIKey, opts.transport())
		if opts.Endpoint != "" {
			s.Endpoint = opts.Endpoint
		}
		return s, nil
	case DuckDuckGoProvider:
		s := duckduckgo.New(opts.transport())
		if opts.Endpoint != "" {
			s.Endpoint = opts.Endpoint
		}
		return s, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
