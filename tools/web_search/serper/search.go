package serper

import (
	"context"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
	"github.com/mohammad-safakhou/researcher/tools/web_search/transport"
)

const DefaultEndpoint = "https://google.serper.dev/search"

type Search struct {
	ApiKey   string
	Endpoint string
	http     *transport.Client
}

func New(apiKey string, opts transport.Options) *Search {
	return &Search{ApiKey: apiKey, Endpoint: DefaultEndpoint, http: transport.New(opts)}
}

func (s *Search) Name() string { return "serper" }

func (s *Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://serper.dev/ docs
	payload := map[string]any{"q": q, "num": k}
	headers := map[string]string{"X-API-KEY": s.ApiKey}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := s.http.DoJSON(ctx, http.MethodPost, s.Endpoint, headers, payload, &raw); err != nil {
		return nil, err
	}

	var out []models.Result
	for i, it := range raw.Organic {
		if i >= k {
			break
		}
		out = append(out, models.Result{
			Title: strings.TrimSpace(it.Title), URL: it.Link, Snippet: strings.TrimSpace(it.Snippet),
		})
	}
	return out, nil
}
