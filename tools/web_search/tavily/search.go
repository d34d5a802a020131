package tavily

import (
	"context"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
	"github.com/mohammad-safakhou/researcher/tools/web_search/transport"
)

const DefaultEndpoint = "https://api.tavily.com/search"

type Search struct {
	ApiKey   string
	Endpoint string
	// Depth is Tavily's search_depth: "basic" or "advanced".
	Depth string
	http  *transport.Client
}

func New(apiKey string, opts transport.Options) *Search {
	return &Search{ApiKey: apiKey, Endpoint: DefaultEndpoint, Depth: "basic", http: transport.New(opts)}
}

func (s *Search) Name() string { return "tavily" }

func (s *Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://docs.tavily.com/documentation/api-reference/endpoint/search
	payload := map[string]any{
		"query":        q,
		"max_results":  k,
		"search_depth": s.Depth,
	}
	headers := map[string]string{"Authorization": "Bearer " + s.ApiKey}

	var raw struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := s.http.DoJSON(ctx, http.MethodPost, s.Endpoint, headers, payload, &raw); err != nil {
		return nil, err
	}

	var out []models.Result
	for i, r := range raw.Results {
		if i >= k {
			break
		}
		out = append(out, models.Result{
			Title: strings.TrimSpace(r.Title), URL: r.URL, Snippet: strings.TrimSpace(r.Content),
		})
	}
	return out, nil
}
