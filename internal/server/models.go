package server

import (
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/models"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// ResearchRequest starts a research run.
type ResearchRequest struct {
	Query string `json:"query"`
}

// ResearchResponse is the outcome of a synchronous run.
type ResearchResponse struct {
	Run      models.Run         `json:"run"`
	Messages []research.Message `json:"messages"`
}

// RunListResponse pages through archived runs.
type RunListResponse struct {
	Runs   []models.Run `json:"runs"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// SearchHit is an archived brief matching a search.
type SearchHit struct {
	ID           string  `json:"id"`
	Score        float64 `json:"score"`
	Query        string  `json:"query,omitempty"`
	FinalSummary string  `json:"final_summary,omitempty"`
}

// SearchResponse lists search hits by score.
type SearchResponse struct {
	Query string      `json:"query"`
	Hits  []SearchHit `json:"hits"`
}

// TokenRequest exchanges client credentials for a bearer token.
type TokenRequest struct {
	Client string `json:"client"`
	Secret string `json:"secret"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}
