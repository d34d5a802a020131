package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/researcher/tools/web_search/transport"
)

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tvly-key" {
			t.Errorf("authorization = %q", got)
		}
		var body struct {
			Query      string `json:"query"`
			MaxResults int    `json:"max_results"`
			Depth      string `json:"search_depth"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Query != "chlorophyll absorption" || body.MaxResults != 2 || body.Depth != "basic" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write([]byte(`{"results":[
			{"title":" Chlorophyll ","url":"https://a.example","content":" Absorbs red and blue light "},
			{"title":"Pigments","url":"https://b.example","content":"Accessory pigments"},
			{"title":"Extra","url":"https://c.example","content":"ignored"}]}`))
	}))
	defer srv.Close()

	s := New("tvly-key", transport.Options{Timeout: time.Second})
	s.Endpoint = srv.URL
	got, err := s.Discover(context.Background(), "chlorophyll absorption", 2)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Title != "Chlorophyll" || got[0].Snippet != "Absorbs red and blue light" || got[1].URL != "https://b.example" {
		t.Fatalf("unexpected results %+v", got)
	}
}

func TestDiscoverStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := New("wrong", transport.Options{Timeout: time.Second})
	s.Endpoint = srv.URL
	if _, err := s.Discover(context.Background(), "q", 3); err == nil {
		t.Fatalf("expected error for 401")
	}
}
