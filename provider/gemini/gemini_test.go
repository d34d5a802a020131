package gemini_provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/researcher/models"
)

func TestCompleteJSONMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-1.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "g-key" {
			t.Errorf("api key = %q", got)
		}
		var body request
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.GenerationConfig.ResponseMIMEType != "application/json" || body.SystemInstruction == nil {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"questions\":"},{"text":"[]}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("g-key", "gemini-1.5-flash", srv.URL, 0.1, 256, time.Second)
	got, err := c.Complete(context.Background(), models.Prompt{System: "s", User: "u", SchemaName: "q", Schema: map[string]interface{}{}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"questions":[]}` {
		t.Fatalf("Complete() = %q", got)
	}
}

func TestCompleteBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	if _, err := NewGeminiClient("k", "m", srv.URL, 0, 0, time.Second).Complete(context.Background(), models.Prompt{User: "u"}); err == nil {
		t.Fatalf("expected blocked prompt error")
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewGeminiClient("k", "m", srv.URL, 0, 0, time.Second).Complete(context.Background(), models.Prompt{User: "u"})
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) || apiErr.Retryable() {
		t.Fatalf("expected non-retryable APIError, got %v", err)
	}
}
