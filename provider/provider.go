package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/models"
	gemini_provider "github.com/mohammad-safakhou/researcher/provider/gemini"
	openai_provider "github.com/mohammad-safakhou/researcher/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
	Gemini Client = "gemini"
)

var ErrMissingAPIKey = errors.New("llm api key not set")

// Completer sends one prompt to a model and returns its raw text reply.
type Completer interface {
	Complete(ctx context.Context, p models.Prompt) (string, error)
	Name() string
}

// Transformer produces schema-conformant structured output from a prompt.
// out receives the decoded reply and may be nil to validate only.
type Transformer interface {
	Invoke(ctx context.Context, prompt string, schema *Schema, out any) error
}

// NewProvider creates a structured LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig, logger *logrus.Logger) (Transformer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	var c Completer
	switch Client(cfg.Provider) {
	case OpenAI:
		c = openai_provider.NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Temperature, cfg.MaxTokens, cfg.Timeout)
	case Gemini:
		c = gemini_provider.NewGeminiClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Temperature, cfg.MaxTokens, cfg.Timeout)
	default:
		return nil, errors.New("unsupported LLM provider")
	}
	return NewStructured(c, cfg.MaxRetries, logger), nil
}
