package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Research.QuestionCount != 10 {
		t.Fatalf("question_count = %d, want 10", cfg.Research.QuestionCount)
	}
	if cfg.Research.MaxRevisions != 3 {
		t.Fatalf("max_revisions = %d, want 3", cfg.Research.MaxRevisions)
	}
	if cfg.Research.EvidenceDelay != time.Second {
		t.Fatalf("evidence_delay = %s, want 1s", cfg.Research.EvidenceDelay)
	}
	if cfg.Sources.WebSearch.MaxResults != 5 {
		t.Fatalf("max_results = %d, want 5", cfg.Sources.WebSearch.MaxResults)
	}
	if cfg.Sources.WebSearch.Primary != "serper" || cfg.Sources.WebSearch.Secondary != "duckduckgo" {
		t.Fatalf("unexpected providers: %q/%q", cfg.Sources.WebSearch.Primary, cfg.Sources.WebSearch.Secondary)
	}
	if cfg.Research.EvidenceConcurrency != 1 {
		t.Fatalf("evidence_concurrency = %d, want 1", cfg.Research.EvidenceConcurrency)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"llm": {"provider": "gemini", "model": "gemini-1.5-flash", "timeout": "30s"},
		"sources": {"web_search": {"primary": "brave", "secondary": "serper", "timeout": "4s"}},
		"research": {"question_count": 4, "max_revisions": 0},
		"schedules": [{"name": "daily", "query": "fusion power", "cron": "0 7 * * *"}]
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("unexpected llm config: %#v", cfg.LLM)
	}
	if cfg.Sources.WebSearch.Timeout != 4*time.Second {
		t.Fatalf("timeout = %s, want 4s", cfg.Sources.WebSearch.Timeout)
	}
	if cfg.Research.QuestionCount != 4 || cfg.Research.MaxRevisions != 0 {
		t.Fatalf("unexpected research config: %#v", cfg.Research)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Query != "fusion power" {
		t.Fatalf("unexpected schedules: %#v", cfg.Schedules)
	}
}

func TestLoadEnvFallbacks(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-vendor")
	t.Setenv("SERPER_API_KEY", "serper-vendor")
	t.Setenv("RESEARCHER_SOURCES_WEB_SEARCH_BRAVE_API_KEY", "brave-prefixed")
	t.Setenv("TAVILY_API_KEY", "tvly-vendor")
	t.Setenv("RESEARCHER_RESEARCH_QUESTION_COUNT", "7")

	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "sk-vendor" {
		t.Fatalf("llm api key = %q, want vendor fallback", cfg.LLM.APIKey)
	}
	if got := cfg.Sources.WebSearch.APIKey("serper"); got != "serper-vendor" {
		t.Fatalf("serper key = %q", got)
	}
	if got := cfg.Sources.WebSearch.APIKey("brave"); got != "brave-prefixed" {
		t.Fatalf("brave key = %q", got)
	}
	if got := cfg.Sources.WebSearch.APIKey("tavily"); got != "tvly-vendor" {
		t.Fatalf("tavily key = %q", got)
	}
	if cfg.Research.QuestionCount != 7 {
		t.Fatalf("question_count = %d, want 7", cfg.Research.QuestionCount)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{
			LLM: LLMConfig{Provider: "openai", Model: "m", Timeout: time.Second},
			Sources: SourcesConfig{WebSearch: WebSearchConfig{
				Primary: "serper", Secondary: "duckduckgo", MaxResults: 5, Timeout: time.Second,
			}},
			Research: ResearchConfig{QuestionCount: 10, MaxRevisions: 3},
		}
	}

	valid := base()
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	cases := map[string]func(*Config){
		"unknown llm":        func(c *Config) { c.LLM.Provider = "mystery" },
		"same providers":     func(c *Config) { c.Sources.WebSearch.Secondary = "serper" },
		"zero questions":     func(c *Config) { c.Research.QuestionCount = 0 },
		"negative revisions": func(c *Config) { c.Research.MaxRevisions = -1 },
		"negative preview":   func(c *Config) { c.Research.FactPreview = -1 },
		"negative timeout":   func(c *Config) { c.Research.StageTimeout = -time.Second },
		"schedule no cron":   func(c *Config) { c.Schedules = []ScheduleConfig{{Query: "q"}} },
		"postgres no db":     func(c *Config) { c.Storage.Postgres.Host = "localhost" },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "research"}
	if got, want := p.DSN(), "postgres://u:p@db:5432/research?sslmode=disable"; got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
	p.URL = "postgres://override"
	if got := p.DSN(); got != "postgres://override" {
		t.Fatalf("DSN() = %q, want url override", got)
	}
}
