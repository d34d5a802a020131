package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig    `mapstructure:"general"`
	Server    ServerConfig     `mapstructure:"server"`
	LLM       LLMConfig        `mapstructure:"llm"`
	Sources   SourcesConfig    `mapstructure:"sources"`
	Research  ResearchConfig   `mapstructure:"research"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Telemetry TelemetryConfig  `mapstructure:"telemetry"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"` // text or json
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string            `mapstructure:"address"`
	JWTSecret string            `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration     `mapstructure:"token_ttl"`
	Clients   map[string]string `mapstructure:"clients"` // client name -> bcrypt hash of its secret
}

// AuthEnabled reports whether API routes require a bearer token.
func (s ServerConfig) AuthEnabled() bool {
	return strings.TrimSpace(s.JWTSecret) != ""
}

// LLMConfig selects the text transformation backend
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai or gemini
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider must be openai or gemini, got %q", l.Provider)
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model required")
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries cannot be negative")
	}
	if l.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be greater than zero")
	}
	return nil
}

// SourcesConfig contains evidence source configurations
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Primary         string        `mapstructure:"primary"`
	Secondary       string        `mapstructure:"secondary"`
	SerperAPIKey    string        `mapstructure:"serper_api_key"`
	BraveAPIKey     string        `mapstructure:"brave_api_key"`
	TavilyAPIKey    string        `mapstructure:"tavily_api_key"`
	MaxResults      int           `mapstructure:"max_results"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MinInterval     time.Duration `mapstructure:"min_interval"`
	EnrichTopResult bool          `mapstructure:"enrich_top_result"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// APIKey returns the configured key for a search provider name.
func (w WebSearchConfig) APIKey(provider string) string {
	switch provider {
	case "serper":
		return w.SerperAPIKey
	case "brave":
		return w.BraveAPIKey
	case "tavily":
		return w.TavilyAPIKey
	default:
		return ""
	}
}

func (w WebSearchConfig) Validate() error {
	if strings.TrimSpace(w.Primary) == "" {
		return fmt.Errorf("sources.web_search.primary required")
	}
	if w.Primary == w.Secondary {
		return fmt.Errorf("sources.web_search.secondary must differ from primary")
	}
	if w.MaxResults <= 0 {
		return fmt.Errorf("sources.web_search.max_results must be greater than zero")
	}
	if w.Timeout <= 0 {
		return fmt.Errorf("sources.web_search.timeout must be greater than zero")
	}
	return nil
}

// ResearchConfig tunes the research workflow
type ResearchConfig struct {
	QuestionCount       int           `mapstructure:"question_count"`
	MaxRevisions        int           `mapstructure:"max_revisions"` // 0 disables the guard
	EvidenceDelay       time.Duration `mapstructure:"evidence_delay"`
	EvidenceConcurrency int           `mapstructure:"evidence_concurrency"`
	FactPreview         int           `mapstructure:"fact_preview"`  // 0 selects the default of 3
	StageTimeout        time.Duration `mapstructure:"stage_timeout"` // per service call; evidence gathering is not covered
}

func (r ResearchConfig) Validate() error {
	if r.QuestionCount <= 0 {
		return fmt.Errorf("research.question_count must be greater than zero")
	}
	if r.MaxRevisions < 0 {
		return fmt.Errorf("research.max_revisions cannot be negative")
	}
	if r.EvidenceDelay < 0 {
		return fmt.Errorf("research.evidence_delay cannot be negative")
	}
	if r.FactPreview < 0 {
		return fmt.Errorf("research.fact_preview cannot be negative")
	}
	if r.StageTimeout < 0 {
		return fmt.Errorf("research.stage_timeout cannot be negative")
	}
	return nil
}

// Normalize applies defaults for unset research values.
func (r ResearchConfig) Normalize() ResearchConfig {
	if r.EvidenceConcurrency <= 0 {
		r.EvidenceConcurrency = 1
	}
	return r
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	// IndexPath holds the on-disk brief search index; empty keeps it in memory.
	IndexPath string `mapstructure:"index_path"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Stream       string        `mapstructure:"stream"`
	StreamMaxLen int64         `mapstructure:"stream_max_len"`
}

// Enabled reports whether Redis has been configured at all.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Enabled reports whether Postgres has been configured at all.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN builds a connection string from either url or discrete fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) == "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// TelemetryConfig contains metrics and log output settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	LogFile      string `mapstructure:"log_file"`
	// OTLPEndpoint is a host:port OTLP/gRPC collector; empty disables tracing.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port cannot be negative")
	}
	return nil
}

// ScheduleConfig describes a recurring research query.
type ScheduleConfig struct {
	Name  string `mapstructure:"name"`
	Query string `mapstructure:"query"`
	Cron  string `mapstructure:"cron"`
}

// vendorKeys maps config keys to the conventional vendor env vars used as fallbacks.
var vendorKeys = map[string]string{
	"sources.web_search.serper_api_key": "SERPER_API_KEY",
	"sources.web_search.brave_api_key":  "BRAVE_API_KEY",
	"sources.web_search.tavily_api_key": "TAVILY_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "text")
	v.SetDefault("general.default_timeout", 2*time.Minute)
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.timeout", 90*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("sources.web_search.primary", "serper")
	v.SetDefault("sources.web_search.secondary", "duckduckgo")
	v.SetDefault("sources.web_search.max_results", 5)
	v.SetDefault("sources.web_search.timeout", 10*time.Second)
	v.SetDefault("sources.web_search.min_interval", time.Second)
	v.SetDefault("sources.web_search.breaker.failure_threshold", 5)
	v.SetDefault("sources.web_search.breaker.cooldown", 30*time.Second)
	v.SetDefault("research.question_count", 10)
	v.SetDefault("research.max_revisions", 3)
	v.SetDefault("research.evidence_delay", time.Second)
	v.SetDefault("research.evidence_concurrency", 1)
	v.SetDefault("research.fact_preview", 3)
	v.SetDefault("research.stage_timeout", 3*time.Minute)
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.redis.stream", "researcher:events")
	v.SetDefault("storage.redis.stream_max_len", 10000)
}

// Load reads configuration from file (optional) and environment.
// A missing config file is not an error when no explicit path is given.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("RESEARCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// keys only reachable through AutomaticEnv need an explicit binding for Unmarshal
	for _, key := range []string{"llm.api_key", "llm.base_url", "server.jwt_secret", "storage.postgres.url", "storage.redis.host", "storage.redis.password", "storage.index_path", "telemetry.log_file", "telemetry.otlp_endpoint"} {
		_ = v.BindEnv(key)
	}
	for key, env := range vendorKeys {
		_ = v.BindEnv(key, "RESEARCHER_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Research = cfg.Research.Normalize()
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = vendorLLMKey(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig is Load for command entry points; it panics on invalid configuration.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Sources.WebSearch.Validate(); err != nil {
		return err
	}
	if err := c.Research.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Postgres.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Query) == "" || strings.TrimSpace(s.Cron) == "" {
			return fmt.Errorf("schedules[%d]: query and cron required", i)
		}
	}
	return nil
}

func vendorLLMKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}
