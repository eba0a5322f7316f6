package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "/etc/stethoscope/server.yaml"

type ServerConfig struct {
	Server    HTTPConfig      `yaml:"server"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type HTTPConfig struct {
	Listen           string `yaml:"listen"`
	DBPath           string `yaml:"db_path"`
	AdminToken       string `yaml:"admin_token"`
	TokenSecret      string `yaml:"token_secret"`
	MaxBodyBytes     int64  `yaml:"max_body_bytes"`
	AnalyzePerMinute int    `yaml:"analyze_per_minute"`
	HistoryLimit     int    `yaml:"history_limit"`
}

type NarrativeConfig struct {
	Provider          string `yaml:"provider"`
	Endpoint          string `yaml:"endpoint"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	TimeoutS          int    `yaml:"timeout_s"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	RetryInitialMs    int    `yaml:"retry_initial_ms"`
	RetryMaxMs        int    `yaml:"retry_max_ms"`
	RetryMaxAttempts  int    `yaml:"retry_max_attempts"`
}

func (n NarrativeConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutS) * time.Second
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	Insecure    bool    `yaml:"insecure" json:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
	LogSpans    bool    `yaml:"log_spans" json:"log_spans"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Server: HTTPConfig{
			Listen:           ":8080",
			DBPath:           "stethoscope.db",
			MaxBodyBytes:     2 << 20,
			AnalyzePerMinute: 30,
			HistoryLimit:     50,
		},
		Narrative: NarrativeConfig{
			Provider:          "gemini",
			Endpoint:          "https://generativelanguage.googleapis.com",
			Model:             "gemini-1.5-flash",
			TimeoutS:          30,
			RequestsPerMinute: 30,
			RetryInitialMs:    500,
			RetryMaxMs:        5000,
			RetryMaxAttempts:  3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Load reads config from file with env var overrides. A missing file is
// not an error.
func Load(path string) (*ServerConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfig) applyEnv() error {
	strs := []struct {
		env string
		dst *string
	}{
		{"STETHOSCOPE_LISTEN", &c.Server.Listen},
		{"STETHOSCOPE_DB_PATH", &c.Server.DBPath},
		{"STETHOSCOPE_ADMIN_TOKEN", &c.Server.AdminToken},
		{"STETHOSCOPE_TOKEN_SECRET", &c.Server.TokenSecret},
		{"STETHOSCOPE_NARRATIVE_PROVIDER", &c.Narrative.Provider},
		{"STETHOSCOPE_NARRATIVE_ENDPOINT", &c.Narrative.Endpoint},
		{"STETHOSCOPE_NARRATIVE_MODEL", &c.Narrative.Model},
		{"STETHOSCOPE_LOG_LEVEL", &c.Logging.Level},
		{"STETHOSCOPE_TRACING_ENDPOINT", &c.Tracing.Endpoint},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	// GEMINI_API_KEY is also honored; the prefixed name wins.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Narrative.APIKey = key
	}
	if key := os.Getenv("STETHOSCOPE_NARRATIVE_API_KEY"); key != "" {
		c.Narrative.APIKey = key
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"STETHOSCOPE_ANALYZE_PER_MINUTE", &c.Server.AnalyzePerMinute},
		{"STETHOSCOPE_HISTORY_LIMIT", &c.Server.HistoryLimit},
		{"STETHOSCOPE_NARRATIVE_TIMEOUT_S", &c.Narrative.TimeoutS},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{fmt.Sprintf("%s: %q is not an integer", i.env, v)}
		}
		*i.dst = n
	}

	if v := os.Getenv("STETHOSCOPE_LOG_JSON"); v != "" {
		c.Logging.JSON, _ = strconv.ParseBool(v)
	}
	return nil
}

// Validate rejects unusable settings and fills zero values with defaults.
func (c *ServerConfig) Validate() error {
	if c.Server.Listen == "" {
		return ErrMissingListen
	}
	if c.Server.DBPath == "" {
		return ErrMissingDBPath
	}
	if c.Server.AdminToken != "" && len(c.Server.AdminToken) < 16 {
		return ErrWeakAdminToken
	}
	switch strings.ToLower(c.Narrative.Provider) {
	case "", "gemini":
		c.Narrative.Provider = "gemini"
	case "none":
		c.Narrative.Provider = "none"
	default:
		return &Error{fmt.Sprintf("unknown narrative provider %q", c.Narrative.Provider)}
	}

	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 2 << 20
	}
	if c.Server.AnalyzePerMinute < 0 {
		c.Server.AnalyzePerMinute = 0
	}
	if c.Server.HistoryLimit <= 0 {
		c.Server.HistoryLimit = 50
	}
	if c.Narrative.TimeoutS <= 0 {
		c.Narrative.TimeoutS = 30
	}
	if c.Narrative.RetryInitialMs <= 0 {
		c.Narrative.RetryInitialMs = 500
	}
	if c.Narrative.RetryMaxMs < c.Narrative.RetryInitialMs {
		c.Narrative.RetryMaxMs = c.Narrative.RetryInitialMs
	}
	if c.Narrative.RetryMaxAttempts < 0 {
		c.Narrative.RetryMaxAttempts = 0
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

var (
	ErrMissingListen  = &Error{"server listen address is required"}
	ErrMissingDBPath  = &Error{"server db_path is required"}
	ErrWeakAdminToken = &Error{"admin_token must be at least 16 characters"}
)

type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
