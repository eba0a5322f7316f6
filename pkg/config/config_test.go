package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Listen != ":8080" || cfg.Narrative.Model != "gemini-1.5-flash" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9000"
  db_path: /var/lib/stethoscope/reports.db
  history_limit: 20
narrative:
  model: gemini-test
  api_key: from-file
  timeout_s: 12
logging:
  level: debug
  json: true
`)
	t.Setenv("STETHOSCOPE_DB_PATH", "/tmp/override.db")
	t.Setenv("GEMINI_API_KEY", "from-gemini-env")
	t.Setenv("STETHOSCOPE_ANALYZE_PER_MINUTE", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}
	if cfg.Server.DBPath != "/tmp/override.db" {
		t.Errorf("DBPath = %q", cfg.Server.DBPath)
	}
	if cfg.Server.HistoryLimit != 20 || cfg.Server.AnalyzePerMinute != 7 {
		t.Errorf("limits = %d/%d", cfg.Server.HistoryLimit, cfg.Server.AnalyzePerMinute)
	}
	if cfg.Narrative.APIKey != "from-gemini-env" {
		t.Errorf("APIKey = %q", cfg.Narrative.APIKey)
	}
	if cfg.Narrative.Timeout() != 12*time.Second {
		t.Errorf("Timeout() = %v", cfg.Narrative.Timeout())
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Narrative.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d", cfg.Narrative.RetryMaxAttempts)
	}
}

func TestPrefixedAPIKeyWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "plain")
	t.Setenv("STETHOSCOPE_NARRATIVE_API_KEY", "prefixed")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Narrative.APIKey != "prefixed" {
		t.Errorf("APIKey = %q", cfg.Narrative.APIKey)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [not, a, map]")); err == nil {
		t.Error("expected yaml error")
	}

	t.Setenv("STETHOSCOPE_HISTORY_LIMIT", "lots")
	_, err := Load("")
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr error
	}{
		{name: "defaults", mutate: func(c *ServerConfig) {}},
		{name: "missing listen", mutate: func(c *ServerConfig) { c.Server.Listen = "" }, wantErr: ErrMissingListen},
		{name: "missing db", mutate: func(c *ServerConfig) { c.Server.DBPath = "" }, wantErr: ErrMissingDBPath},
		{name: "short admin token", mutate: func(c *ServerConfig) { c.Server.AdminToken = "abc" }, wantErr: ErrWeakAdminToken},
		{name: "provider none", mutate: func(c *ServerConfig) { c.Narrative.Provider = "None" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Narrative.Provider = "openai"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown provider should be rejected")
	}

	cfg = DefaultConfig()
	cfg.Server.MaxBodyBytes = 0
	cfg.Server.HistoryLimit = -1
	cfg.Tracing.SampleRatio = 4
	cfg.Narrative.RetryMaxMs = 1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Server.MaxBodyBytes != 2<<20 || cfg.Server.HistoryLimit != 50 || cfg.Tracing.SampleRatio != 1 {
		t.Errorf("defaults not filled: %+v", cfg)
	}
	if cfg.Narrative.RetryMaxMs != cfg.Narrative.RetryInitialMs {
		t.Errorf("RetryMaxMs = %d", cfg.Narrative.RetryMaxMs)
	}
}

func TestLoadCollector(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}

	cfg, err := LoadCollector(env(nil))
	if err != nil {
		t.Fatalf("LoadCollector() error: %v", err)
	}
	if cfg != DefaultCollectorConfig() {
		t.Errorf("defaults = %+v", cfg)
	}

	cfg, err = LoadCollector(env(map[string]string{
		"STETHOSCOPE_PROBE_TIMEOUT": "750ms",
		"STETHOSCOPE_LOCALE":        "POSIX",
		"STETHOSCOPE_TOP_N":         "10",
		"STETHOSCOPE_LOG_LEVEL":     "DEBUG",
	}))
	if err != nil {
		t.Fatalf("LoadCollector() error: %v", err)
	}
	if cfg.ProbeTimeout != 750*time.Millisecond || cfg.Locale != "POSIX" || cfg.TopN != 10 || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg, err = LoadCollector(env(map[string]string{"STETHOSCOPE_PROBE_TIMEOUT": "2"}))
	if err != nil || cfg.ProbeTimeout != 2*time.Second {
		t.Errorf("plain seconds: %+v, %v", cfg, err)
	}

	for _, bad := range []map[string]string{
		{"STETHOSCOPE_PROBE_TIMEOUT": "soon"},
		{"STETHOSCOPE_PROBE_TIMEOUT": "-1s"},
		{"STETHOSCOPE_TOP_N": "0"},
		{"STETHOSCOPE_TOP_N": "many"},
	} {
		if _, err := LoadCollector(env(bad)); err == nil {
			t.Errorf("LoadCollector(%v) should fail", bad)
		}
	}
}
