package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CollectorConfig is read from the environment only; the collector takes
// no flags.
type CollectorConfig struct {
	ProbeTimeout time.Duration
	Locale       string
	TopN         int
	LogLevel     string
	Root         string
}

func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		ProbeTimeout: 5 * time.Second,
		Locale:       "C",
		TopN:         5,
		LogLevel:     "warn",
		Root:         "/",
	}
}

// LoadCollector reads STETHOSCOPE_* variables through getenv.
func LoadCollector(getenv func(string) string) (CollectorConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := DefaultCollectorConfig()

	if v := strings.TrimSpace(getenv("STETHOSCOPE_PROBE_TIMEOUT")); v != "" {
		d, err := parseDuration(v)
		if err != nil || d <= 0 {
			return cfg, &Error{fmt.Sprintf("STETHOSCOPE_PROBE_TIMEOUT: invalid duration %q", v)}
		}
		cfg.ProbeTimeout = d
	}
	if v := strings.TrimSpace(getenv("STETHOSCOPE_LOCALE")); v != "" {
		cfg.Locale = v
	}
	if v := strings.TrimSpace(getenv("STETHOSCOPE_TOP_N")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 50 {
			return cfg, &Error{fmt.Sprintf("STETHOSCOPE_TOP_N: must be between 1 and 50, got %q", v)}
		}
		cfg.TopN = n
	}
	if v := strings.TrimSpace(getenv("STETHOSCOPE_LOG_LEVEL")); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(getenv("STETHOSCOPE_ROOT")); v != "" {
		cfg.Root = v
	}
	return cfg, nil
}

// parseDuration accepts Go durations ("750ms") or plain seconds ("5").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}
