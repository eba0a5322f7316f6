package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/stethoscope/pkg/codec"
	"github.com/haasonsaas/stethoscope/pkg/validate"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestRunPrintsOneDecodableLine(t *testing.T) {
	var stdout, stderr bytes.Buffer
	getenv := envFrom(map[string]string{
		"STETHOSCOPE_ROOT":          t.TempDir(),
		"STETHOSCOPE_PROBE_TIMEOUT": "2s",
		"STETHOSCOPE_LOG_LEVEL":     "debug",
	})

	if code := run(context.Background(), getenv, &stdout, &stderr); code != 0 {
		t.Fatalf("run() = %d, stderr:\n%s", code, stderr.String())
	}

	out := stdout.String()
	if strings.Count(out, "\n") != 1 || !strings.HasSuffix(out, "\n") {
		t.Fatalf("stdout should be exactly one line, got %q", out)
	}
	line := strings.TrimSpace(out)
	if _, err := codec.DecodeSnapshot(line); err != nil {
		t.Fatalf("DecodeSnapshot() error: %v", err)
	}
	if _, err := validate.Validate(line); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !strings.Contains(stderr.String(), "Collection finished") {
		t.Errorf("expected debug log on stderr, got:\n%s", stderr.String())
	}
}

func TestRunRejectsBadEnvironment(t *testing.T) {
	var stdout, stderr bytes.Buffer
	getenv := envFrom(map[string]string{"STETHOSCOPE_TOP_N": "500"})

	if code := run(context.Background(), getenv, &stdout, &stderr); code != 2 {
		t.Fatalf("run() = %d, want 2", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout should be empty, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "STETHOSCOPE_TOP_N") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
