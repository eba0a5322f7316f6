// Package probe gathers read-only facts about the local Linux host.
//
// Probes only read pseudo-files and run query commands. Every probe is
// fallible and degrades to a sentinel instead of failing the pass.
package probe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Executor runs query commands on the host.
type Executor interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

// Host is the view of the machine a collection pass reads from. Locale is
// threaded into every command so output parses the same on every host.
type Host struct {
	Root         string
	Locale       string
	ProbeTimeout time.Duration
	TopN         int
	Exec         Executor
}

// Options configure a Host.
type Options struct {
	Root         string
	Locale       string
	ProbeTimeout time.Duration
	TopN         int
	Exec         Executor
}

func NewHost(opts Options) *Host {
	h := &Host{
		Root:         opts.Root,
		Locale:       opts.Locale,
		ProbeTimeout: opts.ProbeTimeout,
		TopN:         opts.TopN,
		Exec:         opts.Exec,
	}
	if h.Root == "" {
		h.Root = "/"
	}
	if h.Locale == "" {
		h.Locale = "C"
	}
	if h.ProbeTimeout <= 0 {
		h.ProbeTimeout = 5 * time.Second
	}
	if h.TopN <= 0 {
		h.TopN = 5
	}
	if h.Exec == nil {
		h.Exec = execExecutor{}
	}
	return h
}

// Path resolves an absolute host path against Root.
func (h *Host) Path(p string) string {
	return filepath.Join(h.Root, p)
}

func (h *Host) ReadFile(p string) (string, error) {
	data, err := os.ReadFile(h.Path(p))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (h *Host) ReadLines(p string) ([]string, error) {
	data, err := h.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimRight(data, "\n"), "\n"), nil
}

// searchPath is the PATH every command is resolved against, for detection
// and execution alike.
const searchPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Has reports whether a command is available on the pinned PATH.
func (h *Host) Has(name string) bool {
	_, err := h.lookPath(name)
	return err == nil
}

// Run executes a query command with the pinned locale. The command is
// resolved the same way Has resolves it.
func (h *Host) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := h.lookPath(name)
	if err != nil {
		return nil, err
	}
	return h.Exec.Run(ctx, h.env(), path, args...)
}

func (h *Host) lookPath(name string) (string, error) {
	if strings.Contains(name, "/") {
		return h.Exec.LookPath(name)
	}
	for _, dir := range filepath.SplitList(searchPath) {
		if path, err := h.Exec.LookPath(filepath.Join(dir, name)); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s: not found in %s", name, searchPath)
}

func (h *Host) env() []string {
	return []string{
		"LC_ALL=" + h.Locale,
		"LANG=" + h.Locale,
		"LANGUAGE=" + h.Locale,
		"PATH=" + searchPath,
	}
}

type execExecutor struct{}

func (execExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (execExecutor) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	return cmd.Output()
}
