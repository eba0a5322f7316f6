package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
)

// idleRE matches the idle share of a top CPU summary line, with or without
// a "%" and at any decimal precision: "96.9 id", "98.2%id", "97 id".
var idleRE = regexp.MustCompile(`([0-9]+(?:[.,][0-9]+)?)\s*%?\s*id\b`)

func CollectPerformance(ctx context.Context, h *Host) (snapshot.Performance, error) {
	perf := snapshot.UnknownPerformance()
	var errs []error

	if load, err := readLoadAverage(h); err != nil {
		errs = append(errs, err)
	} else {
		perf.LoadAverage = load
	}

	if uptime, err := readUptime(h); err != nil {
		errs = append(errs, err)
	} else {
		perf.UptimeSeconds = uptime
	}

	if count, err := countProcesses(h); err != nil {
		errs = append(errs, err)
	} else {
		perf.ProcessCount = count
	}

	if busy, err := sampleCPUBusy(ctx, h); err != nil {
		errs = append(errs, err)
	} else {
		perf.CPUUsagePercent = busy
	}

	return perf, errors.Join(errs...)
}

func readLoadAverage(h *Host) ([]float64, error) {
	data, err := h.ReadFile("/proc/loadavg")
	if err != nil {
		return nil, fmt.Errorf("read loadavg: %w", err)
	}
	fields := strings.Fields(data)
	if len(fields) < 3 {
		return nil, fmt.Errorf("loadavg: unexpected format %q", strings.TrimSpace(data))
	}
	load := make([]float64, 3)
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("loadavg field %d: %w", i, err)
		}
		load[i] = v
	}
	return load, nil
}

func readUptime(h *Host) (int64, error) {
	data, err := h.ReadFile("/proc/uptime")
	if err != nil {
		return 0, fmt.Errorf("read uptime: %w", err)
	}
	fields := strings.Fields(data)
	if len(fields) == 0 {
		return 0, errors.New("uptime: empty")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("uptime: %w", err)
	}
	return int64(v), nil
}

func countProcesses(h *Host) (int, error) {
	entries, err := os.ReadDir(h.Path("/proc"))
	if err != nil {
		return 0, fmt.Errorf("read proc: %w", err)
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(e.Name()); err == nil {
			count++
		}
	}
	return count, nil
}

// sampleCPUBusy runs two top iterations; the first reports averages since
// boot so only the last summary line is used.
func sampleCPUBusy(ctx context.Context, h *Host) (float64, error) {
	out, err := h.Run(ctx, "top", "-b", "-n", "2", "-d", "0.5")
	if err != nil {
		return 0, fmt.Errorf("top: %w", err)
	}
	idle, ok := parseIdle(string(out))
	if !ok {
		return 0, errors.New("top: idle percentage not found")
	}
	return busyFromIdle(idle), nil
}

func parseIdle(out string) (float64, bool) {
	var idle float64
	found := false
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "Cpu") {
			continue
		}
		m := idleRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil {
			continue
		}
		idle = v
		found = true
	}
	return idle, found
}

func busyFromIdle(idle float64) float64 {
	busy := 100 - idle
	if busy < 0 {
		busy = 0
	}
	if busy > 100 {
		busy = 100
	}
	return math.Round(busy*10) / 10
}
