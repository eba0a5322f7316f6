package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
)

// CollectMemory takes every field from one read of /proc/meminfo so the
// values cannot skew against each other.
func CollectMemory(_ context.Context, h *Host) (snapshot.Memory, error) {
	kv, err := readMeminfo(h)
	if err != nil {
		return snapshot.Memory{}, err
	}

	mem := snapshot.Memory{
		TotalKB:     kv["MemTotal"],
		FreeKB:      kv["MemFree"],
		AvailableKB: kv["MemAvailable"],
		BuffersKB:   kv["Buffers"],
		CachedKB:    kv["Cached"],
	}
	if mem.TotalKB == 0 {
		return mem, fmt.Errorf("meminfo: MemTotal missing")
	}
	return mem, nil
}

func readMeminfo(h *Host) (map[string]int64, error) {
	lines, err := h.ReadLines("/proc/meminfo")
	if err != nil {
		return nil, fmt.Errorf("read meminfo: %w", err)
	}
	return parseMeminfo(lines), nil
}

// parseMeminfo parses "Key:   1234 kB" lines into KiB values.
func parseMeminfo(lines []string) map[string]int64 {
	kv := make(map[string]int64, len(lines))
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.TrimSuffix(value, "kB")
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			continue
		}
		kv[strings.TrimSpace(key)] = n
	}
	return kv
}
