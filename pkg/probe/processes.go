package probe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
)

// CollectTopProcesses returns the union of the top-N processes by CPU and
// by memory, CPU ranking first, with no pid repeated.
func CollectTopProcesses(ctx context.Context, h *Host) ([]snapshot.ProcessEntry, error) {
	byCPU, cpuErr := topProcesses(ctx, h, "-%cpu")
	byMem, memErr := topProcesses(ctx, h, "-%mem")
	merged := MergeTopProcesses(byCPU, byMem)
	return merged, errors.Join(cpuErr, memErr)
}

func topProcesses(ctx context.Context, h *Host, sortKey string) ([]snapshot.ProcessEntry, error) {
	out, err := h.Run(ctx, "ps", "-eo", "pid=,user=,%cpu=,%mem=,comm=", "--sort="+sortKey)
	if err != nil {
		return nil, fmt.Errorf("ps --sort=%s: %w", sortKey, err)
	}
	procs := parsePS(string(out))
	if len(procs) > h.TopN {
		procs = procs[:h.TopN]
	}
	return procs, nil
}

func parsePS(out string) []snapshot.ProcessEntry {
	var procs []snapshot.ProcessEntry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		procs = append(procs, snapshot.ProcessEntry{
			PID:        pid,
			User:       fields[1],
			CPUPercent: fields[2],
			MemPercent: fields[3],
			Command:    strings.Join(fields[4:], " "),
		})
	}
	return procs
}

// MergeTopProcesses concatenates the lists, keeping the first entry seen
// for each pid.
func MergeTopProcesses(lists ...[]snapshot.ProcessEntry) []snapshot.ProcessEntry {
	seen := make(map[int]bool)
	merged := []snapshot.ProcessEntry{}
	for _, list := range lists {
		for _, p := range list {
			if seen[p.PID] {
				continue
			}
			seen[p.PID] = true
			merged = append(merged, p)
		}
	}
	return merged
}
