package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
)

func CollectHardware(_ context.Context, h *Host) (snapshot.Hardware, error) {
	hw := snapshot.UnknownHardware()
	var errs []error

	lines, err := h.ReadLines("/proc/cpuinfo")
	if err != nil {
		errs = append(errs, fmt.Errorf("read cpuinfo: %w", err))
	} else {
		model, cores := parseCPUInfo(lines)
		if model != "" {
			hw.CPUModel = model
		}
		hw.CPUCores = cores
		if cores == 0 {
			errs = append(errs, errors.New("cpuinfo: no processor entries"))
		}
	}

	meminfo, err := readMeminfo(h)
	if err != nil {
		errs = append(errs, err)
	} else {
		hw.TotalRAMKB = meminfo["MemTotal"]
	}

	return hw, errors.Join(errs...)
}

// parseCPUInfo returns the first model name and the logical processor count.
func parseCPUInfo(lines []string) (string, int) {
	var model string
	var cores int
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "processor":
			cores++
		case "model name", "Model", "cpu model":
			if model == "" {
				model = strings.Join(strings.Fields(value), " ")
			}
		}
	}
	return model, cores
}
