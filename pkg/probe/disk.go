package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
)

// pseudoDevices are /dev-prefixed sources that are not real block storage.
var pseudoDevices = []string{"/dev/loop", "/dev/ram", "/dev/zram"}

// CollectDiskUsage lists block-device-backed mounts in df order.
func CollectDiskUsage(ctx context.Context, h *Host) ([]snapshot.DiskEntry, error) {
	out, err := h.Run(ctx, "df", "-hPl")
	if err != nil && len(out) == 0 {
		return []snapshot.DiskEntry{}, fmt.Errorf("df: %w", err)
	}
	// df exits non-zero when a single mount is unreadable but still prints
	// the rest.
	return parseDF(string(out)), nil
}

func parseDF(out string) []snapshot.DiskEntry {
	entries := []snapshot.DiskEntry{}
	for i, line := range strings.Split(out, "\n") {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		fs := fields[0]
		if !isBlockDevice(fs) {
			continue
		}
		entries = append(entries, snapshot.DiskEntry{
			Filesystem: fs,
			Size:       fields[1],
			Used:       fields[2],
			Available:  fields[3],
			UsePercent: fields[4],
			MountPoint: strings.Join(fields[5:], " "),
		})
	}
	return entries
}

func isBlockDevice(fs string) bool {
	if !strings.HasPrefix(fs, "/dev/") {
		return false
	}
	for _, prefix := range pseudoDevices {
		if strings.HasPrefix(fs, prefix) {
			return false
		}
	}
	return true
}
