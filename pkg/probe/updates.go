package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
)

// packageManager is one entry of the update-source precedence list.
type packageManager struct {
	name  string
	list  func(ctx context.Context, h *Host) ([]byte, error)
	parse func(out string) []string
}

var packageManagers = []packageManager{
	{
		name: "apt",
		list: func(ctx context.Context, h *Host) ([]byte, error) {
			return h.Run(ctx, "apt", "list", "--upgradable")
		},
		parse: parseAptUpgradable,
	},
	{
		name:  "dnf",
		list:  rpmCheckUpdate("dnf"),
		parse: parseRPMCheckUpdate,
	},
	{
		name:  "yum",
		list:  rpmCheckUpdate("yum"),
		parse: parseRPMCheckUpdate,
	},
}

// CollectPackageUpdates queries the first package manager found. The
// result is "name version" entries joined by snapshot.PackageSeparator.
func CollectPackageUpdates(ctx context.Context, h *Host) (string, error) {
	for _, pm := range packageManagers {
		if !h.Has(pm.name) {
			continue
		}
		out, err := pm.list(ctx, h)
		if err != nil {
			return "", fmt.Errorf("%s: %w", pm.name, err)
		}
		return strings.Join(pm.parse(string(out)), snapshot.PackageSeparator), nil
	}
	return "", nil
}

// rpmCheckUpdate runs "<tool> check-update -q". Exit status 100 means
// updates are available and is not a failure.
func rpmCheckUpdate(tool string) func(ctx context.Context, h *Host) ([]byte, error) {
	return func(ctx context.Context, h *Host) ([]byte, error) {
		out, err := h.Run(ctx, tool, "check-update", "-q")
		var exitErr interface{ ExitCode() int }
		if err != nil && errors.As(err, &exitErr) && exitErr.ExitCode() == 100 {
			return out, nil
		}
		return out, err
	}
}

// parseAptUpgradable parses "name/suite version arch [upgradable from: x]".
func parseAptUpgradable(out string) []string {
	var pkgs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Listing") || strings.HasPrefix(line, "WARNING") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name, _, ok := strings.Cut(fields[0], "/")
		if !ok || name == "" {
			continue
		}
		pkgs = append(pkgs, name+" "+fields[1])
	}
	return pkgs
}

// parseRPMCheckUpdate parses "name.arch version repo" rows and stops at
// the obsoletes section.
func parseRPMCheckUpdate(out string) []string {
	var pkgs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Obsoleting") {
			break
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		name := fields[0]
		idx := strings.LastIndex(name, ".")
		if idx <= 0 {
			continue
		}
		pkgs = append(pkgs, name[:idx]+" "+fields[1])
	}
	return pkgs
}
