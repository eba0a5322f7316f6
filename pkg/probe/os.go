package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
)

var releaseFiles = []string{"/etc/os-release", "/usr/lib/os-release"}

// CollectOSInfo reads distro identity from os-release plus kernel release
// and hostname. Each sub-field degrades on its own.
func CollectOSInfo(ctx context.Context, h *Host) (snapshot.OSInfo, error) {
	info := snapshot.UnknownOSInfo()
	var errs []error

	release, err := readRelease(h)
	if err != nil {
		errs = append(errs, err)
	} else {
		if name := release["NAME"]; name != "" {
			info.Distro = name
		}
		if version := release["VERSION_ID"]; version != "" {
			info.Version = version
		}
	}

	if kernel, err := readKernel(ctx, h); err != nil {
		errs = append(errs, err)
	} else {
		info.Kernel = kernel
	}

	if hostname, err := readHostname(ctx, h); err != nil {
		errs = append(errs, err)
	} else {
		info.Hostname = hostname
	}

	return info, errors.Join(errs...)
}

func readRelease(h *Host) (map[string]string, error) {
	var lastErr error
	for _, path := range releaseFiles {
		lines, err := h.ReadLines(path)
		if err != nil {
			lastErr = err
			continue
		}
		return parseRelease(lines), nil
	}
	return nil, fmt.Errorf("read os-release: %w", lastErr)
}

// parseRelease parses KEY=value lines, stripping quotes and comments.
func parseRelease(lines []string) map[string]string {
	kv := make(map[string]string, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if value == "" {
			continue
		}
		kv[strings.TrimSpace(key)] = value
	}
	return kv
}

func readKernel(ctx context.Context, h *Host) (string, error) {
	if data, err := h.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		if v := strings.TrimSpace(data); v != "" {
			return v, nil
		}
	}
	out, err := h.Run(ctx, "uname", "-r")
	if err != nil {
		return "", fmt.Errorf("kernel release: %w", err)
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "", errors.New("kernel release: empty output")
	}
	return v, nil
}

func readHostname(ctx context.Context, h *Host) (string, error) {
	if data, err := h.ReadFile("/proc/sys/kernel/hostname"); err == nil {
		if v := strings.TrimSpace(data); v != "" {
			return v, nil
		}
	}
	out, err := h.Run(ctx, "hostname")
	if err != nil {
		return "", fmt.Errorf("hostname: %w", err)
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "", errors.New("hostname: empty output")
	}
	return v, nil
}
