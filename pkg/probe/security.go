package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
)

const sshdConfigPath = "/etc/ssh/sshd_config"

// firewallFrontend is one entry of the firewall precedence list. detect
// reports whether the frontend exists; status reports whether it is active.
type firewallFrontend struct {
	name   string
	status string
	detect func(h *Host) bool
	active func(ctx context.Context, h *Host) bool
}

var firewallFrontends = []firewallFrontend{
	{
		name:   "ufw",
		status: snapshot.FirewallUFW,
		detect: func(h *Host) bool { return h.Has("ufw") },
		active: func(ctx context.Context, h *Host) bool {
			out, err := h.Run(ctx, "ufw", "status")
			return err == nil && strings.Contains(string(out), "Status: active")
		},
	},
	{
		name:   "firewalld",
		status: snapshot.FirewalldActive,
		detect: func(h *Host) bool { return h.Has("firewall-cmd") },
		active: func(ctx context.Context, h *Host) bool {
			out, err := h.Run(ctx, "firewall-cmd", "--state")
			return err == nil && strings.TrimSpace(string(out)) == "running"
		},
	},
}

func CollectSecurity(ctx context.Context, h *Host) (snapshot.Security, error) {
	sec := snapshot.UnknownSecurity()

	lines, err := h.ReadLines(sshdConfigPath)
	if err == nil {
		sec.SSHPermitRootLogin = sshdOption(lines, "PermitRootLogin")
		sec.SSHPasswordAuth = sshdOption(lines, "PasswordAuthentication")
	}

	sec.FirewallStatus = firewallStatus(ctx, h)

	if err != nil {
		return sec, fmt.Errorf("read sshd_config: %w", err)
	}
	return sec, nil
}

// sshdOption returns the lower-cased value of the first line whose keyword
// matches key case-insensitively, or not_set.
func sshdOption(lines []string, key string) string {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		keyword := fields[0]
		value := ""
		// sshd also accepts "Keyword=value".
		if k, v, ok := strings.Cut(keyword, "="); ok {
			keyword, value = k, v
		}
		if !strings.EqualFold(keyword, key) {
			continue
		}
		if value == "" && len(fields) > 1 {
			value = strings.TrimPrefix(fields[1], "=")
			if value == "" && len(fields) > 2 {
				value = fields[2]
			}
		}
		if value == "" {
			continue
		}
		return strings.ToLower(value)
	}
	return snapshot.NotSet
}

func firewallStatus(ctx context.Context, h *Host) string {
	for _, fw := range firewallFrontends {
		if !fw.detect(h) {
			continue
		}
		if fw.active(ctx, h) {
			return fw.status
		}
	}
	return snapshot.FirewallInactive
}
