package scoring

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
	"github.com/haasonsaas/stethoscope/pkg/validate"
)

type rule func(e *Engine, res *validate.Result) []Finding

// rules run in this order; ties in severity keep it.
var rules = []rule{
	sshRootLogin,
	sshPasswordAuth,
	firewall,
	packageUpdates,
	highLoad,
	lowMemory,
	diskPressure,
	highCPU,
	degradedSections,
	anomalies,
}

// The validator lowercases security tokens.
var unknownToken = strings.ToLower(snapshot.Unknown)

func sshRootLogin(e *Engine, res *validate.Result) []Finding {
	switch v := res.Snapshot.Security.SSHPermitRootLogin; v {
	case "yes":
		return []Finding{{
			RuleID:         "SSH_ROOT_LOGIN",
			Severity:       SeverityCritical,
			Message:        "SSH permits direct root login (PermitRootLogin yes)",
			PointsDeducted: e.weights.RootLogin,
		}}
	case "no", "prohibit-password", "without-password", "forced-commands-only", snapshot.NotSet, unknownToken:
		return nil
	default:
		return []Finding{unexpected("security.ssh_permit_root_login", v)}
	}
}

func sshPasswordAuth(e *Engine, res *validate.Result) []Finding {
	switch v := res.Snapshot.Security.SSHPasswordAuth; v {
	case "yes":
		return []Finding{{
			RuleID:         "SSH_PASSWORD_AUTH",
			Severity:       SeverityWarning,
			Message:        "SSH accepts password authentication; key-only login is safer",
			PointsDeducted: e.weights.PasswordAuth,
		}}
	case snapshot.NotSet:
		return []Finding{{
			RuleID:   "SSH_PASSWORD_AUTH_DEFAULT",
			Severity: SeverityInfo,
			Message:  "PasswordAuthentication is not set explicitly; the sshd default applies",
		}}
	case "no", unknownToken:
		return nil
	default:
		return []Finding{unexpected("security.ssh_password_auth", v)}
	}
}

// firewall deducts for every status other than a known active front-end,
// so an unrecognized token counts as no firewall.
func firewall(e *Engine, res *validate.Result) []Finding {
	msg := "No active host firewall was detected"
	switch status := res.Snapshot.Security.FirewallStatus; status {
	case snapshot.FirewallUFW, snapshot.FirewalldActive:
		return nil
	case snapshot.FirewallInactive:
	default:
		msg = fmt.Sprintf("Firewall status %q is not a recognized active firewall", status)
	}
	return []Finding{{
		RuleID:         "FIREWALL_INACTIVE",
		Severity:       SeverityCritical,
		Message:        msg,
		PointsDeducted: e.weights.FirewallInactive,
	}}
}

var securityPackages = []string{"openssh-server", "openssh", "openssh-client", "openssl", "sudo", "libc6", "glibc", "systemd"}

var securityPackagePrefixes = []string{"libssl", "linux-image", "kernel", "polkit"}

// IsSecurityPackage reports whether an update to the named package is
// treated as security relevant.
func IsSecurityPackage(name string) bool {
	name = strings.ToLower(name)
	for _, p := range securityPackages {
		if name == p {
			return true
		}
	}
	for _, p := range securityPackagePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func packageUpdates(e *Engine, res *validate.Result) []Finding {
	var security, other []string
	for _, p := range res.Snapshot.PackageUpdates {
		if IsSecurityPackage(p.Name) {
			security = append(security, p.Name)
		} else {
			other = append(other, p.Name)
		}
	}

	var findings []Finding
	if len(security) > 0 {
		points := len(security) * e.weights.SecurityUpdate
		if points > e.weights.SecurityUpdatesCap {
			points = e.weights.SecurityUpdatesCap
		}
		findings = append(findings, Finding{
			RuleID:         "SECURITY_UPDATES",
			Severity:       SeverityWarning,
			Message:        fmt.Sprintf("%d security-relevant package update(s) pending: %s", len(security), strings.Join(security, ", ")),
			PointsDeducted: points,
		})
	}
	if len(other) > 0 {
		findings = append(findings, Finding{
			RuleID:   "PENDING_UPDATES",
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%d other package update(s) pending", len(other)),
		})
	}
	return findings
}

func highLoad(e *Engine, res *validate.Result) []Finding {
	s := res.Snapshot
	if s.Hardware.CPUCores <= 0 || len(s.Performance.LoadAverage) == 0 {
		return nil
	}
	perCore := s.Performance.LoadAverage[0] / float64(s.Hardware.CPUCores)
	if perCore < e.thresholds.LoadPerCore {
		return nil
	}
	return []Finding{{
		RuleID:         "HIGH_LOAD",
		Severity:       SeverityWarning,
		Message:        fmt.Sprintf("1-minute load average %.2f is %.2fx the %d available cores", s.Performance.LoadAverage[0], perCore, s.Hardware.CPUCores),
		PointsDeducted: e.weights.HighLoad,
	}}
}

func lowMemory(e *Engine, res *validate.Result) []Finding {
	mem := res.Snapshot.Memory
	if mem.TotalKB <= 0 {
		return nil
	}
	ratio := float64(mem.AvailableKB) / float64(mem.TotalKB)
	if ratio >= e.thresholds.MinAvailableMemory {
		return nil
	}
	return []Finding{{
		RuleID:         "LOW_MEMORY",
		Severity:       SeverityWarning,
		Message:        fmt.Sprintf("Only %.1f%% of memory is available", ratio*100),
		PointsDeducted: e.weights.LowMemory,
	}}
}

func diskPressure(e *Engine, res *validate.Result) []Finding {
	var mounts []string
	for _, d := range res.Snapshot.DiskUsage {
		if d.UsePercent >= e.thresholds.DiskUsePercent {
			mounts = append(mounts, fmt.Sprintf("%s (%.0f%%)", d.MountPoint, d.UsePercent))
		}
	}
	if len(mounts) == 0 {
		return nil
	}
	points := len(mounts) * e.weights.DiskPressure
	if points > e.weights.DiskPressureCap {
		points = e.weights.DiskPressureCap
	}
	return []Finding{{
		RuleID:         "DISK_PRESSURE",
		Severity:       SeverityWarning,
		Message:        "Filesystems nearly full: " + strings.Join(mounts, ", "),
		PointsDeducted: points,
	}}
}

func highCPU(e *Engine, res *validate.Result) []Finding {
	cpu := res.Snapshot.Performance.CPUUsagePercent
	if cpu < e.thresholds.CPUUsagePercent {
		return nil
	}
	return []Finding{{
		RuleID:         "HIGH_CPU",
		Severity:       SeverityWarning,
		Message:        fmt.Sprintf("CPU is %.1f%% busy", cpu),
		PointsDeducted: e.weights.HighCPU,
	}}
}

// degradedSections flags sections that carry the collector's failure
// sentinels. Package updates are skipped: an empty list is also what a
// fully patched host reports.
func degradedSections(_ *Engine, res *validate.Result) []Finding {
	s := res.Snapshot
	checks := []struct {
		section  string
		degraded bool
	}{
		{"os_info", isUnknown(s.OSInfo.Distro) || isUnknown(s.OSInfo.Kernel) || isUnknown(s.OSInfo.Hostname)},
		{"hardware", isUnknown(s.Hardware.CPUModel) || s.Hardware.CPUCores == 0},
		{"performance", s.Performance.UptimeSeconds == 0 && s.Performance.ProcessCount == 0},
		{"memory", s.Memory.TotalKB == 0},
		{"disk_usage", len(s.DiskUsage) == 0},
		{"security", isUnknown(s.Security.SSHPermitRootLogin) || isUnknown(s.Security.SSHPasswordAuth)},
		{"top_processes", len(s.TopProcesses) == 0},
	}

	var findings []Finding
	for _, c := range checks {
		if !c.degraded {
			continue
		}
		findings = append(findings, Finding{
			RuleID:   "DEGRADED_" + strings.ToUpper(c.section),
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("Section %s could not be fully collected; related checks may be incomplete", c.section),
		})
	}
	return findings
}

func anomalies(_ *Engine, res *validate.Result) []Finding {
	var findings []Finding
	for _, a := range res.Anomalies {
		msg := fmt.Sprintf("Field %s had unexpected value", a.Field)
		if a.Value != "" {
			msg += fmt.Sprintf(" %q", a.Value)
		}
		findings = append(findings, Finding{
			RuleID:   "UNEXPECTED_VALUE",
			Severity: SeverityInfo,
			Message:  msg + ": " + a.Message,
		})
	}
	return findings
}

func unexpected(field, value string) Finding {
	return Finding{
		RuleID:   "UNEXPECTED_VALUE",
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("Field %s had unexpected value %q", field, value),
	}
}

func isUnknown(s string) bool {
	return strings.EqualFold(s, snapshot.Unknown)
}
