package scoring

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/stethoscope/pkg/codec"
	"github.com/haasonsaas/stethoscope/pkg/snapshot"
	"github.com/haasonsaas/stethoscope/pkg/validate"
)

func healthy() *validate.Result {
	return &validate.Result{
		Snapshot: &validate.Snapshot{
			OSInfo:   snapshot.OSInfo{Distro: "Ubuntu", Version: "22.04", Kernel: "5.15.0", Hostname: "web-01"},
			Hardware: snapshot.Hardware{CPUModel: "AMD EPYC", CPUCores: 4, TotalRAMKB: 8000000},
			Performance: snapshot.Performance{
				LoadAverage:     []float64{0.5, 0.4, 0.3},
				UptimeSeconds:   3600,
				ProcessCount:    120,
				CPUUsagePercent: 10,
			},
			Memory:    snapshot.Memory{TotalKB: 8000000, FreeKB: 1000000, AvailableKB: 4000000},
			DiskUsage: []validate.Disk{{Filesystem: "/dev/sda1", UsePercent: 40, MountPoint: "/"}},
			Security: snapshot.Security{
				SSHPermitRootLogin: "no",
				SSHPasswordAuth:    "no",
				FirewallStatus:     snapshot.FirewallUFW,
			},
			PackageUpdates: []validate.Package{},
			TopProcesses:   []validate.Process{{PID: 1, User: "root", Command: "systemd"}},
		},
		Anomalies: []validate.Anomaly{},
	}
}

func ruleIDs(r *Report) []string {
	ids := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		ids[i] = f.RuleID
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScoreHealthyHost(t *testing.T) {
	report := NewEngine().Score(healthy())
	if report.Score != 100 {
		t.Errorf("Score = %d, want 100", report.Score)
	}
	if len(report.Findings) != 0 {
		t.Errorf("Findings = %+v", report.Findings)
	}
}

func TestScoreExposedSSHWithoutFirewall(t *testing.T) {
	res := healthy()
	res.Snapshot.Security = snapshot.Security{
		SSHPermitRootLogin: "yes",
		SSHPasswordAuth:    "yes",
		FirewallStatus:     snapshot.FirewallInactive,
	}

	report := NewEngine().Score(res)

	if report.Score != 35 {
		t.Errorf("Score = %d, want 35", report.Score)
	}
	want := []string{"SSH_ROOT_LOGIN", "FIREWALL_INACTIVE", "SSH_PASSWORD_AUTH"}
	if got := ruleIDs(report); !equalStrings(got, want) {
		t.Fatalf("findings = %v, want %v", got, want)
	}
	wantSeverity := []Severity{SeverityCritical, SeverityCritical, SeverityWarning}
	wantPoints := []int{25, 25, 15}
	for i, f := range report.Findings {
		if f.Severity != wantSeverity[i] || f.PointsDeducted != wantPoints[i] {
			t.Errorf("finding %d = %+v", i, f)
		}
	}
}

func TestScoreAllSentinelSnapshot(t *testing.T) {
	line, err := codec.Encode(snapshot.Empty())
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	res, err := validate.Validate(line)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	report := NewEngine().Score(res)

	if report.Score != 75 {
		t.Errorf("Score = %d, want 75", report.Score)
	}
	want := []string{
		"FIREWALL_INACTIVE",
		"DEGRADED_OS_INFO",
		"DEGRADED_HARDWARE",
		"DEGRADED_PERFORMANCE",
		"DEGRADED_MEMORY",
		"DEGRADED_DISK_USAGE",
		"DEGRADED_SECURITY",
		"DEGRADED_TOP_PROCESSES",
	}
	if got := ruleIDs(report); !equalStrings(got, want) {
		t.Errorf("findings = %v, want %v", got, want)
	}
	for _, f := range report.Findings[1:] {
		if f.Severity != SeverityInfo || f.PointsDeducted != 0 {
			t.Errorf("degraded finding should be free info: %+v", f)
		}
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	res := healthy()
	res.Snapshot.Security.SSHPasswordAuth = "yes"
	res.Snapshot.PackageUpdates = []validate.Package{{Name: "curl"}, {Name: "sudo"}}
	res.Snapshot.DiskUsage = append(res.Snapshot.DiskUsage, validate.Disk{MountPoint: "/var", UsePercent: 97})
	res.Anomalies = []validate.Anomaly{{Field: "hardware.cpu_cores", Value: "x", Message: "unexpected value; defaulted to 0"}}

	engine := NewEngine()
	first, err := json.Marshal(engine.Score(res))
	if err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(engine.Score(res))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("reports differ:\n%s\n%s", first, second)
	}
}

func TestScoreOperationalRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *validate.Snapshot)
		rule   string
		points int
	}{
		{
			name:   "high load",
			mutate: func(s *validate.Snapshot) { s.Performance.LoadAverage = []float64{6, 5, 4} },
			rule:   "HIGH_LOAD",
			points: 5,
		},
		{
			name:   "low memory",
			mutate: func(s *validate.Snapshot) { s.Memory.AvailableKB = 400000 },
			rule:   "LOW_MEMORY",
			points: 5,
		},
		{
			name:   "disk pressure",
			mutate: func(s *validate.Snapshot) { s.DiskUsage[0].UsePercent = 90 },
			rule:   "DISK_PRESSURE",
			points: 5,
		},
		{
			name:   "high cpu",
			mutate: func(s *validate.Snapshot) { s.Performance.CPUUsagePercent = 99.5 },
			rule:   "HIGH_CPU",
			points: 5,
		},
		{
			name:   "pending updates",
			mutate: func(s *validate.Snapshot) { s.PackageUpdates = []validate.Package{{Name: "curl", Version: "7.81"}} },
			rule:   "PENDING_UPDATES",
			points: 0,
		},
		{
			name:   "password auth default",
			mutate: func(s *validate.Snapshot) { s.Security.SSHPasswordAuth = snapshot.NotSet },
			rule:   "SSH_PASSWORD_AUTH_DEFAULT",
			points: 0,
		},
		{
			name:   "unexpected root login token",
			mutate: func(s *validate.Snapshot) { s.Security.SSHPermitRootLogin = "sometimes" },
			rule:   "UNEXPECTED_VALUE",
			points: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := healthy()
			tt.mutate(res.Snapshot)
			report := NewEngine().Score(res)

			if len(report.Findings) != 1 {
				t.Fatalf("findings = %+v", report.Findings)
			}
			f := report.Findings[0]
			if f.RuleID != tt.rule || f.PointsDeducted != tt.points {
				t.Errorf("finding = %+v, want %s/%d", f, tt.rule, tt.points)
			}
			if report.Score != 100-tt.points {
				t.Errorf("Score = %d", report.Score)
			}
		})
	}
}

func TestScoreCapsRepeatedDeductions(t *testing.T) {
	res := healthy()
	res.Snapshot.PackageUpdates = []validate.Package{
		{Name: "openssh-server"}, {Name: "openssl"}, {Name: "libssl3"},
		{Name: "linux-image-generic"}, {Name: "sudo"}, {Name: "polkitd"},
	}
	res.Snapshot.DiskUsage = []validate.Disk{
		{MountPoint: "/", UsePercent: 95},
		{MountPoint: "/var", UsePercent: 91},
		{MountPoint: "/home", UsePercent: 100},
	}

	report := NewEngine().Score(res)

	points := map[string]int{}
	for _, f := range report.Findings {
		points[f.RuleID] = f.PointsDeducted
	}
	if points["SECURITY_UPDATES"] != 20 {
		t.Errorf("SECURITY_UPDATES deducted %d, want 20", points["SECURITY_UPDATES"])
	}
	if points["DISK_PRESSURE"] != 10 {
		t.Errorf("DISK_PRESSURE deducted %d, want 10", points["DISK_PRESSURE"])
	}
	if report.Score != 70 {
		t.Errorf("Score = %d, want 70", report.Score)
	}
}

func TestScoreFirewallStatuses(t *testing.T) {
	tests := []struct {
		status string
		points int
	}{
		{snapshot.FirewallUFW, 0},
		{snapshot.FirewalldActive, 0},
		{snapshot.FirewallInactive, 25},
		{"maybe", 25},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			res := healthy()
			res.Snapshot.Security.FirewallStatus = tt.status
			report := NewEngine().Score(res)

			if report.Score != 100-tt.points {
				t.Errorf("Score = %d, want %d", report.Score, 100-tt.points)
			}
			if tt.points == 0 {
				if len(report.Findings) != 0 {
					t.Errorf("findings = %+v", report.Findings)
				}
				return
			}
			if len(report.Findings) != 1 || report.Findings[0].RuleID != "FIREWALL_INACTIVE" {
				t.Fatalf("findings = %+v", report.Findings)
			}
		})
	}
}

func TestScoreIsMonotonic(t *testing.T) {
	steps := []func(s *validate.Snapshot){
		func(s *validate.Snapshot) { s.Performance.CPUUsagePercent = 95 },
		func(s *validate.Snapshot) { s.Security.SSHPasswordAuth = "yes" },
		func(s *validate.Snapshot) { s.PackageUpdates = append(s.PackageUpdates, validate.Package{Name: "curl"}) },
		func(s *validate.Snapshot) { s.Security.FirewallStatus = snapshot.FirewallInactive },
		func(s *validate.Snapshot) { s.Memory.AvailableKB = 1 },
		func(s *validate.Snapshot) { s.Security.SSHPermitRootLogin = "yes" },
		func(s *validate.Snapshot) {
			for i := 0; i < 8; i++ {
				s.PackageUpdates = append(s.PackageUpdates, validate.Package{Name: "openssl"})
			}
		},
		func(s *validate.Snapshot) { s.DiskUsage[0].UsePercent = 99 },
		func(s *validate.Snapshot) { s.Performance.LoadAverage[0] = 40 },
	}

	engine := NewEngine()
	res := healthy()
	prev := engine.Score(res).Score
	for i, step := range steps {
		step(res.Snapshot)
		score := engine.Score(res).Score
		if score > prev {
			t.Fatalf("step %d raised score from %d to %d", i, prev, score)
		}
		if score < 0 || score > MaxScore {
			t.Fatalf("step %d score %d out of range", i, score)
		}
		prev = score
	}
	if prev != 0 {
		t.Errorf("final score = %d, want clamp to 0", prev)
	}
}

func TestScoreReportsAnomaliesAsInfo(t *testing.T) {
	res := healthy()
	res.Anomalies = []validate.Anomaly{
		{Field: "disk_usage[0].use_percent", Value: "lots", Message: "unexpected value; defaulted to 0"},
	}
	res.Snapshot.Security.SSHPermitRootLogin = "yes"

	report := NewEngine().Score(res)

	want := []string{"SSH_ROOT_LOGIN", "UNEXPECTED_VALUE"}
	if got := ruleIDs(report); !equalStrings(got, want) {
		t.Fatalf("findings = %v, want %v", got, want)
	}
	if report.Score != 75 {
		t.Errorf("Score = %d, want 75", report.Score)
	}
	counts := report.Counts()
	if counts[SeverityCritical] != 1 || counts[SeverityInfo] != 1 || counts[SeverityWarning] != 0 {
		t.Errorf("Counts() = %v", counts)
	}
}

func TestIsSecurityPackage(t *testing.T) {
	tests := map[string]bool{
		"openssh-server":      true,
		"OpenSSL":             true,
		"libssl1.1":           true,
		"kernel-core":         true,
		"linux-image-6.1.0":   true,
		"systemd":             true,
		"systemd-resolved":    false,
		"curl":                false,
		"openssh-sftp-server": false,
	}
	for name, want := range tests {
		if got := IsSecurityPackage(name); got != want {
			t.Errorf("IsSecurityPackage(%q) = %v, want %v", name, got, want)
		}
	}
}
