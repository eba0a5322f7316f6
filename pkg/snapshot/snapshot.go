// Package snapshot defines the wire document produced by the collector.
//
// Field order in these structs is the canonical key order of the encoded
// document. Producers must not reorder fields.
package snapshot

// Sentinel values substituted when a probe fails.
const (
	Unknown          = "Unknown"
	NotSet           = "not_set"
	FirewallInactive = "inactive"
	FirewallUFW      = "ufw_active"
	FirewalldActive  = "firewalld_active"
)

// PackageSeparator joins "name version" entries in PackageUpdates.
const PackageSeparator = ", "

type Snapshot struct {
	OSInfo         OSInfo         `json:"os_info"`
	Hardware       Hardware       `json:"hardware"`
	Performance    Performance    `json:"performance"`
	Memory         Memory         `json:"memory"`
	DiskUsage      []DiskEntry    `json:"disk_usage"`
	Security       Security       `json:"security"`
	PackageUpdates string         `json:"package_updates"`
	TopProcesses   []ProcessEntry `json:"top_processes"`
}

type OSInfo struct {
	Distro   string `json:"distro"`
	Version  string `json:"version"`
	Kernel   string `json:"kernel"`
	Hostname string `json:"hostname"`
}

type Hardware struct {
	CPUModel   string `json:"cpu_model"`
	CPUCores   int    `json:"cpu_cores"`
	TotalRAMKB int64  `json:"total_ram_kb"`
}

type Performance struct {
	LoadAverage     []float64 `json:"load_average"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	ProcessCount    int       `json:"process_count"`
	CPUUsagePercent float64   `json:"cpu_usage_percent"`
}

// Memory values are KiB, all taken from one read of the kernel meminfo file.
type Memory struct {
	TotalKB     int64 `json:"total_kb"`
	FreeKB      int64 `json:"free_kb"`
	AvailableKB int64 `json:"available_kb"`
	BuffersKB   int64 `json:"buffers_kb"`
	CachedKB    int64 `json:"cached_kb"`
}

// DiskEntry mirrors one row of POSIX df output. UsePercent keeps the
// trailing "%".
type DiskEntry struct {
	Filesystem string `json:"filesystem"`
	Size       string `json:"size"`
	Used       string `json:"used"`
	Available  string `json:"available"`
	UsePercent string `json:"use_percent"`
	MountPoint string `json:"mount_point"`
}

type Security struct {
	SSHPermitRootLogin string `json:"ssh_permit_root_login"`
	SSHPasswordAuth    string `json:"ssh_password_auth"`
	FirewallStatus     string `json:"firewall_status"`
}

// ProcessEntry percentages are the raw ps tokens.
type ProcessEntry struct {
	PID        int    `json:"pid"`
	User       string `json:"user"`
	CPUPercent string `json:"cpu_percent"`
	MemPercent string `json:"mem_percent"`
	Command    string `json:"command"`
}

// Empty returns a snapshot where every field holds its sentinel.
func Empty() *Snapshot {
	return &Snapshot{
		OSInfo:         UnknownOSInfo(),
		Hardware:       UnknownHardware(),
		Performance:    UnknownPerformance(),
		Memory:         Memory{},
		DiskUsage:      []DiskEntry{},
		Security:       UnknownSecurity(),
		PackageUpdates: "",
		TopProcesses:   []ProcessEntry{},
	}
}

func UnknownOSInfo() OSInfo {
	return OSInfo{Distro: Unknown, Version: Unknown, Kernel: Unknown, Hostname: Unknown}
}

func UnknownHardware() Hardware {
	return Hardware{CPUModel: Unknown}
}

func UnknownPerformance() Performance {
	return Performance{LoadAverage: []float64{0, 0, 0}}
}

func UnknownSecurity() Security {
	return Security{
		SSHPermitRootLogin: Unknown,
		SSHPasswordAuth:    Unknown,
		FirewallStatus:     FirewallInactive,
	}
}

// Complete fills nil collections and empty identity strings with their
// sentinels so the encoded document never emits null or a blank field.
func (s *Snapshot) Complete() {
	for _, f := range []*string{
		&s.OSInfo.Distro, &s.OSInfo.Version, &s.OSInfo.Kernel, &s.OSInfo.Hostname,
		&s.Hardware.CPUModel, &s.Security.SSHPermitRootLogin, &s.Security.SSHPasswordAuth,
	} {
		if *f == "" {
			*f = Unknown
		}
	}
	if s.Security.FirewallStatus == "" {
		s.Security.FirewallStatus = FirewallInactive
	}
	if s.DiskUsage == nil {
		s.DiskUsage = []DiskEntry{}
	}
	if s.TopProcesses == nil {
		s.TopProcesses = []ProcessEntry{}
	}
	if len(s.Performance.LoadAverage) != 3 {
		load := []float64{0, 0, 0}
		copy(load, s.Performance.LoadAverage)
		s.Performance.LoadAverage = load
	}
}

// TopLevelKeys lists the document keys in wire order.
var TopLevelKeys = []string{
	"os_info",
	"hardware",
	"performance",
	"memory",
	"disk_usage",
	"security",
	"package_updates",
	"top_processes",
}
