package validate

import "github.com/haasonsaas/stethoscope/pkg/snapshot"

// Snapshot is the typed, sanitized form of a received document. Numeric
// strings from the wire are already parsed.
type Snapshot struct {
	OSInfo         snapshot.OSInfo      `json:"os_info"`
	Hardware       snapshot.Hardware    `json:"hardware"`
	Performance    snapshot.Performance `json:"performance"`
	Memory         snapshot.Memory      `json:"memory"`
	DiskUsage      []Disk               `json:"disk_usage"`
	Security       snapshot.Security    `json:"security"`
	PackageUpdates []Package            `json:"package_updates"`
	TopProcesses   []Process            `json:"top_processes"`
}

type Disk struct {
	Filesystem string  `json:"filesystem"`
	Size       string  `json:"size"`
	Used       string  `json:"used"`
	Available  string  `json:"available"`
	UsePercent float64 `json:"use_percent"`
	MountPoint string  `json:"mount_point"`
}

type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Process struct {
	PID        int     `json:"pid"`
	User       string  `json:"user"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
	Command    string  `json:"command"`
}

// Anomaly is a non-fatal problem found while coercing a field.
type Anomaly struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Result is the validator output.
type Result struct {
	Snapshot  *Snapshot `json:"snapshot"`
	Anomalies []Anomaly `json:"anomalies"`
}
