// Package validate checks an untrusted encoded snapshot and coerces it into
// typed records.
//
// Structural problems (undecodable input, malformed JSON, missing required
// fields) are terminal. Bad leaf values are defaulted and reported as
// anomalies so one odd field never costs the whole analysis.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/haasonsaas/stethoscope/pkg/codec"
	"github.com/haasonsaas/stethoscope/pkg/snapshot"
	"golang.org/x/text/unicode/norm"
)

// Limits bound how much of an untrusted document is accepted.
type Limits struct {
	MaxInputBytes int
	MaxStringLen  int
	MaxDisks      int
	MaxProcesses  int
	MaxPackages   int
}

func DefaultLimits() Limits {
	return Limits{
		MaxInputBytes: 1 << 20,
		MaxStringLen:  256,
		MaxDisks:      64,
		MaxProcesses:  50,
		MaxPackages:   500,
	}
}

// Validate decodes, parses, schema-checks and normalizes an encoded line.
func Validate(line string) (*Result, error) {
	return ValidateWithLimits(line, DefaultLimits())
}

func ValidateWithLimits(line string, limits Limits) (*Result, error) {
	if limits.MaxInputBytes > 0 && len(line) > limits.MaxInputBytes {
		return nil, &TooLargeError{Size: len(line), Limit: limits.MaxInputBytes}
	}
	data, err := codec.Decode(line)
	if err != nil {
		return nil, err
	}
	return Document(data, limits)
}

// Document validates an already decoded document.
func Document(data []byte, limits Limits) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, &ParseError{Cause: errors.New("document is not valid UTF-8")}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, &ParseError{Cause: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Cause: errors.New("trailing data after document")}
	}

	doc, ok := root.(map[string]any)
	if !ok {
		return nil, &SchemaError{Path: "$", Reason: "document must be an object, got " + kindOf(root)}
	}

	n := &normalizer{limits: limits}
	snap, err := n.snapshot(doc)
	if err != nil {
		return nil, err
	}
	anomalies := n.anomalies
	if anomalies == nil {
		anomalies = []Anomaly{}
	}
	return &Result{Snapshot: snap, Anomalies: anomalies}, nil
}

type normalizer struct {
	limits    Limits
	anomalies []Anomaly
}

func (n *normalizer) note(field, value, message string) {
	n.anomalies = append(n.anomalies, Anomaly{Field: field, Value: n.clean(value), Message: message})
}

func (n *normalizer) snapshot(doc map[string]any) (*Snapshot, error) {
	for _, key := range snapshot.TopLevelKeys {
		if v, ok := doc[key]; !ok || v == nil {
			return nil, &SchemaError{Path: key, Reason: "required field missing"}
		}
	}

	s := &Snapshot{}
	var err error

	if s.OSInfo, err = n.osInfo(doc["os_info"]); err != nil {
		return nil, err
	}
	if s.Hardware, err = n.hardware(doc["hardware"]); err != nil {
		return nil, err
	}
	if s.Performance, err = n.performance(doc["performance"]); err != nil {
		return nil, err
	}
	if s.Memory, err = n.memory(doc["memory"]); err != nil {
		return nil, err
	}
	if s.DiskUsage, err = n.disks(doc["disk_usage"]); err != nil {
		return nil, err
	}
	if s.Security, err = n.security(doc["security"]); err != nil {
		return nil, err
	}
	if s.PackageUpdates, err = n.packages(doc["package_updates"]); err != nil {
		return nil, err
	}
	if s.TopProcesses, err = n.processes(doc["top_processes"]); err != nil {
		return nil, err
	}
	return s, nil
}

func (n *normalizer) osInfo(v any) (snapshot.OSInfo, error) {
	obj, err := asObject(v, "os_info")
	if err != nil {
		return snapshot.OSInfo{}, err
	}
	var info snapshot.OSInfo
	fields := []struct {
		key string
		dst *string
	}{
		{"distro", &info.Distro},
		{"version", &info.Version},
		{"kernel", &info.Kernel},
		{"hostname", &info.Hostname},
	}
	for _, f := range fields {
		if *f.dst, err = n.str(obj, "os_info", f.key, false); err != nil {
			return info, err
		}
	}
	return info, nil
}

func (n *normalizer) hardware(v any) (snapshot.Hardware, error) {
	obj, err := asObject(v, "hardware")
	if err != nil {
		return snapshot.Hardware{}, err
	}
	var hw snapshot.Hardware
	if hw.CPUModel, err = n.str(obj, "hardware", "cpu_model", false); err != nil {
		return hw, err
	}
	cores, err := n.integer(obj, "hardware", "cpu_cores", maxCount)
	if err != nil {
		return hw, err
	}
	hw.CPUCores = int(cores)
	if hw.TotalRAMKB, err = n.integer(obj, "hardware", "total_ram_kb", maxQuantity); err != nil {
		return hw, err
	}
	return hw, nil
}

func (n *normalizer) performance(v any) (snapshot.Performance, error) {
	obj, err := asObject(v, "performance")
	if err != nil {
		return snapshot.Performance{}, err
	}
	var perf snapshot.Performance
	if perf.LoadAverage, err = n.loadAverage(obj["load_average"]); err != nil {
		return perf, err
	}
	if perf.UptimeSeconds, err = n.integer(obj, "performance", "uptime_seconds", maxQuantity); err != nil {
		return perf, err
	}
	count, err := n.integer(obj, "performance", "process_count", maxCount)
	if err != nil {
		return perf, err
	}
	perf.ProcessCount = int(count)
	if perf.CPUUsagePercent, err = n.percent(obj, "performance", "cpu_usage_percent"); err != nil {
		return perf, err
	}
	return perf, nil
}

// loadAverage accepts a list of three numbers, or a string of three
// numbers separated by commas or spaces.
func (n *normalizer) loadAverage(v any) ([]float64, error) {
	const path = "performance.load_average"
	load := []float64{0, 0, 0}

	var items []any
	switch t := v.(type) {
	case nil:
		n.note(path, "", "missing; defaulted to 0")
		return load, nil
	case []any:
		items = t
	case string:
		for _, f := range strings.FieldsFunc(t, func(r rune) bool { return r == ',' || unicode.IsSpace(r) }) {
			items = append(items, f)
		}
	default:
		return nil, &SchemaError{Path: path, Reason: "expected list, got " + kindOf(v)}
	}

	if len(items) != 3 {
		n.note(path, strconv.Itoa(len(items))+" values", "expected 3 values")
	}
	for i := 0; i < len(items) && i < 3; i++ {
		f, err := n.coerce(items[i], fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		load[i] = f
	}
	return load, nil
}

func (n *normalizer) memory(v any) (snapshot.Memory, error) {
	obj, err := asObject(v, "memory")
	if err != nil {
		return snapshot.Memory{}, err
	}
	var mem snapshot.Memory
	fields := []struct {
		key string
		dst *int64
	}{
		{"total_kb", &mem.TotalKB},
		{"free_kb", &mem.FreeKB},
		{"available_kb", &mem.AvailableKB},
		{"buffers_kb", &mem.BuffersKB},
		{"cached_kb", &mem.CachedKB},
	}
	for _, f := range fields {
		val, err := n.integer(obj, "memory", f.key, maxQuantity)
		if err != nil {
			return mem, err
		}
		*f.dst = val
	}
	return mem, nil
}

func (n *normalizer) disks(v any) ([]Disk, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, &SchemaError{Path: "disk_usage", Reason: "expected list, got " + kindOf(v)}
	}
	if limit := n.limits.MaxDisks; limit > 0 && len(items) > limit {
		n.note("disk_usage", strconv.Itoa(len(items))+" entries", fmt.Sprintf("truncated to %d entries", limit))
		items = items[:limit]
	}

	disks := make([]Disk, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("disk_usage[%d]", i)
		obj, err := asObject(item, path)
		if err != nil {
			return nil, err
		}
		var d Disk
		if d.MountPoint, err = n.str(obj, path, "mount_point", true); err != nil {
			return nil, err
		}
		if _, ok := obj["use_percent"]; !ok {
			return nil, &SchemaError{Path: path + ".use_percent", Reason: "required field missing"}
		}
		if d.UsePercent, err = n.percent(obj, path, "use_percent"); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			key string
			dst *string
		}{
			{"filesystem", &d.Filesystem},
			{"size", &d.Size},
			{"used", &d.Used},
			{"available", &d.Available},
		} {
			if *f.dst, err = n.str(obj, path, f.key, false); err != nil {
				return nil, err
			}
		}
		disks = append(disks, d)
	}
	return disks, nil
}

func (n *normalizer) security(v any) (snapshot.Security, error) {
	obj, err := asObject(v, "security")
	if err != nil {
		return snapshot.Security{}, err
	}
	var sec snapshot.Security
	fields := []struct {
		key string
		dst *string
	}{
		{"ssh_permit_root_login", &sec.SSHPermitRootLogin},
		{"ssh_password_auth", &sec.SSHPasswordAuth},
		{"firewall_status", &sec.FirewallStatus},
	}
	for _, f := range fields {
		val, err := n.str(obj, "security", f.key, true)
		if err != nil {
			return sec, err
		}
		*f.dst = strings.ToLower(strings.TrimSpace(val))
	}

	switch sec.FirewallStatus {
	case snapshot.FirewallInactive, snapshot.FirewallUFW, snapshot.FirewalldActive:
	default:
		n.note("security.firewall_status", sec.FirewallStatus, "unexpected firewall status")
	}
	return sec, nil
}

// packages accepts the "name version, name version" string form or a
// list of "name version" strings.
func (n *normalizer) packages(v any) ([]Package, error) {
	var entries []string
	switch t := v.(type) {
	case string:
		entries = strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == ';' || r == '\n' })
	case []any:
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, &SchemaError{Path: fmt.Sprintf("package_updates[%d]", i), Reason: "expected string, got " + kindOf(item)}
			}
			entries = append(entries, s)
		}
	default:
		return nil, &SchemaError{Path: "package_updates", Reason: "expected string, got " + kindOf(v)}
	}

	pkgs := []Package{}
	for _, entry := range entries {
		fields := strings.Fields(n.clean(entry))
		if len(fields) == 0 {
			continue
		}
		if limit := n.limits.MaxPackages; limit > 0 && len(pkgs) == limit {
			n.note("package_updates", strconv.Itoa(len(entries))+" entries", fmt.Sprintf("truncated to %d entries", limit))
			break
		}
		p := Package{Name: fields[0]}
		if len(fields) > 1 {
			p.Version = fields[1]
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}

func (n *normalizer) processes(v any) ([]Process, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, &SchemaError{Path: "top_processes", Reason: "expected list, got " + kindOf(v)}
	}
	if limit := n.limits.MaxProcesses; limit > 0 && len(items) > limit {
		n.note("top_processes", strconv.Itoa(len(items))+" entries", fmt.Sprintf("truncated to %d entries", limit))
		items = items[:limit]
	}

	seen := make(map[int]bool, len(items))
	procs := make([]Process, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("top_processes[%d]", i)
		obj, err := asObject(item, path)
		if err != nil {
			return nil, err
		}
		rawPID, ok := obj["pid"]
		if !ok || rawPID == nil {
			return nil, &SchemaError{Path: path + ".pid", Reason: "required field missing"}
		}
		pid, ok := parsePID(rawPID)
		if !ok {
			switch rawPID.(type) {
			case map[string]any, []any:
				return nil, &SchemaError{Path: path + ".pid", Reason: "expected integer, got " + kindOf(rawPID)}
			}
			n.note(path+".pid", display(rawPID), "invalid pid; entry dropped")
			continue
		}
		if seen[pid] {
			n.note(path+".pid", strconv.Itoa(pid), "duplicate pid collapsed")
			continue
		}
		seen[pid] = true

		p := Process{PID: pid}
		if p.User, err = n.str(obj, path, "user", false); err != nil {
			return nil, err
		}
		if p.CPUPercent, err = n.percent(obj, path, "cpu_percent"); err != nil {
			return nil, err
		}
		if p.MemPercent, err = n.percent(obj, path, "mem_percent"); err != nil {
			return nil, err
		}
		if p.Command, err = n.str(obj, path, "command", false); err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, nil
}

// str reads a string leaf. Numbers and booleans are formatted; containers
// are schema errors. Optional missing leaves default to "Unknown".
func (n *normalizer) str(obj map[string]any, parent, key string, required bool) (string, error) {
	path := parent + "." + key
	v, ok := obj[key]
	if !ok || v == nil {
		if required {
			return "", &SchemaError{Path: path, Reason: "required field missing"}
		}
		n.note(path, "", "missing; defaulted to "+snapshot.Unknown)
		return snapshot.Unknown, nil
	}
	switch t := v.(type) {
	case string:
		s := n.clean(t)
		if s == "" {
			if required {
				return "", &SchemaError{Path: path, Reason: "required field empty"}
			}
			return snapshot.Unknown, nil
		}
		return s, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", &SchemaError{Path: path, Reason: "expected string, got " + kindOf(v)}
	}
}

// num reads a non-negative numeric leaf.
func (n *normalizer) num(obj map[string]any, parent, key string) (float64, error) {
	path := parent + "." + key
	v, ok := obj[key]
	if !ok || v == nil {
		n.note(path, "", "missing; defaulted to 0")
		return 0, nil
	}
	f, err := n.coerce(v, path)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		n.note(path, display(v), "negative value; defaulted to 0")
		return 0, nil
	}
	return f, nil
}

// Upper bounds for integer leaves. Counts fit an int32; KiB and second
// quantities stay within the exactly representable float64 range.
const (
	maxCount    = math.MaxInt32
	maxQuantity = 1 << 53
)

// integer reads a non-negative whole-number leaf no larger than limit.
// Fractions are truncated.
func (n *normalizer) integer(obj map[string]any, parent, key string, limit float64) (int64, error) {
	f, err := n.num(obj, parent, key)
	if err != nil {
		return 0, err
	}
	if f > limit {
		n.note(parent+"."+key, display(obj[key]), "value out of range; defaulted to 0")
		return 0, nil
	}
	return int64(f), nil
}

// percent reads a numeric leaf clamped to [0, 100].
func (n *normalizer) percent(obj map[string]any, parent, key string) (float64, error) {
	f, err := n.num(obj, parent, key)
	if err != nil {
		return 0, err
	}
	if f > 100 {
		n.note(parent+"."+key, display(obj[key]), "percentage above 100; clamped")
		return 100, nil
	}
	return f, nil
}

// coerce turns a JSON number or numeric-looking string into a float. Other
// scalars become 0 with an anomaly; containers are schema errors.
func (n *normalizer) coerce(v any, path string) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			n.note(path, t.String(), "unexpected value; defaulted to 0")
			return 0, nil
		}
		return f, nil
	case string:
		f, ok := ParseNumber(t)
		if !ok {
			n.note(path, t, "unexpected value; defaulted to 0")
			return 0, nil
		}
		return f, nil
	case bool:
		n.note(path, strconv.FormatBool(t), "unexpected value; defaulted to 0")
		return 0, nil
	default:
		return 0, &SchemaError{Path: path, Reason: "expected number, got " + kindOf(v)}
	}
}

// ParseNumber parses numeric-looking text such as "87%", " 12.3 " or
// "12,5". It rejects anything else, including NaN and infinities.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && r != '.' && r != '-' && r != '+' && r != 'e' && r != 'E' {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// clean NFC-normalizes a string, drops control characters and caps length.
func (n *normalizer) clean(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if limit := n.limits.MaxStringLen; limit > 0 && utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return s
}

func parsePID(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, ok := ParseNumber(t)
		if !ok {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f < 1 || f > math.MaxInt32 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func asObject(v any, path string) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &SchemaError{Path: path, Reason: "expected object, got " + kindOf(v)}
	}
	return obj, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func display(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
