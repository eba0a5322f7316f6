// Package scoring turns a normalized snapshot into a 0-100 score and an
// ordered list of findings.
//
// Scoring is a pure function of its input: the same snapshot and anomalies
// always produce the same report.
package scoring

import (
	"sort"

	"github.com/haasonsaas/stethoscope/pkg/validate"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// MaxScore is the starting score before deductions.
const MaxScore = 100

type Finding struct {
	RuleID         string   `json:"rule_id"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	PointsDeducted int      `json:"points_deducted"`
}

// Report is built once per analysis and not modified afterwards.
type Report struct {
	Score              int                `json:"score"`
	Findings           []Finding          `json:"findings"`
	NormalizedSnapshot *validate.Snapshot `json:"normalized_snapshot"`
}

// Counts returns the number of findings per severity.
func (r *Report) Counts() map[Severity]int {
	counts := map[Severity]int{SeverityCritical: 0, SeverityWarning: 0, SeverityInfo: 0}
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	return counts
}

// Weights are the point values deducted by each rule.
type Weights struct {
	RootLogin          int
	FirewallInactive   int
	PasswordAuth       int
	SecurityUpdate     int
	SecurityUpdatesCap int
	HighLoad           int
	LowMemory          int
	DiskPressure       int
	DiskPressureCap    int
	HighCPU            int
}

func DefaultWeights() Weights {
	return Weights{
		RootLogin:          25,
		FirewallInactive:   25,
		PasswordAuth:       15,
		SecurityUpdate:     5,
		SecurityUpdatesCap: 20,
		HighLoad:           5,
		LowMemory:          5,
		DiskPressure:       5,
		DiskPressureCap:    10,
		HighCPU:            5,
	}
}

// Thresholds for the operational rules.
type Thresholds struct {
	LoadPerCore        float64
	MinAvailableMemory float64
	DiskUsePercent     float64
	CPUUsagePercent    float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		LoadPerCore:        1.5,
		MinAvailableMemory: 0.10,
		DiskUsePercent:     90,
		CPUUsagePercent:    90,
	}
}

type Engine struct {
	weights    Weights
	thresholds Thresholds
}

func NewEngine() *Engine {
	return &Engine{weights: DefaultWeights(), thresholds: DefaultThresholds()}
}

// Score evaluates every rule in order against the validator output.
func (e *Engine) Score(res *validate.Result) *Report {
	findings := []Finding{}
	for _, r := range rules {
		findings = append(findings, r(e, res)...)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.rank() < findings[j].Severity.rank()
	})

	score := MaxScore
	for _, f := range findings {
		score -= f.PointsDeducted
	}
	if score < 0 {
		score = 0
	}
	if score > MaxScore {
		score = MaxScore
	}

	return &Report{Score: score, Findings: findings, NormalizedSnapshot: res.Snapshot}
}
