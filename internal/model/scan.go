package model

import (
	"strings"
	"time"
)

// Severity is the impact bucket of a finding or vulnerability.
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// ParseSeverity matches s case-insensitively against the known severities.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, true
	case "high":
		return SeverityHigh, true
	case "medium":
		return SeverityMedium, true
	case "low":
		return SeverityLow, true
	case "info", "informational":
		return SeverityInfo, true
	}
	return "", false
}

// Rank orders severities; higher is worse. Unknown severities rank below Info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0
	}
	return -1
}

// Finding is one observation produced by the probe.
type Finding struct {
	Title          string   `json:"title"`
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Impact         string   `json:"impact"`
	Recommendation string   `json:"recommendation"`
	Evidence       string   `json:"evidence,omitempty"`
}

// ScanStatus tells whether the probe saw the target or was stopped by a
// protection layer.
type ScanStatus string

const (
	ScanCompleted ScanStatus = "completed"
	ScanBlocked   ScanStatus = "blocked"
)

// Visibility summarizes how much of the target answered normally.
type Visibility string

const (
	VisibilityGood    Visibility = "good"
	VisibilityPartial Visibility = "partial"
	VisibilityLimited Visibility = "limited"
	VisibilityPoor    Visibility = "poor"
	VisibilityNone    Visibility = "none"
)

// ScanResult is the structured outcome of a completed (or blocked) scan.
type ScanResult struct {
	Target            string     `json:"target"`
	Grade             Grade      `json:"grade"`
	Score             int        `json:"score"`
	ScanStatus        ScanStatus `json:"scan_status"`
	BlockingMechanism *string    `json:"blocking_mechanism"`
	Visibility        Visibility `json:"visibility"`
	Findings          []Finding  `json:"findings"`
	Pages             []string   `json:"pages"`
	ScannedAt         time.Time  `json:"scanned_at"`
	ResponseTimeMs    int64      `json:"response_time_ms"`
}

// BlockedScanResult is the result reported for a scan stopped by a protection
// layer. It carries no findings.
func BlockedScanResult(target, mechanism string, at time.Time) *ScanResult {
	m := mechanism
	return &ScanResult{
		Target:            target,
		Grade:             GradeNA,
		ScanStatus:        ScanBlocked,
		BlockingMechanism: &m,
		Visibility:        VisibilityNone,
		Findings:          []Finding{},
		Pages:             []string{},
		ScannedAt:         at,
	}
}

// CountBySeverity tallies findings per severity.
func (r *ScanResult) CountBySeverity() map[Severity]int {
	out := make(map[Severity]int)
	for _, f := range r.Findings {
		out[f.Severity]++
	}
	return out
}
