package jobs

import "fmt"

// Status is the lifecycle state of a job. It only moves forward.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
	StatusBlocked Status = "blocked"
)

func (s Status) String() string { return string(s) }

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusBlocked
}

// ValidateTransition returns an error if s cannot move to target.
func (s Status) ValidateTransition(target Status) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

func (s Status) isValidTransition(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusRunning
	case StatusRunning:
		return target == StatusDone || target == StatusError || target == StatusBlocked
	default:
		return false
	}
}

// Kind is what a job computes.
type Kind string

const (
	KindScan     Kind = "scan"
	KindAnalysis Kind = "analysis"
)

// ErrorKind classifies why a job ended in StatusError.
type ErrorKind string

const (
	ErrorInvalidInput         ErrorKind = "invalid_input"
	ErrorProbeFailure         ErrorKind = "probe_failure"
	ErrorProviderUnavailable  ErrorKind = "provider_unavailable"
	ErrorProviderAuth         ErrorKind = "provider_auth"
	ErrorAnalysisParseFailure ErrorKind = "analysis_parse_failure"
	ErrorCanceled             ErrorKind = "canceled"
	ErrorInternal             ErrorKind = "internal"
)
