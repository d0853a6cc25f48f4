package scan

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidTarget is matched by every target rejection.
var ErrInvalidTarget = errors.New("invalid target")

// Rejection codes reported to API clients.
const (
	CodeInvalidTarget     = "INVALID_TARGET"
	CodeUnsupportedScheme = "UNSUPPORTED_SCHEME"
	CodeInvalidURL        = "INVALID_URL"
)

// TargetError explains why a target was refused.
type TargetError struct {
	Code   string
	Reason string
}

func (e *TargetError) Error() string { return "invalid target: " + e.Reason }

func (e *TargetError) Is(target error) bool { return target == ErrInvalidTarget }

// NormalizeTarget trims raw, defaults a missing scheme to https and checks
// that the result is an http(s) URL with a hostname.
func NormalizeTarget(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", &TargetError{Code: CodeInvalidTarget, Reason: "target is empty"}
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", &TargetError{Code: CodeInvalidURL, Reason: err.Error()}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", &TargetError{Code: CodeUnsupportedScheme, Reason: "only http and https targets are supported"}
	}
	if u.Hostname() == "" {
		return "", &TargetError{Code: CodeInvalidURL, Reason: "target has no hostname"}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}
