package scan

import (
	"context"
	"fmt"

	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/model"
)

// Progress reports a human-readable step of a running probe.
type Progress func(level eventbus.Level, msg string)

// Prober performs the actual measurement of a target.
type Prober interface {
	// Run probes target and returns its result, or a *BlockedError if the
	// target refused to be probed.
	Run(ctx context.Context, target string, progress Progress) (*model.ScanResult, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, target string, progress Progress) (*model.ScanResult, error)

func (f ProberFunc) Run(ctx context.Context, target string, progress Progress) (*model.ScanResult, error) {
	return f(ctx, target, progress)
}

// BlockedError signals that a protection layer filtered the probe.
type BlockedError struct {
	Mechanism string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("target blocked probing (%s)", e.Mechanism)
}
