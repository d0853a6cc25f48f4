// Package scan runs scan jobs: it validates targets, drives each job through
// its lifecycle around a Prober and serves the results.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/jobs"
	"github.com/raysh454/auditai/internal/logging"
	"github.com/raysh454/auditai/internal/metrics"
	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/tracing"
)

// Config for the coordinator. Timeout 0 means scans are bounded only by
// Close.
type Config struct {
	Timeout time.Duration
}

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("scan coordinator closed")

type Coordinator struct {
	registry *jobs.Registry
	prober   Prober
	cfg      Config
	logger   logging.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewCoordinator(reg *jobs.Registry, prober Prober, cfg Config, logger logging.Logger, m *metrics.Metrics) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		registry: reg,
		prober:   prober,
		cfg:      cfg,
		logger:   logger.With(logging.Field{Key: "component", Value: "scan"}),
		metrics:  m,
		tracer:   tracing.Tracer("scan"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start validates target, creates a pending scan job and runs it in the
// background. Rejected targets create no job.
func (c *Coordinator) Start(ctx context.Context, target string) (string, error) {
	normalized, err := NormalizeTarget(target)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}

	job := c.registry.Create(jobs.KindScan, jobs.Params{Target: normalized})
	c.metrics.JobCreated(jobs.KindScan)
	c.logger.Info("scan accepted",
		logging.Field{Key: "job_id", Value: job.ID()},
		logging.Field{Key: "target", Value: normalized})

	link := trace.LinkFromContext(ctx)
	c.wg.Add(1)
	go c.run(job, normalized, link)
	return job.ID(), nil
}

func (c *Coordinator) run(job *jobs.Job, target string, link trace.Link) {
	defer c.wg.Done()

	ctx := c.ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	ctx, span := c.tracer.Start(ctx, "scan.run",
		trace.WithLinks(link),
		trace.WithAttributes(attribute.String("job.id", job.ID()), attribute.String("scan.target", target)))
	defer span.End()

	log := c.logger.With(logging.Field{Key: "job_id", Value: job.ID()})

	if err := job.Start(); err != nil {
		log.Error("starting scan job", logging.Err(err))
		return
	}
	progress := func(level eventbus.Level, msg string) {
		if err := job.Log(level, msg); err != nil {
			log.Error("recording scan progress", logging.Err(err))
		}
	}
	progress(eventbus.LevelInfo, "scanning "+target)

	result, err := c.probe(ctx, target, progress)

	var blocked *BlockedError
	switch {
	case errors.As(err, &blocked):
		span.SetAttributes(attribute.String("scan.blocking_mechanism", blocked.Mechanism))
		c.finish(log, job.Block(blocked.Mechanism))
	case err != nil && c.ctx.Err() != nil:
		c.finish(log, job.Fail(jobs.ErrorCanceled, "scan canceled"))
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		span.SetStatus(codes.Error, "timeout")
		c.finish(log, job.Fail(jobs.ErrorProbeFailure, "scan timed out"))
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("scan failed", logging.Err(err))
		c.finish(log, job.Fail(jobs.ErrorProbeFailure, err.Error()))
	case result == nil:
		c.finish(log, job.Fail(jobs.ErrorInternal, "probe returned no result"))
	default:
		progress(eventbus.LevelInfo, fmt.Sprintf("scan complete: grade %s, score %d, %d findings",
			result.Grade, result.Score, len(result.Findings)))
		c.finish(log, job.Complete(result))
	}
}

// probe calls the prober, turning a panic into an error.
func (c *Coordinator) probe(ctx context.Context, target string, progress Progress) (res *model.ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return c.prober.Run(ctx, target, progress)
}

func (c *Coordinator) finish(log logging.Logger, err error) {
	if err != nil {
		log.Error("finishing scan job", logging.Err(err))
	}
}

// GetResult returns the result of a finished scan. Blocked scans yield a
// result with scan status "blocked" and no findings.
func (c *Coordinator) GetResult(id string) (*model.ScanResult, error) {
	job, err := c.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Kind() != jobs.KindScan {
		return nil, jobs.ErrNotFound
	}

	info := job.Info()
	switch info.Status {
	case jobs.StatusPending, jobs.StatusRunning:
		return nil, jobs.ErrNotReady
	case jobs.StatusError:
		return nil, &jobs.FailedError{Kind: info.ErrorKind, Detail: info.ErrorDetail}
	case jobs.StatusBlocked:
		return model.BlockedScanResult(info.Target, info.BlockingMechanism, *info.EndedAt), nil
	}

	result, ok := info.Result.(*model.ScanResult)
	if !ok {
		return nil, fmt.Errorf("%w: scan %s holds %T", jobs.ErrInternalFault, id, info.Result)
	}
	return result, nil
}

// Close cancels running scans and waits for them to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}
