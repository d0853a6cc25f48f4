// Package analysis runs analysis jobs: it streams a provider's answer about
// a finished scan, re-broadcasts every chunk as it arrives and reconstructs
// one structured AnalysisResult from the complete text.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
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
	"github.com/raysh454/auditai/internal/provider"
	"github.com/raysh454/auditai/internal/tracing"
)

var (
	ErrScanNotReady   = errors.New("scan is not finished")
	ErrAlreadyRunning = errors.New("analysis already running for this scan and provider")
	ErrClosed         = errors.New("analysis aggregator closed")
)

// DefaultIdleTimeout bounds the silence between two chunks.
const DefaultIdleTimeout = 60 * time.Second

const excerptLength = 500

type Config struct {
	IdleTimeout time.Duration
}

// ScanSource gives access to finished scan results.
type ScanSource interface {
	GetResult(id string) (*model.ScanResult, error)
}

type Aggregator struct {
	registry *jobs.Registry
	scans    ScanSource
	gateway  *provider.Gateway
	cfg      Config
	logger   logging.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inflight map[string]string // scanID+provider -> job id
}

func NewAggregator(reg *jobs.Registry, scans ScanSource, gw *provider.Gateway, cfg Config, logger logging.Logger, m *metrics.Metrics) *Aggregator {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator{
		registry: reg,
		scans:    scans,
		gateway:  gw,
		cfg:      cfg,
		logger:   logger.With(logging.Field{Key: "component", Value: "analysis"}),
		metrics:  m,
		tracer:   tracing.Tracer("analysis"),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]string),
	}
}

func inflightKey(scanID, providerName string) string {
	return scanID + "\x00" + providerName
}

// Start launches an analysis of scanID on the named provider. An empty name
// selects the first available provider.
func (a *Aggregator) Start(ctx context.Context, scanID, providerName string) (string, error) {
	p, err := a.gateway.Resolve(ctx, providerName)
	if err != nil {
		return "", err
	}

	scanResult, err := a.scans.GetResult(scanID)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return "", fmt.Errorf("scan %s: %w", scanID, jobs.ErrNotFound)
	case err != nil:
		return "", fmt.Errorf("scan %s: %w", scanID, ErrScanNotReady)
	case scanResult.ScanStatus == model.ScanBlocked:
		return "", fmt.Errorf("scan %s was blocked: %w", scanID, ErrScanNotReady)
	}

	key := inflightKey(scanID, p.Name())

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "", ErrClosed
	}
	if running, ok := a.inflight[key]; ok {
		if j, err := a.registry.Get(running); err == nil && !j.Status().Terminal() {
			return "", fmt.Errorf("%w (job %s)", ErrAlreadyRunning, running)
		}
	}

	job := a.registry.Create(jobs.KindAnalysis, jobs.Params{
		Target:   scanResult.Target,
		ScanID:   scanID,
		Provider: p.Name(),
	})
	a.inflight[key] = job.ID()
	a.metrics.JobCreated(jobs.KindAnalysis)
	a.logger.Info("analysis accepted",
		logging.Field{Key: "job_id", Value: job.ID()},
		logging.Field{Key: "scan_id", Value: scanID},
		logging.Field{Key: "provider", Value: p.Name()})

	a.wg.Add(1)
	go a.run(job, key, p, scanResult, trace.LinkFromContext(ctx))
	return job.ID(), nil
}

type recvResult struct {
	text    string
	err     error
	opening bool
}

// read opens the provider stream and forwards every chunk on out until the
// stream ends or ctx is done. An open failure is sent with opening set.
func (a *Aggregator) read(ctx context.Context, name string, prompt provider.Prompt, out chan<- recvResult) {
	send := func(r recvResult) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	openCtx, openSpan := a.tracer.Start(ctx, "provider.open")
	stream, err := a.gateway.Open(openCtx, name, prompt)
	openSpan.End()
	if err != nil {
		send(recvResult{err: err, opening: true})
		return
	}
	defer stream.Close()

	for {
		text, err := stream.Recv()
		if !send(recvResult{text: text, err: err}) || err != nil {
			return
		}
	}
}

func (a *Aggregator) run(job *jobs.Job, key string, p provider.Provider, scanResult *model.ScanResult, link trace.Link) {
	defer a.wg.Done()
	defer a.release(key, job.ID())

	log := a.logger.With(
		logging.Field{Key: "job_id", Value: job.ID()},
		logging.Field{Key: "provider", Value: p.Name()})

	ctx, span := a.tracer.Start(a.ctx, "analysis.run",
		trace.WithLinks(link),
		trace.WithAttributes(
			attribute.String("job.id", job.ID()),
			attribute.String("analysis.provider", p.Name()),
			attribute.String("analysis.model", p.Model())))
	defer span.End()

	if err := job.Start(); err != nil {
		log.Error("starting analysis job", logging.Err(err))
		return
	}

	prompt, err := BuildPrompt(scanResult)
	if err != nil {
		a.finish(log, job.Fail(jobs.ErrorInternal, err.Error()))
		return
	}
	if err := job.Log(eventbus.LevelInfo, fmt.Sprintf("requesting analysis from %s (%s)", p.Name(), p.Model())); err != nil {
		log.Error("recording analysis progress", logging.Err(err))
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The idle timer covers opening the stream too: a provider that never
	// answers the request is as silent as one that stalls mid-stream.
	idle := time.NewTimer(a.cfg.IdleTimeout)
	defer idle.Stop()

	chunks := make(chan recvResult)
	go a.read(streamCtx, p.Name(), prompt, chunks)

	var acc strings.Builder
	for done := false; !done; {
		select {
		case r := <-chunks:
			if errors.Is(r.err, io.EOF) {
				done = true
				continue
			}
			if r.err != nil {
				span.RecordError(r.err)
				if r.opening {
					span.SetStatus(codes.Error, "open stream")
				} else {
					span.SetStatus(codes.Error, "stream")
				}
				a.failProvider(log, job, r.err, acc.String())
				return
			}
			if r.text == "" {
				continue
			}
			acc.WriteString(r.text)
			a.metrics.ProviderChunk(p.Name())
			if err := job.Log(eventbus.LevelStream, r.text); err != nil {
				log.Error("recording stream chunk", logging.Err(err))
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(a.cfg.IdleTimeout)

		case <-idle.C:
			cancel()
			span.SetStatus(codes.Error, "idle timeout")
			a.metrics.ProviderError(p.Name(), "idle_timeout")
			a.finish(log, job.FailWithOutput(jobs.ErrorProviderUnavailable,
				fmt.Sprintf("%s sent nothing for %s", p.Name(), a.cfg.IdleTimeout), acc.String()))
			return

		case <-ctx.Done():
			a.finish(log, job.FailWithOutput(jobs.ErrorCanceled, "analysis canceled", acc.String()))
			return
		}
	}

	raw := acc.String()
	result, err := ParseAnalysis(raw)
	if err != nil {
		log.Warn("provider output rejected", logging.Err(err), logging.Field{Key: "bytes", Value: len(raw)})
		span.SetStatus(codes.Error, "parse")
		detail := fmt.Sprintf("%v; output starts with: %q", err, excerpt(raw))
		a.finish(log, job.FailWithOutput(jobs.ErrorAnalysisParseFailure, detail, raw))
		return
	}
	result.Provider = p.Name()
	result.Model = p.Model()

	if err := job.Log(eventbus.LevelInfo, fmt.Sprintf("analysis complete: %s risk, %d key vulnerabilities",
		result.OverallRiskLevel, len(result.Top3Vulnerabilities))); err != nil {
		log.Error("recording analysis progress", logging.Err(err))
	}
	a.finish(log, job.Complete(result))
}

func (a *Aggregator) failProvider(log logging.Logger, job *jobs.Job, err error, partial string) {
	kind := jobs.ErrorProviderUnavailable
	switch {
	case a.ctx.Err() != nil:
		kind = jobs.ErrorCanceled
	case errors.Is(err, provider.ErrAuth), errors.Is(err, provider.ErrNotConfigured):
		kind = jobs.ErrorProviderAuth
	}
	log.Warn("provider failed", logging.Err(err), logging.Field{Key: "error_kind", Value: string(kind)})
	a.finish(log, job.FailWithOutput(kind, err.Error(), partial))
}

func (a *Aggregator) finish(log logging.Logger, err error) {
	if err != nil {
		log.Error("finishing analysis job", logging.Err(err))
	}
}

func (a *Aggregator) release(key, jobID string) {
	a.mu.Lock()
	if a.inflight[key] == jobID {
		delete(a.inflight, key)
	}
	a.mu.Unlock()
}

func excerpt(s string) string {
	if len(s) <= excerptLength {
		return s
	}
	return s[:excerptLength]
}

// GetResult returns the result of a finished analysis.
func (a *Aggregator) GetResult(id string) (*model.AnalysisResult, error) {
	job, err := a.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Kind() != jobs.KindAnalysis {
		return nil, jobs.ErrNotFound
	}

	info := job.Info()
	switch info.Status {
	case jobs.StatusPending, jobs.StatusRunning:
		return nil, jobs.ErrNotReady
	case jobs.StatusError:
		return nil, &jobs.FailedError{Kind: info.ErrorKind, Detail: info.ErrorDetail}
	case jobs.StatusBlocked:
		return nil, fmt.Errorf("%w: analysis %s is blocked", jobs.ErrInternalFault, id)
	}

	result, ok := info.Result.(*model.AnalysisResult)
	if !ok {
		return nil, fmt.Errorf("%w: analysis %s holds %T", jobs.ErrInternalFault, id, info.Result)
	}
	return result, nil
}

// Close cancels running analyses and waits for them.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	a.cancel()
	a.mu.Unlock()
	a.wg.Wait()
}
