package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/auditai/internal/analysis"
	"github.com/raysh454/auditai/internal/archive"
	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/jobs"
	"github.com/raysh454/auditai/internal/logging"
	"github.com/raysh454/auditai/internal/metrics"
	"github.com/raysh454/auditai/internal/probe"
	"github.com/raysh454/auditai/internal/provider"
	"github.com/raysh454/auditai/internal/scan"
	"github.com/raysh454/auditai/internal/tracing"
	"github.com/raysh454/auditai/internal/webclient"
)

const archiveWriteTimeout = 5 * time.Second

// Application is the global runtime state container. It owns every
// long-lived component and shuts them down in dependency order.
type Application struct {
	Config *Config
	Logger logging.Logger

	Metrics   *metrics.Metrics
	Bus       *eventbus.Bus
	Jobs      *jobs.Registry
	Providers *provider.Gateway
	Scans     *scan.Coordinator
	Analyses  *analysis.Aggregator
	// Archive is nil when archive.path is empty.
	Archive *archive.Archive

	web            webclient.WebClient
	tracerShutdown func(context.Context)
	janitorCancel  context.CancelFunc
	janitorDone    chan struct{}
	closeOnce      sync.Once
}

// Option replaces a collaborator, mostly for tests and the CLI.
type Option func(*options)

type options struct {
	prober       scan.Prober
	providers    []provider.Provider
	providersSet bool
	metrics      *metrics.Metrics
}

// WithProber replaces the probe engine.
func WithProber(p scan.Prober) Option {
	return func(o *options) { o.prober = p }
}

// WithProviders replaces the configured ollama and groq providers.
func WithProviders(ps ...provider.Provider) Option {
	return func(o *options) {
		o.providers = ps
		o.providersSet = true
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New wires the application. The returned Application must be closed.
func New(ctx context.Context, cfg *Config, logger logging.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if logger == nil {
		logger = logging.NewLogrusLogger("auditai", cfg.Log)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &Application{Config: cfg, Logger: logger}

	_, shutdown, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	a.tracerShutdown = shutdown

	a.Metrics = o.metrics
	if a.Metrics == nil {
		a.Metrics = metrics.New()
	}

	a.Bus = eventbus.New(eventbus.Options{
		BufferSize: cfg.Jobs.BufferSize,
		Observer:   a.Metrics,
	})
	a.Jobs = jobs.NewRegistry(a.Bus, jobs.RegistryConfig{Retention: cfg.Jobs.Retention}, logger)
	a.Jobs.OnTerminal(a.Metrics.JobFinished)

	if cfg.Archive.Path != "" {
		a.Archive, err = archive.Open(cfg.Archive.Path, logger)
		if err != nil {
			a.tracerShutdown(ctx)
			return nil, err
		}
		a.Jobs.OnTerminal(a.Archive.Hook(archiveWriteTimeout))
	}

	a.Providers = provider.NewGateway(provider.GatewayConfig{
		Retry: provider.RetryPolicy{
			MaxAttempts: cfg.Providers.ConnectAttempts,
			Interval:    cfg.Providers.RetryInterval,
		},
		Breaker: provider.BreakerConfig{
			ConsecutiveFailures: cfg.Providers.BreakerFailures,
			OpenTimeout:         cfg.Providers.BreakerOpenPeriod,
		},
	}, logger, a.Metrics)
	providers := o.providers
	if !o.providersSet {
		providers = []provider.Provider{
			provider.NewOllama(provider.OllamaConfig{
				BaseURL: cfg.Providers.Ollama.BaseURL,
				Model:   cfg.Providers.Ollama.Model,
			}),
			provider.NewGroq(provider.GroqConfig{
				APIKey:  cfg.Providers.Groq.APIKey,
				BaseURL: cfg.Providers.Groq.BaseURL,
				Model:   cfg.Providers.Groq.Model,
			}),
		}
	}
	for _, p := range providers {
		a.Providers.Register(p)
	}

	prober := o.prober
	if prober == nil {
		a.web, err = webclient.NewWebClient(cfg.WebClient(), logger)
		if err != nil {
			a.closeStorage(ctx)
			return nil, fmt.Errorf("creating web client: %w", err)
		}
		prober = probe.New(a.web, probe.Config{
			MaxCrawlURLs: cfg.Probe.MaxCrawlURLs,
			StepDelay:    cfg.Probe.StepDelay,
		}, logger)
	}

	a.Scans = scan.NewCoordinator(a.Jobs, prober, scan.Config{Timeout: cfg.Jobs.ScanTimeout}, logger, a.Metrics)
	a.Analyses = analysis.NewAggregator(a.Jobs, a.Scans, a.Providers,
		analysis.Config{IdleTimeout: cfg.Jobs.IdleTimeout}, logger, a.Metrics)

	janitorCtx, cancel := context.WithCancel(context.Background())
	a.janitorCancel = cancel
	a.janitorDone = make(chan struct{})
	go func() {
		defer close(a.janitorDone)
		a.Jobs.Run(janitorCtx, cfg.Jobs.SweepInterval)
	}()

	logger.Info("application wired",
		logging.Field{Key: "providers", Value: a.Providers.Names()},
		logging.Field{Key: "archive", Value: cfg.Archive.Path != ""})
	return a, nil
}

// Close stops coordinators, the janitor, storage and the tracer, in that
// order. Running jobs are canceled. Closing twice is harmless.
func (a *Application) Close(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.closeOnce.Do(func() {
		a.Logger.Info("application shutdown initiated")
		a.Analyses.Close()
		a.Scans.Close()
		a.janitorCancel()
		<-a.janitorDone
		if a.web != nil {
			if err := a.web.Close(); err != nil {
				a.Logger.Warn("closing web client", logging.Err(err))
			}
		}
		a.closeStorage(ctx)
	})
	return nil
}

func (a *Application) closeStorage(ctx context.Context) {
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			a.Logger.Warn("closing archive", logging.Err(err))
		}
	}
	a.tracerShutdown(ctx)
}
