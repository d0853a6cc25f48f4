package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/raysh454/auditai/internal/logging"
	"github.com/raysh454/auditai/internal/metrics"
)

// RetryPolicy bounds retries of stream opening. Only failures before the
// first byte of a stream are retried; MaxAttempts <= 1 disables retries.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// BreakerConfig configures the per-provider circuit breaker.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker; 0 disables it.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

type GatewayConfig struct {
	Retry   RetryPolicy
	Breaker BreakerConfig
}

// Gateway is the registry of providers, in priority order.
type Gateway struct {
	cfg     GatewayConfig
	logger  logging.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	providers map[string]Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	order     []string
}

func NewGateway(cfg GatewayConfig, logger logging.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		cfg:       cfg,
		logger:    logger.With(logging.Field{Key: "component", Value: "provider"}),
		metrics:   m,
		providers: make(map[string]Provider),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Register adds p. Providers registered first are preferred by Resolve.
func (g *Gateway) Register(p Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := p.Name()
	if _, exists := g.providers[name]; !exists {
		g.order = append(g.order, name)
	}
	g.providers[name] = p
	if g.cfg.Breaker.ConsecutiveFailures > 0 {
		g.breakers[name] = g.newBreaker(name)
	}
}

func (g *Gateway) newBreaker(name string) *gobreaker.CircuitBreaker {
	threshold := g.cfg.Breaker.ConsecutiveFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     g.cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// credential and caller problems say nothing about provider health
			return err == nil || errors.Is(err, ErrAuth) || errors.Is(err, ErrNotConfigured) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("provider circuit state changed",
				logging.Field{Key: "provider", Value: name},
				logging.Field{Key: "from", Value: from.String()},
				logging.Field{Key: "to", Value: to.String()})
		},
	})
}

// Lookup returns the named provider or ErrUnknownProvider.
func (g *Gateway) Lookup(name string) (Provider, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists providers in priority order.
func (g *Gateway) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Statuses polls every provider concurrently.
func (g *Gateway) Statuses(ctx context.Context) map[string]Status {
	names := g.Names()
	results := make([]Status, len(names))

	eg, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		p, err := g.Lookup(name)
		if err != nil {
			continue
		}
		eg.Go(func() error {
			results[i] = p.Status(ctx)
			return nil
		})
	}
	_ = eg.Wait()

	out := make(map[string]Status, len(names))
	for i, name := range names {
		st := results[i]
		st.Name = name
		out[name] = st
	}
	return out
}

// Resolve returns the named provider, or for an empty name the first
// registered provider that reports itself available.
func (g *Gateway) Resolve(ctx context.Context, name string) (Provider, error) {
	if name != "" {
		return g.Lookup(name)
	}
	for _, n := range g.Names() {
		p, err := g.Lookup(n)
		if err != nil {
			continue
		}
		if p.Status(ctx).Available {
			return p, nil
		}
	}
	return nil, ErrNoProviderAvailable
}

// Open starts a completion stream on the named provider, guarded by its
// circuit breaker and the connect retry policy.
func (g *Gateway) Open(ctx context.Context, name string, prompt Prompt) (Stream, error) {
	p, err := g.Lookup(name)
	if err != nil {
		return nil, err
	}

	open := func() (Stream, error) { return g.openWithRetry(ctx, p, prompt) }

	g.mu.RLock()
	cb := g.breakers[name]
	g.mu.RUnlock()

	var stream Stream
	if cb == nil {
		stream, err = open()
	} else {
		var res interface{}
		res, err = cb.Execute(func() (interface{}, error) { return open() })
		if err == nil {
			stream = res.(Stream)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: circuit open for %s", ErrUnreachable, name)
		}
	}
	if err != nil {
		g.metrics.ProviderError(name, reason(err))
		return nil, err
	}
	return stream, nil
}

func (g *Gateway) openWithRetry(ctx context.Context, p Provider, prompt Prompt) (Stream, error) {
	attempts := g.cfg.Retry.MaxAttempts
	if attempts <= 1 {
		return p.Stream(ctx, prompt)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.cfg.Retry.Interval
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = time.Second
	}
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)

	var (
		stream  Stream
		fatal   error
		attempt int
	)
	operation := func() error {
		attempt++
		s, err := p.Stream(ctx, prompt)
		if err == nil {
			stream = s
			return nil
		}
		if !errors.Is(err, ErrUnreachable) {
			fatal = err
			return nil
		}
		g.logger.Warn("opening provider stream failed",
			logging.Field{Key: "provider", Value: p.Name()},
			logging.Field{Key: "attempt", Value: attempt},
			logging.Err(err))
		return err
	}
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	if fatal != nil {
		return nil, fatal
	}
	return stream, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unreachable"
	}
}
