package webclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"github.com/raysh454/auditai/internal/logging"
)

const (
	maxRedirects = 10
	maxBodyBytes = 5 << 20
)

// net/http backed implementation of webclient.
type NetHTTPClient struct {
	client  *http.Client
	cfg     Config
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewNetHTTPClient builds the default backend. httpClient may be nil.
func NewNetHTTPClient(cfg Config, logger logging.Logger, httpClient *http.Client) (*NetHTTPClient, error) {
	cfg = cfg.withDefaults()
	componentLogger := logger.With(logging.Field{Key: "backend", Value: "nethttp"})

	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // scanning self-signed targets
		}
		httpClient = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	componentLogger.Debug("created nethttp webclient",
		logging.Field{Key: "timeout", Value: httpClient.Timeout.String()},
		logging.Field{Key: "rate_limit", Value: cfg.RateLimit})

	return &NetHTTPClient{
		client:  httpClient,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  componentLogger,
	}, nil
}

// Do executes req, waiting for the rate limiter and retrying transport
// failures. Any HTTP status is a successful exchange.
func (nhc *NetHTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var (
		resp      *Response
		fatal     error
		attempts  int
		lastError error
	)
	start := time.Now()

	operation := func() error {
		attempts++
		if err := nhc.limiter.Wait(ctx); err != nil {
			fatal = err
			return nil
		}
		r, err := nhc.roundTrip(ctx, method, req)
		if err == nil {
			resp = r
			return nil
		}
		var buildErr *requestError
		if errors.As(err, &buildErr) || ctx.Err() != nil {
			fatal = err
			return nil
		}
		lastError = err
		nhc.logger.Warn("http request failed",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "attempt", Value: attempts},
			logging.Err(err))
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(nhc.cfg.RetryInterval), uint64(nhc.cfg.MaxRetries)),
		ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if lastError != nil {
			err = lastError
		}
		return nil, fmt.Errorf("http do %s %s after %d attempts: %w", method, req.URL, attempts, err)
	}
	if fatal != nil {
		return nil, fmt.Errorf("http do %s %s: %w", method, req.URL, fatal)
	}

	resp.Retries = attempts - 1
	resp.Duration = time.Since(start)
	return resp, nil
}

type requestError struct{ err error }

func (e *requestError) Error() string { return "create request: " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func (nhc *NetHTTPClient) roundTrip(ctx context.Context, method string, req *Request) (*Response, error) {
	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, &requestError{err: err}
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", nhc.cfg.UserAgent)
	}

	redirects := 0
	client := *nhc.client
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		redirects = len(via)
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	nhc.logger.Debug("sending http request",
		logging.Field{Key: "method", Value: method},
		logging.Field{Key: "url", Value: req.URL})

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		Request:    req,
		Body:       body,
		Headers:    httpResp.Header,
		StatusCode: httpResp.StatusCode,
		FinalURL:   httpResp.Request.URL.String(),
		Redirects:  redirects,
		FetchedAt:  time.Now(),
	}, nil
}

func (nhc *NetHTTPClient) Close() error {
	nhc.client.CloseIdleConnections()
	return nil
}

// HTTPClient returns the underlying *http.Client
func (nhc *NetHTTPClient) HTTPClient() *http.Client {
	return nhc.client
}
