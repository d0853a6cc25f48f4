// Package probe is the passive measurement engine behind scan jobs: it
// fetches the target, crawls a handful of same-site pages, runs header,
// cookie, CORS, transport and form checks, decides whether a protection
// layer filtered the traffic and looks for well-known sensitive paths.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/logging"
	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/scan"
	"github.com/raysh454/auditai/internal/webclient"
)

const (
	DefaultMaxCrawlURLs = 20
	probeOrigin         = "https://auditai-origin-check.invalid"
)

type Config struct {
	MaxCrawlURLs int
	// StepDelay pauses between steps so progress is observable.
	StepDelay time.Duration
}

// Engine implements scan.Prober.
type Engine struct {
	client webclient.WebClient
	cfg    Config
	logger logging.Logger
	now    func() time.Time
}

var _ scan.Prober = (*Engine)(nil)

func New(client webclient.WebClient, cfg Config, logger logging.Logger) *Engine {
	if cfg.MaxCrawlURLs < 0 {
		cfg.MaxCrawlURLs = 0
	} else if cfg.MaxCrawlURLs == 0 {
		cfg.MaxCrawlURLs = DefaultMaxCrawlURLs
	}
	return &Engine{
		client: client,
		cfg:    cfg,
		logger: logger.With(logging.Field{Key: "component", Value: "probe"}),
		now:    time.Now,
	}
}

type run struct {
	e        *Engine
	wc       webclient.WebClient
	history  *webclient.History
	progress scan.Progress
	root     *url.URL
	findings []model.Finding
	pages    []string
}

// Run probes target, which must be an absolute http(s) URL.
func (e *Engine) Run(ctx context.Context, target string, progress scan.Progress) (*model.ScanResult, error) {
	root, err := url.Parse(target)
	if err != nil || root.Host == "" {
		return nil, fmt.Errorf("probe: invalid target %q", target)
	}
	if progress == nil {
		progress = func(eventbus.Level, string) {}
	}

	history := &webclient.History{}
	r := &run{
		e:        e,
		wc:       webclient.Recording(e.client, history),
		history:  history,
		progress: progress,
		root:     root,
	}

	progress(eventbus.LevelInfo, "fetching "+target)
	landing, err := webclient.Get(ctx, r.wc, target)
	if err != nil {
		return nil, fmt.Errorf("probe: fetching %s: %w", target, err)
	}
	progress(eventbus.LevelInfo, fmt.Sprintf("response %d from %s in %dms", landing.StatusCode, landing.FinalURL, landing.Duration.Milliseconds()))
	r.pages = append(r.pages, pagePath(landing.FinalURL))

	https := root.Scheme == "https"
	steps := []struct {
		msg string
		fn  func(context.Context, *webclient.Response, bool) error
	}{
		{"checking security headers", r.headers},
		{"checking cookies and CORS policy", r.cookiesAndCORS},
		{"checking transport security", r.transport},
		{"crawling same-site pages", r.crawl},
	}
	for _, s := range steps {
		if err := e.pause(ctx); err != nil {
			return nil, err
		}
		progress(eventbus.LevelInfo, s.msg)
		if err := s.fn(ctx, landing, https); err != nil {
			return nil, err
		}
	}

	progress(eventbus.LevelInfo, "analyzing traffic for protection layers")
	verdict := DetectProtection(history.Entries())
	if verdict.Blocked {
		progress(eventbus.LevelWarn, "traffic filtered by "+verdict.Mechanism)
		return nil, &scan.BlockedError{Mechanism: verdict.Mechanism}
	}

	if err := e.pause(ctx); err != nil {
		return nil, err
	}
	progress(eventbus.LevelInfo, "discovering sensitive paths")
	if err := r.discoverPaths(ctx); err != nil {
		return nil, err
	}

	findings := mergeFindings(r.findings)
	score := model.Score(findings)
	result := &model.ScanResult{
		Target:         target,
		Grade:          model.GradeFor(score),
		Score:          score,
		ScanStatus:     model.ScanCompleted,
		Visibility:     verdict.Visibility,
		Findings:       findings,
		Pages:          r.pages,
		ScannedAt:      e.now().UTC(),
		ResponseTimeMs: landing.Duration.Milliseconds(),
	}
	if verdict.Mechanism != "" {
		m := verdict.Mechanism
		result.BlockingMechanism = &m
		progress(eventbus.LevelWarn, "visibility limited: "+m)
	}
	progress(eventbus.LevelInfo, fmt.Sprintf("scan complete: grade %s (%d/100), %d findings, %d requests",
		result.Grade, result.Score, len(findings), history.Len()))
	return result, nil
}

func (e *Engine) pause(ctx context.Context) error {
	if e.cfg.StepDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.cfg.StepDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *run) add(f ...model.Finding) {
	for _, x := range f {
		r.progress(eventbus.LevelDebug, fmt.Sprintf("finding [%s] %s", x.Severity, x.Title))
	}
	r.findings = append(r.findings, f...)
}

func (r *run) addPage(p string) {
	for _, have := range r.pages {
		if have == p {
			return
		}
	}
	r.pages = append(r.pages, p)
}

func (r *run) headers(_ context.Context, landing *webclient.Response, https bool) error {
	r.add(checkHeaders(landing.Headers, https)...)
	r.add(checkExposure(landing.Headers)...)
	return nil
}

func (r *run) cookiesAndCORS(ctx context.Context, landing *webclient.Response, https bool) error {
	r.add(checkCookies(landing.Headers, https)...)
	cookies := len(cookiesOf(landing.Headers)) > 0
	r.add(checkCORS(landing.Headers, cookies)...)

	for _, origin := range []string{probeOrigin, "null"} {
		resp, err := r.wc.Do(ctx, &webclient.Request{
			Method:  http.MethodGet,
			URL:     r.root.String(),
			Headers: http.Header{"Origin": []string{origin}},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.progress(eventbus.LevelWarn, "origin probe failed: "+err.Error())
			continue
		}
		r.add(checkOriginProbe(origin, resp.Headers)...)
	}
	return nil
}

// transport checks that a plain-http target upgrades to https.
func (r *run) transport(ctx context.Context, landing *webclient.Response, https bool) error {
	if https {
		return nil
	}
	final, _ := url.Parse(landing.FinalURL)
	if final != nil && final.Scheme == "https" {
		r.progress(eventbus.LevelInfo, "http redirects to https")
		return nil
	}

	secure := *r.root
	secure.Scheme = "https"
	secure.Host = r.root.Hostname()
	secure.Path = "/"
	_, err := webclient.Get(ctx, r.wc, secure.String())
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		r.add(model.Finding{
			Title:          "HTTPS is not enforced",
			Severity:       model.SeverityHigh,
			Category:       categoryTransport,
			Impact:         "Visitors reaching the site over HTTP are never upgraded and can be intercepted.",
			Recommendation: "Redirect all HTTP traffic to HTTPS with a 301 and enable HSTS.",
			Evidence:       fmt.Sprintf("%s served without redirect; %s reachable", landing.FinalURL, secure.String()),
		})
		return nil
	}
	r.add(model.Finding{
		Title:          "Site is not served over HTTPS",
		Severity:       model.SeverityHigh,
		Category:       categoryTransport,
		Impact:         "All traffic, including credentials and cookies, travels in clear text.",
		Recommendation: "Obtain a certificate and serve the site over HTTPS only.",
		Evidence:       fmt.Sprintf("%s unreachable", secure.String()),
	})
	return nil
}

func (r *run) crawl(ctx context.Context, landing *webclient.Response, _ bool) error {
	base, err := url.Parse(landing.FinalURL)
	if err != nil {
		base = r.root
	}
	if isHTML(landing.Headers.Get("Content-Type")) {
		r.add(checkForms(base, landing.Body)...)
	} else {
		return nil
	}

	links := extractLinks(base, landing.Body)
	self := base.String()
	candidates := links[:0]
	for _, l := range links {
		if l != self && l != r.root.String() {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) > r.e.cfg.MaxCrawlURLs {
		candidates = candidates[:r.e.cfg.MaxCrawlURLs]
	}
	r.progress(eventbus.LevelInfo, fmt.Sprintf("discovered %d links", len(candidates)))

	seen := map[string]struct{}{r.pages[0]: {}}
	for _, link := range candidates {
		resp, err := webclient.Get(ctx, r.wc, link)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.progress(eventbus.LevelWarn, "fetch failed: "+link)
			continue
		}
		r.progress(eventbus.LevelDebug, fmt.Sprintf("%d %s", resp.StatusCode, link))
		if resp.StatusCode >= 400 {
			continue
		}
		p := pagePath(resp.FinalURL)
		if _, dup := seen[p]; !dup {
			seen[p] = struct{}{}
			r.pages = append(r.pages, p)
		}
		if isHTML(resp.Headers.Get("Content-Type")) {
			if u, err := url.Parse(resp.FinalURL); err == nil {
				r.add(checkForms(u, resp.Body)...)
			}
		}
	}
	return nil
}
