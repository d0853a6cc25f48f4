package probe_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/probe"
	"github.com/raysh454/auditai/internal/scan"
	"github.com/raysh454/auditai/internal/testutil"
	"github.com/raysh454/auditai/internal/webclient"
)

func newEngine(t *testing.T, cfg probe.Config) *probe.Engine {
	t.Helper()
	wc, err := webclient.NewNetHTTPClient(webclient.Config{
		Timeout:            2 * time.Second,
		MaxRetries:         0,
		InsecureSkipVerify: true,
	}, &testutil.DummyLogger{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wc.Close() })
	return probe.New(wc, cfg, &testutil.DummyLogger{})
}

type progressLog struct {
	mu   sync.Mutex
	msgs []string
}

func (p *progressLog) record(_ eventbus.Level, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func hardened(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Content-Type", "text/html; charset=utf-8")
}

func TestEngine_HardenedSiteGradesA(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hardened(w)
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "1", Secure: true, HttpOnly: true, SameSite: http.SameSiteLaxMode})
		_, _ = io.WriteString(w, `<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a><a href="/d">d</a><a href="/style.css">css</a>`)
	})
	for _, p := range []string{"/a", "/b", "/c", "/d"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			hardened(w)
			_, _ = io.WriteString(w, "<p>page</p>")
		})
	}
	ts := httptest.NewTLSServer(mux)
	defer ts.Close()

	var progress progressLog
	res, err := newEngine(t, probe.Config{}).Run(context.Background(), ts.URL, progress.record)
	require.NoError(t, err)

	assert.Empty(t, res.Findings)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, model.GradeA, res.Grade)
	assert.Equal(t, model.ScanCompleted, res.ScanStatus)
	assert.Equal(t, model.VisibilityGood, res.Visibility)
	assert.Nil(t, res.BlockingMechanism)
	assert.Equal(t, []string{"/", "/a", "/b", "/c", "/d"}, res.Pages)
	assert.Equal(t, ts.URL, res.Target)
	assert.NotEmpty(t, progress.msgs)
	assert.Contains(t, progress.msgs[len(progress.msgs)-1], "scan complete")
}

func TestEngine_WeakSiteCollectsFindings(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "Apache/2.4.1")
		w.Header().Set("X-Powered-By", "PHP/5.6")
		if o := r.Header.Get("Origin"); o != "" {
			w.Header().Set("Access-Control-Allow-Origin", o)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Content-Type", "text/html")
		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "x"})
		_, _ = io.WriteString(w, `<form action="/login" method="post"><input type="password" name="pw"></form>`)
	}))
	defer ts.Close()

	res, err := newEngine(t, probe.Config{}).Run(context.Background(), ts.URL, nil)
	require.NoError(t, err)

	byCategory := map[string]int{}
	for _, f := range res.Findings {
		byCategory[f.Category]++
	}
	assert.Equal(t, 4, byCategory["headers"], "no HSTS check on plain http")
	assert.Equal(t, 2, byCategory["exposure"])
	assert.Equal(t, 2, byCategory["cookies"])
	assert.Equal(t, 2, byCategory["cors"])
	assert.Equal(t, 1, byCategory["transport"])
	assert.Equal(t, 2, byCategory["forms"])

	assert.Equal(t, model.SeverityHigh, res.Findings[0].Severity, "findings sorted by severity")
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, model.GradeF, res.Grade)
}

func TestEngine_ChallengeIsBlocked(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vercel-Mitigated", "challenge")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := newEngine(t, probe.Config{}).Run(context.Background(), ts.URL, nil)
	var blocked *scan.BlockedError
	require.True(t, errors.As(err, &blocked), "got %v", err)
	assert.Equal(t, probe.MechanismChallenge, blocked.Mechanism)
}

func TestEngine_GenericWAFIsBlocked(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := newEngine(t, probe.Config{}).Run(context.Background(), ts.URL, nil)
	var blocked *scan.BlockedError
	require.True(t, errors.As(err, &blocked), "got %v", err)
	assert.Equal(t, probe.MechanismGenericWAF, blocked.Mechanism)
}

func TestEngine_PartialBlockingLimitsVisibility(t *testing.T) {
	t.Parallel()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hardened(w)
		switch r.URL.Path {
		case "/":
			_, _ = io.WriteString(w, `<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a>`)
		case "/a", "/b":
			w.WriteHeader(http.StatusForbidden)
		default:
			_, _ = io.WriteString(w, "ok")
		}
	}))
	defer ts.Close()

	res, err := newEngine(t, probe.Config{}).Run(context.Background(), ts.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ScanCompleted, res.ScanStatus)
	assert.Equal(t, model.VisibilityLimited, res.Visibility)
	require.NotNil(t, res.BlockingMechanism)
	assert.Equal(t, probe.MechanismRateLimited, *res.BlockingMechanism)
	assert.Equal(t, []string{"/", "/c"}, res.Pages)
}

func TestEngine_CrawlIsCapped(t *testing.T) {
	t.Parallel()
	var (
		mu    sync.Mutex
		paths []string
	)
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hardened(w)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		for i := 0; i < 10; i++ {
			fmt.Fprintf(w, `<a href="/p%d">p</a>`, i)
		}
	}))
	defer ts.Close()

	res, err := newEngine(t, probe.Config{MaxCrawlURLs: 3}).Run(context.Background(), ts.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/p0", "/p1", "/p2"}, res.Pages)

	mu.Lock()
	defer mu.Unlock()
	crawled := 0
	for _, p := range paths {
		if len(p) == 3 && strings.HasPrefix(p, "/p") {
			crawled++
		}
	}
	assert.Equal(t, 3, crawled)
}

func TestEngine_UnreachableTargetFails(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := ts.URL
	ts.Close()

	_, err := newEngine(t, probe.Config{}).Run(context.Background(), target, nil)
	require.Error(t, err)
	var blocked *scan.BlockedError
	assert.False(t, errors.As(err, &blocked))
}

func TestEngine_CanceledDuringStepDelay(t *testing.T) {
	t.Parallel()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hardened(w) }))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newEngine(t, probe.Config{StepDelay: time.Minute}).Run(ctx, ts.URL, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_DiscoversSensitivePaths(t *testing.T) {
	t.Parallel()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			hardened(w)
			_, _ = io.WriteString(w, "<p>home</p>")
		case "/.env":
			_, _ = io.WriteString(w, "APP_ENV=production\nDB_PASSWORD=hunter2\n")
		case "/.git/HEAD":
			_, _ = io.WriteString(w, "ref: refs/heads/main\n")
		case "/phpinfo.php":
			w.WriteHeader(http.StatusForbidden)
		case "/admin":
			http.Redirect(w, r, "/login?next=/admin", http.StatusFound)
		case "/login", "/robots.txt":
			hardened(w)
			_, _ = io.WriteString(w, "<form></form>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	var progress progressLog
	res, err := newEngine(t, probe.Config{}).Run(context.Background(), ts.URL, progress.record)
	require.NoError(t, err)

	var paths []model.Finding
	for _, f := range res.Findings {
		if f.Category == "paths" {
			paths = append(paths, f)
		}
	}
	require.Len(t, paths, 2)
	assert.Equal(t, "Environment file exposed", paths[0].Title)
	assert.Equal(t, model.SeverityHigh, paths[0].Severity)
	assert.Equal(t, "Git repository exposed", paths[1].Title)
	assert.Equal(t, model.SeverityHigh, paths[1].Severity)

	assert.Contains(t, res.Pages, "/login")
	assert.Contains(t, res.Pages, "/robots.txt")
	assert.NotContains(t, res.Pages, "/admin")
	assert.Contains(t, progress.msgs, "path discovery found 2 exposed endpoints")
	assert.Nil(t, res.BlockingMechanism, "restricted paths are not counted as blocking")
}

func TestEngine_PathDiscoveryIgnoresCatchAllPages(t *testing.T) {
	t.Parallel()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hardened(w)
		_, _ = io.WriteString(w, "<!doctype html><p>single page app</p>")
	}))
	defer ts.Close()

	res, err := newEngine(t, probe.Config{}).Run(context.Background(), ts.URL, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Equal(t, []string{"/"}, res.Pages)
}
