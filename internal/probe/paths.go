package probe

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/webclient"
)

const (
	categoryPaths = "paths"

	// notFoundCheckPath is requested first to learn how the site answers
	// for a path that cannot exist.
	notFoundCheckPath = "/auditai-path-check-404"
	discoveryWorkers  = 4
)

// sensitivePath is a well-known location that should never be publicly
// readable.
type sensitivePath struct {
	path           string
	severity       model.Severity
	title          string
	impact         string
	recommendation string
	// matches confirms that a 200 body really is the resource and not a
	// generic page.
	matches func(body []byte) bool
}

var (
	envLine = regexp.MustCompile(`(?m)^[A-Z][A-Z0-9_]*=`)
	gitHead = regexp.MustCompile(`^(ref: refs/|[0-9a-f]{40}\s*$)`)
)

var sensitivePaths = []sensitivePath{
	{
		path:           "/.env",
		severity:       model.SeverityHigh,
		title:          "Environment file exposed",
		impact:         "Environment files usually hold database passwords, API keys and signing secrets.",
		recommendation: "Remove the file from the web root and rotate every secret it contained.",
		matches:        func(b []byte) bool { return !looksLikeHTML(b) && envLine.Match(b) },
	},
	{
		path:           "/.git/HEAD",
		severity:       model.SeverityHigh,
		title:          "Git repository exposed",
		impact:         "The repository, including history and any committed secrets, can be downloaded.",
		recommendation: "Deny access to /.git and deploy build artifacts instead of working copies.",
		matches:        func(b []byte) bool { return gitHead.Match(bytes.TrimSpace(b)) },
	},
	{
		path:           "/backup.zip",
		severity:       model.SeverityHigh,
		title:          "Backup archive exposed",
		impact:         "Backup archives often contain source code, configuration and database dumps.",
		recommendation: "Store backups outside the web root.",
		matches:        func(b []byte) bool { return bytes.HasPrefix(b, []byte("PK\x03\x04")) },
	},
	{
		path:           "/phpinfo.php",
		severity:       model.SeverityMedium,
		title:          "phpinfo page exposed",
		impact:         "The page discloses the PHP version, loaded modules, paths and environment variables.",
		recommendation: "Delete phpinfo pages from production servers.",
		matches: func(b []byte) bool {
			return bytes.Contains(b, []byte("phpinfo()")) || bytes.Contains(b, []byte("PHP Version"))
		},
	},
	{
		path:           "/admin",
		severity:       model.SeverityMedium,
		title:          "Admin interface reachable without authentication",
		impact:         "The administration area answers anonymous visitors instead of asking them to log in.",
		recommendation: "Put the admin interface behind authentication or restrict it to trusted networks.",
	},
	{
		path:           "/config",
		severity:       model.SeverityMedium,
		title:          "Configuration endpoint exposed",
		impact:         "Configuration endpoints can leak internal hostnames, credentials and feature flags.",
		recommendation: "Remove the endpoint or require authentication.",
	},
}

// commonPaths are recorded as pages when they answer, but are not findings
// on their own.
var commonPaths = []string{"/login", "/auth", "/dashboard", "/api", "/backup", "/robots.txt", "/sitemap.xml"}

var loginPaths = []string{"/login", "/signin", "/sign-in", "/auth/login", "/auth/signin", "/account/login", "/user/login"}

// pathAccess classifies how a discovered path answered.
type pathAccess string

const (
	accessMissing       pathAccess = "missing"
	accessDirect        pathAccess = "direct"
	accessRestricted    pathAccess = "restricted"
	accessLoginRedirect pathAccess = "login_redirect"
)

type pathResult struct {
	path   string
	access pathAccess
	resp   *webclient.Response
}

// discoverPaths requests a dictionary of well-known paths. Requests go
// around the traffic history so they do not skew protection detection.
func (r *run) discoverPaths(ctx context.Context) error {
	base := *r.root
	base.RawQuery, base.Fragment = "", ""

	notFound, err := webclient.Get(ctx, r.e.client, resolvePath(&base, notFoundCheckPath))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.progress(eventbus.LevelWarn, "path discovery skipped: "+err.Error())
		return nil
	}
	var fallback []byte
	if notFound.StatusCode == http.StatusOK {
		fallback = notFound.Body
		r.progress(eventbus.LevelDebug, "site answers 200 for missing paths")
	}

	paths := make([]string, 0, len(sensitivePaths)+len(commonPaths))
	for _, s := range sensitivePaths {
		paths = append(paths, s.path)
	}
	paths = append(paths, commonPaths...)

	results := make([]pathResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoveryWorkers)
	for i, p := range paths {
		g.Go(func() error {
			resp, err := webclient.Get(gctx, r.e.client, resolvePath(&base, p))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				results[i] = pathResult{path: p, access: accessMissing}
				return nil
			}
			results[i] = pathResult{path: p, access: classifyAccess(resp, fallback), resp: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	exposed := 0
	for i, res := range results {
		if res.access == accessMissing {
			continue
		}
		r.progress(eventbus.LevelDebug, fmt.Sprintf("%d %s (%s)", res.resp.StatusCode, res.path, res.access))
		if i >= len(sensitivePaths) {
			if res.access == accessDirect {
				r.addPage(pagePath(res.resp.FinalURL))
			}
			continue
		}
		if f, ok := sensitivePaths[i].finding(res); ok {
			exposed++
			r.add(f)
		}
	}
	r.progress(eventbus.LevelInfo, fmt.Sprintf("path discovery found %d exposed endpoints", exposed))
	return nil
}

func (s sensitivePath) finding(res pathResult) (model.Finding, bool) {
	if res.access != accessDirect {
		return model.Finding{}, false
	}
	if s.matches != nil && !s.matches(res.resp.Body) {
		return model.Finding{}, false
	}
	return model.Finding{
		Title:          s.title,
		Severity:       s.severity,
		Category:       categoryPaths,
		Impact:         s.impact,
		Recommendation: s.recommendation,
		Evidence:       fmt.Sprintf("GET %s returned %d", s.path, res.resp.StatusCode),
	}, true
}

// classifyAccess decides whether resp shows the resource. fallback is the
// body the site serves for missing paths when it answers them with 200.
func classifyAccess(resp *webclient.Response, fallback []byte) pathAccess {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return accessRestricted
	case http.StatusOK:
	default:
		return accessMissing
	}
	if resp.Redirects > 0 && isLoginURL(resp.FinalURL) {
		return accessLoginRedirect
	}
	if fallback != nil && bytes.Equal(resp.Body, fallback) {
		return accessMissing
	}
	return accessDirect
}

func isLoginURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, l := range loginPaths {
		if strings.Contains(p, l) {
			return true
		}
	}
	return false
}

func resolvePath(base *url.URL, p string) string {
	u := *base
	u.Path = p
	u.RawPath = ""
	return u.String()
}

func looksLikeHTML(b []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(b))
	if len(head) > 64 {
		head = head[:64]
	}
	return bytes.HasPrefix(head, []byte("<!doctype")) || bytes.HasPrefix(head, []byte("<html"))
}
