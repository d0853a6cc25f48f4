package probe

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/auditai/internal/model"
)

const (
	categoryHeaders   = "headers"
	categoryExposure  = "exposure"
	categoryCookies   = "cookies"
	categoryCORS      = "cors"
	categoryTransport = "transport"
	categoryForms     = "forms"
)

type headerRule struct {
	header         string
	httpsOnly      bool
	severity       model.Severity
	title          string
	impact         string
	recommendation string
	// satisfied lets another header stand in for this one.
	satisfied func(h http.Header) bool
}

var headerRules = []headerRule{
	{
		header:         "Content-Security-Policy",
		severity:       model.SeverityMedium,
		title:          "Missing Content-Security-Policy header",
		impact:         "Injected scripts run with the full privileges of the page.",
		recommendation: "Define a Content-Security-Policy restricting script, style and frame sources.",
	},
	{
		header:         "Strict-Transport-Security",
		httpsOnly:      true,
		severity:       model.SeverityMedium,
		title:          "Missing Strict-Transport-Security header",
		impact:         "Browsers may be downgraded to plain HTTP on the first visit.",
		recommendation: "Send Strict-Transport-Security with max-age of at least one year.",
	},
	{
		header:         "X-Frame-Options",
		severity:       model.SeverityMedium,
		title:          "Missing clickjacking protection",
		impact:         "The site can be framed by another origin and used for clickjacking.",
		recommendation: "Send X-Frame-Options: DENY or a CSP frame-ancestors directive.",
		satisfied: func(h http.Header) bool {
			return strings.Contains(strings.ToLower(h.Get("Content-Security-Policy")), "frame-ancestors")
		},
	},
	{
		header:         "X-Content-Type-Options",
		severity:       model.SeverityLow,
		title:          "Missing X-Content-Type-Options header",
		impact:         "Browsers may sniff responses into an executable content type.",
		recommendation: "Send X-Content-Type-Options: nosniff.",
	},
	{
		header:         "Referrer-Policy",
		severity:       model.SeverityLow,
		title:          "Missing Referrer-Policy header",
		impact:         "Full URLs, including query strings, leak to third parties.",
		recommendation: "Send Referrer-Policy: strict-origin-when-cross-origin or stricter.",
	},
}

func checkHeaders(h http.Header, https bool) []model.Finding {
	var out []model.Finding
	for _, r := range headerRules {
		if r.httpsOnly && !https {
			continue
		}
		if h.Get(r.header) != "" || (r.satisfied != nil && r.satisfied(h)) {
			continue
		}
		out = append(out, model.Finding{
			Title:          r.title,
			Severity:       r.severity,
			Category:       categoryHeaders,
			Impact:         r.impact,
			Recommendation: r.recommendation,
			Evidence:       r.header + " absent",
		})
	}
	return out
}

func checkExposure(h http.Header) []model.Finding {
	var out []model.Finding
	if v := h.Get("Server"); v != "" {
		out = append(out, model.Finding{
			Title:          "Server header exposed",
			Severity:       model.SeverityInfo,
			Category:       categoryExposure,
			Impact:         "The server software is advertised to every client.",
			Recommendation: "Suppress or obscure the Server header.",
			Evidence:       "Server: " + v,
		})
	}
	if v := h.Get("X-Powered-By"); v != "" {
		out = append(out, model.Finding{
			Title:          "X-Powered-By header exposed",
			Severity:       model.SeverityLow,
			Category:       categoryExposure,
			Impact:         "The application framework and often its version are disclosed.",
			Recommendation: "Remove the X-Powered-By header.",
			Evidence:       "X-Powered-By: " + v,
		})
	}
	return out
}

func cookiesOf(h http.Header) []*http.Cookie {
	return (&http.Response{Header: h}).Cookies()
}

func checkCookies(h http.Header, https bool) []model.Finding {
	var noSecure, noHTTPOnly, noSameSite []string
	for _, c := range cookiesOf(h) {
		if https && !c.Secure {
			noSecure = append(noSecure, c.Name)
		}
		if !c.HttpOnly {
			noHTTPOnly = append(noHTTPOnly, c.Name)
		}
		if c.SameSite == 0 {
			noSameSite = append(noSameSite, c.Name)
		}
	}

	var out []model.Finding
	if len(noSecure) > 0 {
		out = append(out, model.Finding{
			Title:          "Cookies without Secure flag",
			Severity:       model.SeverityMedium,
			Category:       categoryCookies,
			Impact:         "Cookies can be sent over unencrypted connections and intercepted.",
			Recommendation: "Set the Secure attribute on every cookie.",
			Evidence:       strings.Join(noSecure, ", "),
		})
	}
	if len(noHTTPOnly) > 0 {
		out = append(out, model.Finding{
			Title:          "Cookies without HttpOnly flag",
			Severity:       model.SeverityLow,
			Category:       categoryCookies,
			Impact:         "Scripts, including injected ones, can read these cookies.",
			Recommendation: "Set the HttpOnly attribute on cookies scripts do not need.",
			Evidence:       strings.Join(noHTTPOnly, ", "),
		})
	}
	if len(noSameSite) > 0 {
		out = append(out, model.Finding{
			Title:          "Cookies without SameSite attribute",
			Severity:       model.SeverityLow,
			Category:       categoryCookies,
			Impact:         "Cookies are attached to cross-site requests, easing CSRF.",
			Recommendation: "Set SameSite=Lax or SameSite=Strict.",
			Evidence:       strings.Join(noSameSite, ", "),
		})
	}
	return out
}

// checkCORS looks at the passive headers of the landing page.
func checkCORS(h http.Header, cookiesPresent bool) []model.Finding {
	origin := h.Get("Access-Control-Allow-Origin")
	creds := strings.EqualFold(h.Get("Access-Control-Allow-Credentials"), "true")
	if origin != "*" {
		return nil
	}
	if creds {
		sev := model.SeverityMedium
		if cookiesPresent {
			sev = model.SeverityHigh
		}
		return []model.Finding{{
			Title:          "Wildcard CORS origin with credentials",
			Severity:       sev,
			Category:       categoryCORS,
			Impact:         "Any origin may issue credentialed requests and read the answers.",
			Recommendation: "Restrict Access-Control-Allow-Origin to a list of trusted origins.",
			Evidence:       fmt.Sprintf("Access-Control-Allow-Origin: *, Access-Control-Allow-Credentials: true, cookies present: %t", cookiesPresent),
		}}
	}
	sev := model.SeverityInfo
	if cookiesPresent {
		sev = model.SeverityLow
	}
	return []model.Finding{{
		Title:          "Wildcard CORS origin",
		Severity:       sev,
		Category:       categoryCORS,
		Impact:         "Any origin may read responses; acceptable only for public content.",
		Recommendation: "Confirm the resource is public or restrict allowed origins.",
		Evidence:       "Access-Control-Allow-Origin: *",
	}}
}

// checkOriginProbe judges the answer to a request sent with a foreign Origin.
func checkOriginProbe(origin string, h http.Header) []model.Finding {
	allowed := h.Get("Access-Control-Allow-Origin")
	if allowed == "" || allowed == "*" || allowed != origin {
		return nil
	}
	creds := strings.EqualFold(h.Get("Access-Control-Allow-Credentials"), "true")
	sev := model.SeverityMedium
	if creds {
		sev = model.SeverityHigh
	}
	title := "CORS reflects arbitrary origins"
	if origin == "null" {
		title = "CORS trusts the null origin"
	}
	return []model.Finding{{
		Title:          title,
		Severity:       sev,
		Category:       categoryCORS,
		Impact:         "A malicious page can read responses on behalf of visitors.",
		Recommendation: "Validate the Origin header against an explicit allow list.",
		Evidence:       fmt.Sprintf("Origin: %s reflected, credentials allowed: %t", origin, creds),
	}}
}

// checkForms inspects the forms of an HTML page at pageURL.
func checkForms(pageURL *url.URL, body []byte) []model.Finding {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var out []model.Finding
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		passwords := form.Find("input").FilterFunction(func(_ int, in *goquery.Selection) bool {
			return strings.EqualFold(getAttr(in, "type"), "password")
		})
		if passwords.Length() == 0 {
			return
		}
		action := pageURL
		if raw := getAttr(form, "action"); raw != "" {
			if u, err := pageURL.Parse(raw); err == nil {
				action = u
			}
		}
		if action.Scheme == "http" {
			out = append(out, model.Finding{
				Title:          "Password form submitted over HTTP",
				Severity:       model.SeverityHigh,
				Category:       categoryForms,
				Impact:         "Credentials travel in clear text and can be intercepted.",
				Recommendation: "Serve the form and its action exclusively over HTTPS.",
				Evidence:       fmt.Sprintf("form on %s posts to %s", pageURL.Path, action.String()),
			})
		}
		passwords.Each(func(_ int, in *goquery.Selection) {
			switch strings.ToLower(getAttr(in, "autocomplete")) {
			case "off", "new-password", "current-password":
				return
			}
			out = append(out, model.Finding{
				Title:          "Password field without autocomplete policy",
				Severity:       model.SeverityLow,
				Category:       categoryForms,
				Impact:         "Browsers may store the password in shared profiles.",
				Recommendation: `Set autocomplete="current-password" or "new-password" on password fields.`,
				Evidence:       fmt.Sprintf("password input %q on %s", getAttr(in, "name"), pageURL.Path),
			})
		})
	})
	return out
}

// getAttr safely retrieves an attribute value from a goquery selection.
func getAttr(sel *goquery.Selection, name string) string {
	val, exists := sel.Attr(name)
	if exists {
		return strings.TrimSpace(val)
	}
	return ""
}

// mergeFindings collapses findings sharing a title, joining their evidence,
// and orders the result by decreasing severity.
func mergeFindings(in []model.Finding) []model.Finding {
	out := make([]model.Finding, 0, len(in))
	index := make(map[string]int)
	for _, f := range in {
		if i, ok := index[f.Title]; ok {
			if f.Evidence != "" && !strings.Contains(out[i].Evidence, f.Evidence) {
				out[i].Evidence += "; " + f.Evidence
			}
			continue
		}
		index[f.Title] = len(out)
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}
