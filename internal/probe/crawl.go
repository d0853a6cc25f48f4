package probe

import (
	"bytes"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

var staticExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {},
	".ico": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {}, ".mp4": {}, ".webm": {},
	".mp3": {}, ".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {},
}

// registrableDomain returns the eTLD+1 of host. IP addresses and names
// without a public suffix are their own domain.
func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

func inScope(root, u *url.URL) bool {
	return registrableDomain(root.Hostname()) == registrableDomain(u.Hostname())
}

func isHTML(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/html")
}

// extractLinks returns the in-scope, non-static page links of an HTML
// document, resolved against base, without fragments, sorted and unique.
func extractLinks(base *url.URL, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			return
		}
		u, err := base.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		u.Fragment = ""
		if !inScope(base, u) {
			return
		}
		if _, static := staticExtensions[strings.ToLower(path.Ext(u.Path))]; static {
			return
		}
		seen[u.String()] = struct{}{}
	}

	doc.Find("a[href], link[href]").Each(func(_ int, s *goquery.Selection) { add(getAttr(s, "href")) })
	doc.Find("iframe[src], frame[src]").Each(func(_ int, s *goquery.Selection) { add(getAttr(s, "src")) })
	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) { add(getAttr(s, "action")) })

	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func pagePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
