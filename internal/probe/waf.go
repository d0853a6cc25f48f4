package probe

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/webclient"
)

const (
	MechanismChallenge   = "waf_challenge"
	MechanismGenericWAF  = "generic_waf"
	MechanismRateLimited = "rate_limited"
)

const (
	challengeRatio = 0.6
	blockedRatio   = 0.8
	partialRatio   = 0.3
	goodPathCount  = 4
)

// Verdict is what the traffic history says about protection layers.
type Verdict struct {
	Blocked    bool
	Mechanism  string
	Visibility model.Visibility
}

// DetectProtection inspects answered exchanges. A challenge header with at
// least 60% refused answers, or more than 80% refused answers, means the
// scan was blocked; more than 30% means partial visibility.
func DetectProtection(history []webclient.Exchange) Verdict {
	var (
		total, refused, ok int
		challenge          bool
		paths              = make(map[string]struct{})
	)
	for _, e := range history {
		if e.Err != "" || e.StatusCode == 0 {
			continue
		}
		total++
		switch {
		case isRefusal(e.StatusCode):
			refused++
		case e.StatusCode >= 200 && e.StatusCode < 400:
			ok++
			if u, err := url.Parse(e.URL); err == nil && u.Path != "" && u.Path != "/" {
				paths[u.Path] = struct{}{}
			}
		}
		if hasChallengeHeader(e.Headers) {
			challenge = true
		}
	}

	if total == 0 {
		return Verdict{Visibility: model.VisibilityNone}
	}

	ratio := float64(refused) / float64(total)
	switch {
	case challenge && ratio >= challengeRatio:
		return Verdict{Blocked: true, Mechanism: MechanismChallenge, Visibility: model.VisibilityPoor}
	case ratio > blockedRatio:
		return Verdict{Blocked: true, Mechanism: MechanismGenericWAF, Visibility: model.VisibilityPoor}
	case ratio > partialRatio:
		mech := MechanismRateLimited
		if challenge {
			mech = MechanismChallenge
		}
		return Verdict{Mechanism: mech, Visibility: model.VisibilityLimited}
	}

	if ok > 0 && len(paths) >= goodPathCount {
		return Verdict{Visibility: model.VisibilityGood}
	}
	return Verdict{Visibility: model.VisibilityPartial}
}

func isRefusal(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusTooManyRequests
}

func hasChallengeHeader(h http.Header) bool {
	if h == nil {
		return false
	}
	if strings.EqualFold(h.Get("X-Vercel-Mitigated"), "challenge") {
		return true
	}
	return h.Get("X-Vercel-Challenge-Token") != "" || h.Get("Cf-Mitigated") == "challenge"
}
