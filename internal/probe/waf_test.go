package probe

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/webclient"
)

func exchanges(codes ...int) []webclient.Exchange {
	out := make([]webclient.Exchange, len(codes))
	for i, c := range codes {
		out[i] = webclient.Exchange{Method: "GET", URL: "https://example.com/", StatusCode: c, Headers: http.Header{}}
	}
	return out
}

func TestDetectProtection(t *testing.T) {
	t.Parallel()

	challenge := exchanges(403, 403, 403, 200, 200)
	challenge[0].Headers.Set("X-Vercel-Mitigated", "challenge")

	lowChallenge := exchanges(403, 200, 200, 200, 200)
	lowChallenge[0].Headers.Set("X-Vercel-Challenge-Token", "abc")

	paths := exchanges(200, 200, 200, 200, 200)
	for i, p := range []string{"/", "/a", "/b", "/c", "/d"} {
		paths[i].URL = "https://example.com" + p
	}

	withErrors := append(exchanges(403, 403, 403, 403, 403), webclient.Exchange{URL: "https://example.com:443/", Err: "connection refused"})

	tests := []struct {
		name    string
		history []webclient.Exchange
		want    Verdict
	}{
		{"no traffic", nil, Verdict{Visibility: model.VisibilityNone}},
		{"challenge at 60%", challenge, Verdict{Blocked: true, Mechanism: MechanismChallenge, Visibility: model.VisibilityPoor}},
		{"challenge header below ratio", lowChallenge, Verdict{Visibility: model.VisibilityPartial}},
		{"generic above 80%", exchanges(200, 403, 403, 403, 403, 429), Verdict{Blocked: true, Mechanism: MechanismGenericWAF, Visibility: model.VisibilityPoor}},
		{"exactly 80% is partial", exchanges(200, 403, 403, 403, 403), Verdict{Mechanism: MechanismRateLimited, Visibility: model.VisibilityLimited}},
		{"rate limited above 30%", exchanges(200, 200, 429, 429, 200), Verdict{Mechanism: MechanismRateLimited, Visibility: model.VisibilityLimited}},
		{"few paths", exchanges(200, 200, 404), Verdict{Visibility: model.VisibilityPartial}},
		{"many paths", paths, Verdict{Visibility: model.VisibilityGood}},
		{"transport errors ignored", withErrors, Verdict{Blocked: true, Mechanism: MechanismGenericWAF, Visibility: model.VisibilityPoor}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectProtection(tt.history))
		})
	}
}
