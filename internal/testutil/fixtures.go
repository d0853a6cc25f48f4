package testutil

import (
	"context"
	"time"

	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/scan"
)

// ─── Fixtures ──────────────────────────────────────────────────────────

// AnalysisJSON is a well-formed model answer for SampleScan.
const AnalysisJSON = `{
  "globalScore": {"letter": "C", "numeric": 72},
  "overallRiskLevel": "Medium",
  "executiveSummary": "The site is reachable but misses protective headers.",
  "top3Vulnerabilities": [
    {"title": "No Content-Security-Policy", "severity": "High", "area": "All pages",
     "explanation_simple": "Injected scripts would run freely.", "fix_recommendation": "Add a CSP header."},
    {"title": "Verbose server banner", "severity": "Low", "area": "All pages",
     "explanation_simple": "The server says which software it runs.", "fix_recommendation": "Hide the Server header."}
  ],
  "siteMap": {"total_pages": 2, "pages": ["/", "/login"]}
}`

// SampleScan returns a completed scan result with two findings.
func SampleScan(target string) *model.ScanResult {
	findings := []model.Finding{
		{Title: "Missing Content-Security-Policy", Severity: model.SeverityMedium, Category: "headers"},
		{Title: "Server version disclosed", Severity: model.SeverityLow, Category: "exposure"},
	}
	score := model.Score(findings)
	return &model.ScanResult{
		Target:     target,
		Grade:      model.GradeFor(score),
		Score:      score,
		ScanStatus: model.ScanCompleted,
		Visibility: model.VisibilityGood,
		Findings:   findings,
		Pages:      []string{"/", "/login"},
		ScannedAt:  time.Now().UTC(),
	}
}

// StaticProber reports two progress lines and answers SampleScan, or Err
// when set.
type StaticProber struct {
	Err   error
	Delay time.Duration
}

var _ scan.Prober = (*StaticProber)(nil)

func (p *StaticProber) Run(ctx context.Context, target string, progress scan.Progress) (*model.ScanResult, error) {
	progress(eventbus.LevelInfo, "fetching "+target)
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	progress(eventbus.LevelInfo, "checking security headers")
	if p.Err != nil {
		return nil, p.Err
	}
	return SampleScan(target), nil
}
