package model

// GlobalScore is the provider's overall verdict.
type GlobalScore struct {
	Letter  string `json:"letter" validate:"required"`
	Numeric int    `json:"numeric" validate:"gte=0,lte=100"`
}

// Vulnerability is one of the ranked issues in an analysis.
type Vulnerability struct {
	Title             string   `json:"title" validate:"required"`
	Severity          Severity `json:"severity" validate:"required"`
	Area              string   `json:"area"`
	ExplanationSimple string   `json:"explanation_simple"`
	FixRecommendation string   `json:"fix_recommendation"`
}

// SiteMap lists the pages the analysis refers to.
type SiteMap struct {
	TotalPages int      `json:"total_pages" validate:"gte=0"`
	Pages      []string `json:"pages"`
}

// AnalysisResult is the structured report reconstructed from a provider's
// streamed output. Provider and Model are filled in by the server.
type AnalysisResult struct {
	GlobalScore         GlobalScore     `json:"globalScore"`
	OverallRiskLevel    string          `json:"overallRiskLevel" validate:"required"`
	ExecutiveSummary    string          `json:"executiveSummary" validate:"required"`
	Top3Vulnerabilities []Vulnerability `json:"top3Vulnerabilities" validate:"min=1,dive"`
	SiteMap             SiteMap         `json:"siteMap"`
	Provider            string          `json:"provider,omitempty"`
	Model               string          `json:"model,omitempty"`
}
