// Package report renders scan and analysis results as PDF documents.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	gofpdf "github.com/go-pdf/fpdf"

	"github.com/raysh454/auditai/internal/model"
)

var ErrNoScan = errors.New("report needs a scan result")

var severityColors = map[model.Severity][]int{
	model.SeverityCritical: {153, 27, 27},
	model.SeverityHigh:     {220, 38, 38},
	model.SeverityMedium:   {217, 119, 6},
	model.SeverityLow:      {37, 99, 235},
	model.SeverityInfo:     {100, 116, 139},
}

var gradeColors = map[model.Grade][]int{
	model.GradeA: {22, 163, 74},
	model.GradeB: {101, 163, 13},
	model.GradeC: {202, 138, 4},
	model.GradeD: {234, 88, 12},
	model.GradeE: {220, 38, 38},
	model.GradeF: {153, 27, 27},
}

// Render builds the PDF report of scan, enriched with analysis when it is
// not nil.
func Render(scan *model.ScanResult, analysis *model.AnalysisResult) ([]byte, error) {
	return render(scan, analysis, true)
}

type writer struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

func render(scan *model.ScanResult, analysis *model.AnalysisResult, compress bool) ([]byte, error) {
	if scan == nil {
		return nil, ErrNoScan
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetTitle("AuditAI security report", true)
	pdf.SetCreator("auditai", true)
	if !scan.ScannedAt.IsZero() {
		pdf.SetCreationDate(scan.ScannedAt)
		pdf.SetModificationDate(scan.ScannedAt)
	}
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AliasNbPages("")

	w := &writer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, w.tr(fmt.Sprintf("AuditAI report for %s - page %d/{nb}", scan.Target, pdf.PageNo())), "", 0, "C", false, 0, "")
	})

	w.cover(scan, analysis)
	if analysis != nil {
		w.analysis(analysis)
	}
	if scan.ScanStatus != model.ScanBlocked {
		w.findings(scan)
		w.siteMap(scan, analysis)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *writer) section(title string) {
	w.pdf.Ln(4)
	w.pdf.SetFont("Helvetica", "B", 14)
	w.pdf.SetTextColor(30, 41, 59)
	w.pdf.CellFormat(0, 9, w.tr(title), "B", 1, "L", false, 0, "")
	w.pdf.Ln(3)
}

func (w *writer) text(size float64, s string) {
	w.pdf.SetFont("Helvetica", "", size)
	w.pdf.SetTextColor(60, 60, 60)
	w.pdf.MultiCell(0, 5, w.tr(s), "", "L", false)
}

func (w *writer) keyValue(k, v string) {
	w.pdf.SetFont("Helvetica", "B", 10)
	w.pdf.SetTextColor(60, 60, 60)
	w.pdf.CellFormat(45, 7, w.tr(k), "", 0, "L", false, 0, "")
	w.pdf.SetFont("Helvetica", "", 10)
	w.pdf.CellFormat(0, 7, w.tr(v), "", 1, "L", false, 0, "")
}

func (w *writer) cover(scan *model.ScanResult, analysis *model.AnalysisResult) {
	pdf := w.pdf
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(30, 41, 59)
	pdf.CellFormat(0, 14, "Security Audit Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, w.tr(scan.Target), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	grade := string(scan.Grade)
	if grade == "" {
		grade = string(model.GradeNA)
	}
	color, ok := gradeColors[scan.Grade]
	if !ok {
		color = []int{120, 120, 120}
	}
	pdf.SetFillColor(color[0], color[1], color[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 28)
	pdf.CellFormat(30, 22, grade, "", 0, "C", true, 0, "")
	pdf.SetX(pdf.GetX() + 6)
	pdf.SetTextColor(60, 60, 60)
	pdf.SetFont("Helvetica", "", 12)
	if scan.ScanStatus == model.ScanBlocked {
		pdf.CellFormat(0, 22, "Score unavailable", "", 1, "L", false, 0, "")
	} else {
		pdf.CellFormat(0, 22, fmt.Sprintf("Score %d/100", scan.Score), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	w.keyValue("Status", string(scan.ScanStatus))
	if scan.BlockingMechanism != nil {
		w.keyValue("Protection layer", *scan.BlockingMechanism)
	}
	if scan.Visibility != "" {
		w.keyValue("Visibility", string(scan.Visibility))
	}
	if !scan.ScannedAt.IsZero() {
		w.keyValue("Scanned at", scan.ScannedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	if scan.ResponseTimeMs > 0 {
		w.keyValue("Response time", fmt.Sprintf("%d ms", scan.ResponseTimeMs))
	}
	w.keyValue("Findings", fmt.Sprintf("%d", len(scan.Findings)))
	if analysis != nil {
		w.keyValue("AI grade", fmt.Sprintf("%s (%d/100)", analysis.GlobalScore.Letter, analysis.GlobalScore.Numeric))
		w.keyValue("Overall risk", analysis.OverallRiskLevel)
		if analysis.Provider != "" {
			w.keyValue("Analysis by", strings.TrimSpace(analysis.Provider+" "+analysis.Model))
		}
	}

	if scan.ScanStatus == model.ScanBlocked {
		w.section("Scan blocked")
		w.text(10, "A protection layer filtered the scanner's requests, so the target could not be measured. "+
			"No findings are reported because any signal gathered behind the filter would be unreliable.")
	}
}

func (w *writer) analysis(a *model.AnalysisResult) {
	w.section("Executive summary")
	w.text(10, a.ExecutiveSummary)

	if len(a.Top3Vulnerabilities) > 0 {
		w.section("Key vulnerabilities")
		for i, v := range a.Top3Vulnerabilities {
			w.severityBadge(v.Severity)
			w.pdf.SetFont("Helvetica", "B", 11)
			w.pdf.SetTextColor(30, 41, 59)
			w.pdf.MultiCell(0, 7, w.tr(fmt.Sprintf("%d. %s", i+1, v.Title)), "", "L", false)
			if v.Area != "" {
				w.text(9, "Area: "+v.Area)
			}
			w.text(10, v.ExplanationSimple)
			w.pdf.SetFont("Helvetica", "I", 10)
			w.pdf.SetTextColor(22, 101, 52)
			w.pdf.MultiCell(0, 5, w.tr("Fix: "+v.FixRecommendation), "", "L", false)
			w.pdf.Ln(3)
		}
	}
}

func (w *writer) severityBadge(s model.Severity) {
	c, ok := severityColors[s]
	if !ok {
		c = []int{128, 128, 128}
	}
	w.pdf.SetFillColor(c[0], c[1], c[2])
	w.pdf.SetTextColor(255, 255, 255)
	w.pdf.SetFont("Helvetica", "B", 8)
	w.pdf.CellFormat(22, 5, strings.ToUpper(string(s)), "", 1, "C", true, 0, "")
}

func (w *writer) findings(scan *model.ScanResult) {
	w.section("Findings")
	if len(scan.Findings) == 0 {
		w.text(10, "No issues were found by the passive checks.")
		return
	}

	counts := scan.CountBySeverity()
	var summary []string
	for _, s := range []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow, model.SeverityInfo} {
		if counts[s] > 0 {
			summary = append(summary, fmt.Sprintf("%s: %d", s, counts[s]))
		}
	}
	w.text(10, strings.Join(summary, "   "))
	w.pdf.Ln(2)

	findings := append([]model.Finding(nil), scan.Findings...)
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Rank() > findings[j].Severity.Rank()
	})

	pdf := w.pdf
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(30, 41, 59)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(22, 7, "Severity", "1", 0, "C", true, 0, "")
	pdf.CellFormat(25, 7, "Category", "1", 0, "C", true, 0, "")
	pdf.CellFormat(0, 7, "Title", "1", 1, "L", true, 0, "")

	for _, f := range findings {
		c, ok := severityColors[f.Severity]
		if !ok {
			c = []int{128, 128, 128}
		}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetTextColor(c[0], c[1], c[2])
		pdf.CellFormat(22, 7, string(f.Severity), "1", 0, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(25, 7, w.tr(f.Category), "1", 0, "C", false, 0, "")
		pdf.CellFormat(0, 7, w.tr(truncate(f.Title, 90)), "1", 1, "L", false, 0, "")
	}

	w.section("Recommendations")
	for _, f := range findings {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(30, 41, 59)
		pdf.MultiCell(0, 6, w.tr(f.Title), "", "L", false)
		if f.Impact != "" {
			w.text(9, f.Impact)
		}
		if f.Recommendation != "" {
			w.text(9, "Recommendation: "+f.Recommendation)
		}
		if f.Evidence != "" {
			pdf.SetFont("Courier", "", 8)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, 4, w.tr(truncate(f.Evidence, 400)), "", "L", false)
		}
		pdf.Ln(2)
	}
}

func (w *writer) siteMap(scan *model.ScanResult, analysis *model.AnalysisResult) {
	var pages []string
	if analysis != nil && len(analysis.SiteMap.Pages) > 0 {
		pages = analysis.SiteMap.Pages
	} else {
		pages = scan.Pages
	}
	if len(pages) == 0 {
		return
	}
	w.section("Site map")
	w.pdf.SetFont("Courier", "", 9)
	w.pdf.SetTextColor(60, 60, 60)
	for _, p := range pages {
		w.pdf.CellFormat(0, 5, w.tr(p), "", 1, "L", false, 0, "")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
