package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/raysh454/auditai/internal/model"
)

// MaxVulnerabilities is how many ranked vulnerabilities a result keeps.
const MaxVulnerabilities = 3

// ErrParse is matched by every ParseAnalysis failure.
var ErrParse = errors.New("analysis output could not be parsed")

// ParseError describes what was wrong with the provider output.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse analysis: " + e.Reason }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseAnalysis turns the complete text of a provider response into an
// AnalysisResult. A surrounding markdown fence or prose is ignored, but the
// text must hold exactly one JSON object that satisfies the schema and lists
// at least one vulnerability. Vulnerabilities are ordered by severity
// (stable) and truncated to MaxVulnerabilities.
func ParseAnalysis(raw string) (*model.AnalysisResult, error) {
	doc, err := extractObject(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(doc))
	var result model.AnalysisResult
	if err := dec.Decode(&result); err != nil {
		return nil, &ParseError{Reason: "malformed JSON: " + err.Error()}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Reason: "unexpected data after the JSON object"}
	}

	for i := range result.Top3Vulnerabilities {
		v := &result.Top3Vulnerabilities[i]
		sev, ok := model.ParseSeverity(string(v.Severity))
		if !ok || sev == model.SeverityInfo {
			return nil, &ParseError{Reason: fmt.Sprintf("vulnerability %d has unknown severity %q", i, v.Severity)}
		}
		v.Severity = sev
	}

	if err := validate.Struct(&result); err != nil {
		return nil, &ParseError{Reason: summarizeValidation(err)}
	}

	sort.SliceStable(result.Top3Vulnerabilities, func(i, k int) bool {
		return result.Top3Vulnerabilities[i].Severity.Rank() > result.Top3Vulnerabilities[k].Severity.Rank()
	})
	if len(result.Top3Vulnerabilities) > MaxVulnerabilities {
		result.Top3Vulnerabilities = result.Top3Vulnerabilities[:MaxVulnerabilities]
	}
	if result.SiteMap.Pages == nil {
		result.SiteMap.Pages = []string{}
	}
	return &result, nil
}

// extractObject strips a markdown fence and any prose around the outermost
// braces.
func extractObject(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", &ParseError{Reason: "no JSON object in output"}
	}
	return text[start : end+1], nil
}

func summarizeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, 3)
	for i, fe := range verrs {
		if i == 3 {
			parts = append(parts, fmt.Sprintf("(+%d more)", len(verrs)-3))
			break
		}
		parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
	}
	return "schema violation: " + strings.Join(parts, "; ")
}
