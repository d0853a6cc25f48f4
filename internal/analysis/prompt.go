package analysis

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/provider"
)

//go:embed prompt.tmpl
var promptTemplate string

var promptTmpl = template.Must(template.New("prompt").Funcs(sprig.TxtFuncMap()).Parse(promptTemplate))

// BuildPrompt renders the fixed analysis prompt for a scan result. The same
// result always yields the same prompt.
func BuildPrompt(scan *model.ScanResult) (provider.Prompt, error) {
	if scan == nil {
		return provider.Prompt{}, fmt.Errorf("build prompt: nil scan result")
	}
	var system, user strings.Builder
	if err := promptTmpl.ExecuteTemplate(&system, "system", scan); err != nil {
		return provider.Prompt{}, fmt.Errorf("render system prompt: %w", err)
	}
	if err := promptTmpl.ExecuteTemplate(&user, "user", scan); err != nil {
		return provider.Prompt{}, fmt.Errorf("render user prompt: %w", err)
	}
	return provider.Prompt{System: system.String(), User: user.String()}, nil
}
