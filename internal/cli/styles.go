package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/model"
)

var (
	primary = lipgloss.Color("#7D56F4")
	muted   = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#00D26A")
	warning = lipgloss.Color("#FFB800")
	failure = lipgloss.Color("#FF3838")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(primary).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(muted)

	timeStyle = lipgloss.NewStyle().Foreground(muted)

	okStyle   = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(warning)
	errStyle  = lipgloss.NewStyle().Foreground(failure).Bold(true)
)

// severityColors follow the usual scanner palette.
var severityColors = map[model.Severity]lipgloss.Color{
	model.SeverityCritical: lipgloss.Color("#FF0000"),
	model.SeverityHigh:     lipgloss.Color("#FF6B6B"),
	model.SeverityMedium:   lipgloss.Color("#FFD93D"),
	model.SeverityLow:      lipgloss.Color("#6BCB77"),
	model.SeverityInfo:     lipgloss.Color("#4D96FF"),
}

func severityStyle(s model.Severity) lipgloss.Style {
	c, ok := severityColors[s]
	if !ok {
		c = muted
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Width(9)
}

func levelStyle(l eventbus.Level) lipgloss.Style {
	switch l {
	case eventbus.LevelWarn:
		return warnStyle
	case eventbus.LevelError:
		return errStyle
	case eventbus.LevelDebug:
		return labelStyle
	}
	return lipgloss.NewStyle()
}

func gradeStyle(g model.Grade) lipgloss.Style {
	switch g {
	case model.GradeA, model.GradeB:
		return okStyle
	case model.GradeC, model.GradeD:
		return warnStyle
	case model.GradeNA:
		return labelStyle
	}
	return errStyle
}
