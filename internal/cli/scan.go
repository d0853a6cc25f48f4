package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raysh454/auditai/internal/app"
	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/jobs"
	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/report"
)

// autoProvider lets the gateway pick the first available provider.
const autoProvider = "auto"

var errNotAuthorized = errors.New(`refusing to scan: confirm you are authorized to test the target with --authorized`)

type scanOptions struct {
	authorized bool
	analyze    string
	pdfPath    string
	jsonPath   string
}

// scanReport is what --json writes.
type scanReport struct {
	Scan     *model.ScanResult     `json:"scan"`
	Analysis *model.AnalysisResult `json:"analysis,omitempty"`
}

func newScanCommand(o *rootOptions) *cobra.Command {
	var so scanOptions

	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Scan a target in-process and stream its progress",
		Example: `  auditai scan example.com --authorized
  auditai scan https://example.com --authorized --analyze auto --pdf report.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !so.authorized {
				return errNotAuthorized
			}
			cfg, err := o.consoleConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := o.newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("wiring application: %w", err)
			}
			defer a.Close(context.Background())

			return runScan(cmd.Context(), a, args[0], so, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.BoolVar(&so.authorized, "authorized", false, "confirm you are authorized to scan the target")
	f.StringVar(&so.analyze, "analyze", "", `analyze the result with this provider ("auto" picks one)`)
	f.StringVar(&so.pdfPath, "pdf", "", "write a PDF report to this file")
	f.StringVar(&so.jsonPath, "json", "", "write the results as JSON to this file")
	return cmd
}

func runScan(ctx context.Context, a *app.Application, target string, so scanOptions, out io.Writer) error {
	id, err := a.Scans.Start(ctx, target)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s %s\n", titleStyle.Render("scan"), target, labelStyle.Render(id))
	if err := follow(ctx, a, id, out); err != nil {
		return err
	}
	scanResult, err := a.Scans.GetResult(id)
	if err != nil {
		return fmt.Errorf("scan %s: %w", id, err)
	}
	printScan(out, scanResult)

	var analysisResult *model.AnalysisResult
	if so.analyze != "" && scanResult.ScanStatus == model.ScanBlocked {
		fmt.Fprintln(out, warnStyle.Render("analysis skipped: the scan saw no content"))
	} else if so.analyze != "" {
		name := so.analyze
		if name == autoProvider {
			name = ""
		}
		aid, err := a.Analyses.Start(ctx, id, name)
		if err != nil {
			return fmt.Errorf("starting analysis: %w", err)
		}
		fmt.Fprintf(out, "\n%s %s\n", titleStyle.Render("analysis"), labelStyle.Render(aid))
		if err := follow(ctx, a, aid, out); err != nil {
			return err
		}
		analysisResult, err = a.Analyses.GetResult(aid)
		if err != nil {
			return fmt.Errorf("analysis %s: %w", aid, err)
		}
		printAnalysis(out, analysisResult)
	}

	if so.jsonPath != "" {
		data, err := json.MarshalIndent(scanReport{Scan: scanResult, Analysis: analysisResult}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
		if err := os.WriteFile(so.jsonPath, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", so.jsonPath, err)
		}
		fmt.Fprintln(out, labelStyle.Render("wrote "+so.jsonPath))
	}
	if so.pdfPath != "" {
		pdf, err := report.Render(scanResult, analysisResult)
		if err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}
		if err := os.WriteFile(so.pdfPath, pdf, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", so.pdfPath, err)
		}
		fmt.Fprintln(out, labelStyle.Render("wrote "+so.pdfPath))
	}
	return nil
}

// follow prints the events of job id until its done event. Raw provider
// output is written as it arrives, without decoration.
func follow(ctx context.Context, a *app.Application, id string, out io.Writer) error {
	sub, err := a.Bus.Subscribe(id)
	if err != nil {
		return err
	}
	defer sub.Close()

	streaming := false
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if ev.Type == eventbus.TypeDone {
			if streaming {
				fmt.Fprintln(out)
			}
			printDone(out, ev.Done)
			continue
		}
		if ev.Log.Level == eventbus.LevelStream {
			streaming = true
			fmt.Fprint(out, ev.Log.Message)
			continue
		}
		if streaming {
			fmt.Fprintln(out)
			streaming = false
		}
		fmt.Fprintf(out, "%s %s %s\n",
			timeStyle.Render(ev.Timestamp.Format("15:04:05")),
			levelStyle(ev.Log.Level).Render(fmt.Sprintf("%-5s", ev.Log.Level)),
			ev.Log.Message)
	}
}

func printDone(out io.Writer, d *eventbus.DonePayload) {
	switch d.Status {
	case string(jobs.StatusDone):
		fmt.Fprintln(out, okStyle.Render(d.Status))
	case string(jobs.StatusBlocked):
		fmt.Fprintln(out, warnStyle.Render(d.Status))
	default:
		msg := d.Status
		if d.Error != "" {
			msg += ": " + d.Error
		}
		fmt.Fprintln(out, errStyle.Render(msg))
	}
}

func printScan(out io.Writer, r *model.ScanResult) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %s  %s %d/100  %s %s\n",
		labelStyle.Render("grade"), gradeStyle(r.Grade).Render(string(r.Grade)),
		labelStyle.Render("score"), r.Score,
		labelStyle.Render("visibility"), r.Visibility)
	if r.ScanStatus == model.ScanBlocked && r.BlockingMechanism != nil {
		fmt.Fprintln(out, warnStyle.Render("scan blocked by "+*r.BlockingMechanism))
		return
	}
	if len(r.Findings) == 0 {
		fmt.Fprintln(out, okStyle.Render("no findings"))
		return
	}
	for _, f := range r.Findings {
		fmt.Fprintf(out, "  %s %s\n", severityStyle(f.Severity).Render(string(f.Severity)), f.Title)
	}
}

func printAnalysis(out io.Writer, r *model.AnalysisResult) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %s  %s %s (%d/100)\n",
		labelStyle.Render("risk"), r.OverallRiskLevel,
		labelStyle.Render("grade"), r.GlobalScore.Letter, r.GlobalScore.Numeric)
	fmt.Fprintln(out, strings.TrimSpace(r.ExecutiveSummary))
	for i, v := range r.Top3Vulnerabilities {
		fmt.Fprintf(out, "  %d. %s %s\n", i+1, severityStyle(v.Severity).Render(string(v.Severity)), v.Title)
		if v.FixRecommendation != "" {
			fmt.Fprintf(out, "     %s %s\n", labelStyle.Render("fix:"), v.FixRecommendation)
		}
	}
}
