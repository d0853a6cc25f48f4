package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/auditai/internal/app"
	"github.com/raysh454/auditai/internal/cli"
	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/provider"
	"github.com/raysh454/auditai/internal/scan"
	"github.com/raysh454/auditai/internal/testutil"
)

// writeConfig points the archive into a temp dir so runs leave nothing
// behind.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "auditai.yaml")
	body := fmt.Sprintf("archive:\n  path: %s\n", filepath.Join(dir, "auditai.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args []string, opts ...app.Option) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd(opts...)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--config", writeConfig(t)))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func analysisProvider() *testutil.FakeProvider {
	return &testutil.FakeProvider{
		ProviderName: "fake",
		Available:    true,
		Chunks:       []string{testutil.AnalysisJSON[:40], testutil.AnalysisJSON[40:]},
	}
}

func TestScan_RequiresAuthorization(t *testing.T) {
	t.Parallel()
	_, err := execute(t, []string{"scan", "example.com"},
		app.WithProber(&testutil.StaticProber{}), app.WithProviders())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--authorized")
}

func TestScan_StreamsAndWritesReports(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out.json")
	pdfPath := filepath.Join(dir, "out.pdf")

	out, err := execute(t, []string{
		"scan", "example.com", "--authorized",
		"--analyze", "auto", "--json", jsonPath, "--pdf", pdfPath,
	}, app.WithProber(&testutil.StaticProber{}), app.WithProviders(analysisProvider()))
	require.NoError(t, err, out)

	assert.Contains(t, out, "fetching https://example.com")
	assert.Contains(t, out, "checking security headers")
	assert.Contains(t, out, "Missing Content-Security-Policy")
	assert.Contains(t, out, "done")
	// Raw model output is echoed as it streams.
	assert.Contains(t, out, testutil.AnalysisJSON)

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var got struct {
		Scan     model.ScanResult     `json:"scan"`
		Analysis model.AnalysisResult `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "https://example.com", got.Scan.Target)
	assert.Len(t, got.Scan.Findings, 2)
	assert.Equal(t, "Medium", got.Analysis.OverallRiskLevel)
	assert.Equal(t, "fake", got.Analysis.Provider)

	pdf, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestScan_BlockedTarget(t *testing.T) {
	t.Parallel()
	prober := &testutil.StaticProber{Err: &scan.BlockedError{Mechanism: "waf_challenge"}}
	out, err := execute(t, []string{"scan", "example.com", "--authorized"},
		app.WithProber(prober), app.WithProviders())
	require.NoError(t, err, out)
	assert.Contains(t, out, "blocked")
	assert.Contains(t, out, "scan blocked by waf_challenge")
}

func TestScan_Failures(t *testing.T) {
	t.Parallel()

	_, err := execute(t, []string{"scan", "ftp://example.com", "--authorized"},
		app.WithProber(&testutil.StaticProber{}), app.WithProviders())
	assert.ErrorIs(t, err, scan.ErrInvalidTarget)

	out, err := execute(t, []string{"scan", "example.com", "--authorized"},
		app.WithProber(&testutil.StaticProber{Err: errors.New("connection refused")}), app.WithProviders())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, out, "error")

	_, err = execute(t, []string{"scan", "example.com", "--authorized", "--analyze", "nope"},
		app.WithProber(&testutil.StaticProber{}), app.WithProviders(analysisProvider()))
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestProviders_ListsStatuses(t *testing.T) {
	t.Parallel()
	offline := &testutil.FakeProvider{ProviderName: "groq", ProviderKind: provider.KindCloud}

	out, err := execute(t, []string{"providers"}, app.WithProviders(analysisProvider(), offline))
	require.NoError(t, err)
	assert.Contains(t, out, "fake")
	assert.Contains(t, out, "unavailable")
	assert.Contains(t, out, "fake provider offline")

	out, err = execute(t, []string{"providers", "--json"}, app.WithProviders(analysisProvider(), offline))
	require.NoError(t, err)
	var statuses map[string]provider.Status
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	assert.True(t, statuses["fake"].Available)
	assert.False(t, statuses["groq"].Available)
	assert.Equal(t, provider.KindCloud, statuses["groq"].Kind)
}

func TestVersion(t *testing.T) {
	t.Parallel()
	out, err := execute(t, []string{"version"})
	require.NoError(t, err)
	assert.Contains(t, out, "auditai dev")
}

func TestDemoServer_RejectsBadFlags(t *testing.T) {
	t.Parallel()
	for _, args := range [][]string{
		{"--port", "0"},
		{"--level", "7"},
	} {
		cmd := cli.NewDemoServerCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		assert.Error(t, cmd.ExecuteContext(context.Background()), args)
	}
}
