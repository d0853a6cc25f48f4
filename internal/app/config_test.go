package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/auditai/internal/app"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := app.LoadConfig("")
	require.NoError(t, err)

	def := app.DefaultConfig()
	assert.Equal(t, def.Server.Addr, cfg.Server.Addr)
	assert.Equal(t, time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, "nethttp", cfg.Probe.Client)
	assert.Equal(t, def.Providers.Ollama.BaseURL, cfg.Providers.Ollama.BaseURL)
	assert.Equal(t, def.Archive.Path, cfg.Archive.Path)
	assert.Empty(t, cfg.Tracing.Endpoint)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auditai.yaml")
	yaml := `
server:
  addr: ":9090"
jobs:
  retention: 10m
  idle_timeout: 5s
probe:
  client: chromedp
  max_crawl_urls: 5
archive:
  path: ""
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := app.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.Retention)
	assert.Equal(t, 5*time.Second, cfg.Jobs.IdleTimeout)
	assert.Equal(t, "chromedp", cfg.Probe.Client)
	assert.Equal(t, 5, cfg.Probe.MaxCrawlURLs)
	assert.Empty(t, cfg.Archive.Path)
	// untouched keys keep their defaults
	assert.Equal(t, app.DefaultConfig().Jobs.BufferSize, cfg.Jobs.BufferSize)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AUDITAI_SERVER_ADDR", ":7000")
	t.Setenv("AUDITAI_JOBS_SCAN_TIMEOUT", "90s")
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("OLLAMA_MODEL", "qwen2.5:7b")

	cfg, err := app.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, 90*time.Second, cfg.Jobs.ScanTimeout)
	assert.Equal(t, "gsk_test", cfg.Providers.Groq.APIKey)
	assert.Equal(t, "qwen2.5:7b", cfg.Providers.Ollama.Model)
}

func TestLoadConfig_PrefixedNameWinsOverPlainName(t *testing.T) {
	t.Setenv("AUDITAI_PROVIDERS_GROQ_API_KEY", "prefixed")
	t.Setenv("GROQ_API_KEY", "plain")

	cfg, err := app.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Providers.Groq.APIKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := app.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	cfg := app.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Probe.Client = "curl"
	cfg.Server.Addr = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Probe.Client")
	assert.Contains(t, err.Error(), "Config.Server.Addr")
}

func TestConfig_WebClientCarriesProbeSettings(t *testing.T) {
	t.Parallel()
	cfg := app.DefaultConfig()
	cfg.Probe.RateLimit = 0
	cfg.Probe.InsecureSkipVerify = true

	wc := cfg.WebClient()
	assert.Equal(t, float64(0), wc.RateLimit)
	assert.True(t, wc.InsecureSkipVerify)
	assert.Equal(t, cfg.Probe.UserAgent, wc.UserAgent)
}
