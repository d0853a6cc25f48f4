package analysis_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/auditai/internal/analysis"
	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/jobs"
	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/provider"
	"github.com/raysh454/auditai/internal/testutil"
)

// stubScans serves scan results by id.
type stubScans struct {
	mu      sync.Mutex
	results map[string]*model.ScanResult
	errs    map[string]error
}

func (s *stubScans) GetResult(id string) (*model.ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[id]; ok {
		return nil, err
	}
	if r, ok := s.results[id]; ok {
		return r, nil
	}
	return nil, jobs.ErrNotFound
}

type harness struct {
	agg   *analysis.Aggregator
	reg   *jobs.Registry
	scans *stubScans
}

func newHarness(t *testing.T, cfg analysis.Config, providers ...provider.Provider) *harness {
	t.Helper()
	bus := eventbus.New(eventbus.Options{BufferSize: 4096})
	reg := jobs.NewRegistry(bus, jobs.RegistryConfig{}, &testutil.DummyLogger{})
	gw := provider.NewGateway(provider.GatewayConfig{}, &testutil.DummyLogger{}, nil)
	for _, p := range providers {
		gw.Register(p)
	}
	scans := &stubScans{
		results: map[string]*model.ScanResult{"scan-1": sampleScan()},
		errs: map[string]error{
			"running": jobs.ErrNotReady,
			"failed":  &jobs.FailedError{Kind: jobs.ErrorProbeFailure, Detail: "refused"},
		},
	}
	scans.results["blocked"] = model.BlockedScanResult("https://waf.example", "waf_challenge", time.Now())

	agg := analysis.NewAggregator(reg, scans, gw, cfg, &testutil.DummyLogger{}, nil)
	t.Cleanup(agg.Close)
	return &harness{agg: agg, reg: reg, scans: scans}
}

func streamChunks(t *testing.T, evs []eventbus.Event) []string {
	t.Helper()
	var out []string
	for _, ev := range evs {
		if ev.Type == eventbus.TypeLog && ev.Log.Level == eventbus.LevelStream {
			out = append(out, ev.Log.Message)
		}
	}
	return out
}

func TestAggregator_StreamsChunksAndParsesResult(t *testing.T) {
	t.Parallel()
	chunks := []string{validReport[:40], validReport[40:200], validReport[200:]}
	fp := &testutil.FakeProvider{ProviderName: "ollama", ModelName: "llama3", Available: true, Chunks: chunks}
	h := newHarness(t, analysis.Config{}, fp)

	id, err := h.agg.Start(context.Background(), "scan-1", "ollama")
	require.NoError(t, err)

	evs := testutil.WaitForDone(t, h.reg.Bus(), id)
	assert.Equal(t, chunks, streamChunks(t, evs))
	assert.Equal(t, "done", evs[len(evs)-1].Done.Status)

	res, err := h.agg.GetResult(id)
	require.NoError(t, err)
	assert.Equal(t, "ollama", res.Provider)
	assert.Equal(t, "llama3", res.Model)
	require.Len(t, res.Top3Vulnerabilities, 3)
	assert.Equal(t, model.SeverityHigh, res.Top3Vulnerabilities[0].Severity)

	assert.Contains(t, fp.LastPrompt().User, "https://example.com")
}

func TestAggregator_ResultIndependentOfChunkBoundaries(t *testing.T) {
	t.Parallel()
	reference, err := analysis.ParseAnalysis(validReport)
	require.NoError(t, err)

	splits := [][]string{{validReport}}
	for i := 1; i < len(validReport); i += 37 {
		splits = append(splits, []string{validReport[:i], validReport[i:]})
	}
	for i := 1; i+5 < len(validReport); i += 101 {
		splits = append(splits, []string{validReport[:i], validReport[i : i+5], validReport[i+5:]})
	}
	var single []string
	for _, r := range validReport {
		single = append(single, string(r))
	}
	splits = append(splits, single)

	for n, chunks := range splits {
		fp := &testutil.FakeProvider{ProviderName: fmt.Sprintf("p%d", n), Available: true, Chunks: chunks}
		h := newHarness(t, analysis.Config{}, fp)
		id, err := h.agg.Start(context.Background(), "scan-1", fp.Name())
		require.NoError(t, err)
		testutil.WaitForDone(t, h.reg.Bus(), id)

		res, err := h.agg.GetResult(id)
		require.NoError(t, err, "split %d", n)
		res.Provider, res.Model = "", ""
		assert.Equal(t, reference, res, "split %d", n)
	}
}

func TestAggregator_TruncatedStreamIsParseFailureWithRawText(t *testing.T) {
	t.Parallel()
	truncated := validReport[:len(validReport)-30]
	fp := &testutil.FakeProvider{ProviderName: "ollama", Available: true, Chunks: []string{truncated}}
	h := newHarness(t, analysis.Config{}, fp)

	id, err := h.agg.Start(context.Background(), "scan-1", "ollama")
	require.NoError(t, err)
	testutil.WaitForDone(t, h.reg.Bus(), id)

	_, err = h.agg.GetResult(id)
	var failed *jobs.FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, jobs.ErrorAnalysisParseFailure, failed.Kind)

	job, err := h.reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, truncated, job.Info().RawOutput)
	assert.Nil(t, job.Result())
}

func TestAggregator_MidStreamDropIsProviderUnavailable(t *testing.T) {
	t.Parallel()
	fp := &testutil.FakeProvider{
		ProviderName: "groq",
		Available:    true,
		Chunks:       []string{`{"globalScore":`},
		StreamErr:    fmt.Errorf("%w: connection reset", provider.ErrUnreachable),
	}
	h := newHarness(t, analysis.Config{}, fp)

	id, err := h.agg.Start(context.Background(), "scan-1", "groq")
	require.NoError(t, err)
	evs := testutil.WaitForDone(t, h.reg.Bus(), id)
	assert.Equal(t, "error", evs[len(evs)-1].Done.Status)

	_, err = h.agg.GetResult(id)
	var failed *jobs.FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, jobs.ErrorProviderUnavailable, failed.Kind)
	assert.Equal(t, 1, fp.Opens(), "no silent retry")
}

func TestAggregator_OpenFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want jobs.ErrorKind
	}{
		{"unreachable", fmt.Errorf("%w: dial tcp: refused", provider.ErrUnreachable), jobs.ErrorProviderUnavailable},
		{"auth", fmt.Errorf("%w: status 401", provider.ErrAuth), jobs.ErrorProviderAuth},
		{"not configured", provider.ErrNotConfigured, jobs.ErrorProviderAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &testutil.FakeProvider{ProviderName: "groq", Available: true, OpenErr: tt.err}
			h := newHarness(t, analysis.Config{}, fp)
			id, err := h.agg.Start(context.Background(), "scan-1", "groq")
			require.NoError(t, err)
			testutil.WaitForDone(t, h.reg.Bus(), id)

			_, err = h.agg.GetResult(id)
			var failed *jobs.FailedError
			require.True(t, errors.As(err, &failed))
			assert.Equal(t, tt.want, failed.Kind)
		})
	}
}

func TestAggregator_IdleTimeout(t *testing.T) {
	t.Parallel()
	fp := &testutil.FakeProvider{ProviderName: "ollama", Available: true, Chunks: []string{"{"}, Stall: true}
	h := newHarness(t, analysis.Config{IdleTimeout: 30 * time.Millisecond}, fp)

	id, err := h.agg.Start(context.Background(), "scan-1", "ollama")
	require.NoError(t, err)
	testutil.WaitForDone(t, h.reg.Bus(), id)

	job, err := h.reg.Get(id)
	require.NoError(t, err)
	info := job.Info()
	assert.Equal(t, jobs.StatusError, info.Status)
	assert.Equal(t, jobs.ErrorProviderUnavailable, info.ErrorKind)
	assert.Equal(t, "{", info.RawOutput)
}

func TestAggregator_IdleTimeoutBeforeFirstByte(t *testing.T) {
	t.Parallel()
	fp := &testutil.FakeProvider{ProviderName: "ollama", Available: true, BlockOpen: true}
	h := newHarness(t, analysis.Config{IdleTimeout: 50 * time.Millisecond}, fp)

	id, err := h.agg.Start(context.Background(), "scan-1", "ollama")
	require.NoError(t, err)
	evs := testutil.WaitForDone(t, h.reg.Bus(), id)
	assert.Equal(t, "error", evs[len(evs)-1].Done.Status)
	assert.Empty(t, streamChunks(t, evs))

	_, err = h.agg.GetResult(id)
	var failed *jobs.FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, jobs.ErrorProviderUnavailable, failed.Kind)
	assert.Contains(t, failed.Detail, "sent nothing")
}

func TestAggregator_IdleTimeoutBeforeResponseHeaders(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ollama := provider.NewOllama(provider.OllamaConfig{BaseURL: srv.URL, Model: "llama3"})
	h := newHarness(t, analysis.Config{IdleTimeout: 100 * time.Millisecond}, ollama)

	id, err := h.agg.Start(context.Background(), "scan-1", "ollama")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		job, err := h.reg.Get(id)
		return err == nil && job.Status() == jobs.StatusError
	}, 3*time.Second, 10*time.Millisecond)

	_, err = h.agg.GetResult(id)
	var failed *jobs.FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, jobs.ErrorProviderUnavailable, failed.Kind)
}

func TestAggregator_StartErrors(t *testing.T) {
	t.Parallel()
	fp := &testutil.FakeProvider{ProviderName: "ollama", Available: true, Chunks: []string{validReport}}
	h := newHarness(t, analysis.Config{}, fp)
	ctx := context.Background()

	_, err := h.agg.Start(ctx, "scan-1", "openai")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)

	_, err = h.agg.Start(ctx, "missing", "ollama")
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	for _, id := range []string{"running", "failed", "blocked"} {
		_, err = h.agg.Start(ctx, id, "ollama")
		assert.ErrorIs(t, err, analysis.ErrScanNotReady, id)
	}

	assert.Equal(t, 0, fp.Opens())
	assert.Empty(t, h.reg.List(jobs.KindAnalysis))
}

func TestAggregator_AlreadyRunningPerScanAndProvider(t *testing.T) {
	t.Parallel()
	hold := make(chan struct{})
	ollama := &testutil.FakeProvider{ProviderName: "ollama", Available: true, Chunks: []string{validReport}, Hold: hold}
	groq := &testutil.FakeProvider{ProviderName: "groq", Available: true, Chunks: []string{validReport}}
	h := newHarness(t, analysis.Config{}, ollama, groq)
	ctx := context.Background()

	first, err := h.agg.Start(ctx, "scan-1", "ollama")
	require.NoError(t, err)

	_, err = h.agg.Start(ctx, "scan-1", "ollama")
	assert.ErrorIs(t, err, analysis.ErrAlreadyRunning)

	other, err := h.agg.Start(ctx, "scan-1", "groq")
	require.NoError(t, err, "a different provider may run concurrently")
	testutil.WaitForDone(t, h.reg.Bus(), other)

	close(hold)
	testutil.WaitForDone(t, h.reg.Bus(), first)

	again, err := h.agg.Start(ctx, "scan-1", "ollama")
	require.NoError(t, err, "a finished analysis can be re-run")
	testutil.WaitForDone(t, h.reg.Bus(), again)
}

func TestAggregator_ConcurrentStartsAdmitOne(t *testing.T) {
	t.Parallel()
	hold := make(chan struct{})
	fp := &testutil.FakeProvider{ProviderName: "ollama", Available: true, Chunks: []string{validReport}, Hold: hold}
	h := newHarness(t, analysis.Config{}, fp)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []string
		rejected int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := h.agg.Start(context.Background(), "scan-1", "ollama")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted = append(accepted, id)
			} else if errors.Is(err, analysis.ErrAlreadyRunning) {
				rejected++
			}
		}()
	}
	wg.Wait()
	close(hold)

	require.Len(t, accepted, 1)
	assert.Equal(t, 15, rejected)
	testutil.WaitForDone(t, h.reg.Bus(), accepted[0])
}

func TestAggregator_AutoSelectsAvailableProvider(t *testing.T) {
	t.Parallel()
	down := &testutil.FakeProvider{ProviderName: "ollama", Available: false}
	up := &testutil.FakeProvider{ProviderName: "groq", Available: true, Chunks: []string{validReport}}
	h := newHarness(t, analysis.Config{}, down, up)

	id, err := h.agg.Start(context.Background(), "scan-1", "")
	require.NoError(t, err)
	testutil.WaitForDone(t, h.reg.Bus(), id)

	res, err := h.agg.GetResult(id)
	require.NoError(t, err)
	assert.Equal(t, "groq", res.Provider)
	assert.Equal(t, 0, down.Opens())
}

func TestAggregator_GetResultStates(t *testing.T) {
	t.Parallel()
	hold := make(chan struct{})
	fp := &testutil.FakeProvider{ProviderName: "ollama", Available: true, Chunks: []string{validReport}, Hold: hold}
	h := newHarness(t, analysis.Config{}, fp)

	_, err := h.agg.GetResult("nope")
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	id, err := h.agg.Start(context.Background(), "scan-1", "ollama")
	require.NoError(t, err)
	_, err = h.agg.GetResult(id)
	assert.ErrorIs(t, err, jobs.ErrNotReady)

	close(hold)
	testutil.WaitForDone(t, h.reg.Bus(), id)
	_, err = h.agg.GetResult(id)
	assert.NoError(t, err)
}

func TestAggregator_CloseCancelsRunningAnalysis(t *testing.T) {
	t.Parallel()
	fp := &testutil.FakeProvider{ProviderName: "ollama", Available: true, Stall: true}
	h := newHarness(t, analysis.Config{}, fp)

	id, err := h.agg.Start(context.Background(), "scan-1", "ollama")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fp.Opens() == 1 }, time.Second, time.Millisecond)
	h.agg.Close()

	job, err := h.reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.ErrorCanceled, job.Info().ErrorKind)

	_, err = h.agg.Start(context.Background(), "scan-1", "ollama")
	assert.ErrorIs(t, err, analysis.ErrClosed)
}

func TestAggregator_UnrecordableEventsAreLogged(t *testing.T) {
	t.Parallel()
	logger := &testutil.DummyLogger{}
	bus := eventbus.New(eventbus.Options{})
	reg := jobs.NewRegistry(bus, jobs.RegistryConfig{}, logger)
	gw := provider.NewGateway(provider.GatewayConfig{}, logger, nil)
	hold := make(chan struct{})
	gw.Register(&testutil.FakeProvider{ProviderName: "ollama", Available: true, Chunks: []string{validReport}, Hold: hold})
	scans := &stubScans{results: map[string]*model.ScanResult{"scan-1": sampleScan()}}
	agg := analysis.NewAggregator(reg, scans, gw, analysis.Config{}, logger, nil)
	t.Cleanup(agg.Close)

	id, err := agg.Start(context.Background(), "scan-1", "ollama")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		evs, _ := bus.Events(id)
		return len(evs) >= 2
	}, time.Second, time.Millisecond)

	require.NoError(t, bus.Close(id))
	close(hold)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{
			"recording stream chunk",
			"recording analysis progress",
			"finishing analysis job",
		}, logger.Messages("error"))
	}, time.Second, time.Millisecond)

	job, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, job.Status())
}
