package webclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/auditai/internal/logging"
	"github.com/raysh454/auditai/internal/testutil"
	"github.com/raysh454/auditai/internal/webclient"
)

func TestNewWebClient_DefaultBackendIsNetHTTP(t *testing.T) {
	t.Parallel()
	wc, err := webclient.NewWebClient(webclient.Config{}, &testutil.DummyLogger{})
	require.NoError(t, err)
	defer wc.Close()
	assert.IsType(t, &webclient.NetHTTPClient{}, wc)
}

func TestNewWebClient_UnknownBackend(t *testing.T) {
	t.Parallel()
	wc, err := webclient.NewWebClient(webclient.Config{Client: "curl"}, &testutil.DummyLogger{})
	require.Error(t, err)
	assert.Nil(t, wc)
	assert.Contains(t, err.Error(), "unknown webclient backend")
}

func TestRegister_CustomBackend(t *testing.T) {
	t.Parallel()
	called := false
	webclient.Register("Scripted", func(cfg webclient.Config, _ logging.Logger) (webclient.WebClient, error) {
		called = true
		return nil, errors.New("scripted backend unavailable")
	})

	_, err := webclient.NewWebClient(webclient.Config{Client: "scripted"}, &testutil.DummyLogger{})
	require.Error(t, err)
	assert.True(t, called)
	assert.Contains(t, webclient.Backends(), webclient.Client("scripted"))
	assert.Contains(t, webclient.Backends(), webclient.ClientChromedp)
}

func TestChromedpClient_RejectsNonGET(t *testing.T) {
	t.Parallel()
	c, err := webclient.NewChromedpClient(webclient.Config{}, &testutil.DummyLogger{})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Do(context.Background(), &webclient.Request{Method: "POST", URL: "http://example.com"})
	assert.ErrorIs(t, err, webclient.ErrMethodNotSupported)
}

func TestRecording_CapturesSuccessAndFailure(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vercel-Mitigated", "challenge")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	inner, err := webclient.NewNetHTTPClient(webclient.Config{}, &testutil.DummyLogger{}, nil)
	require.NoError(t, err)
	defer inner.Close()

	var h webclient.History
	wc := webclient.Recording(inner, &h)

	_, err = webclient.Get(context.Background(), wc, ts.URL+"/a")
	require.NoError(t, err)
	_, err = webclient.Get(context.Background(), wc, "http://[::1")
	require.Error(t, err)

	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, http.StatusForbidden, entries[0].StatusCode)
	assert.Equal(t, "challenge", entries[0].Headers.Get("X-Vercel-Mitigated"))
	assert.Empty(t, entries[0].Err)
	assert.Zero(t, entries[1].StatusCode)
	assert.NotEmpty(t, entries[1].Err)
	assert.Equal(t, 2, h.Len())
}
