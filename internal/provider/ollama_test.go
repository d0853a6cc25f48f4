package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/auditai/internal/provider"
)

// collect reads a stream to its end.
func collect(t *testing.T, s provider.Stream) (string, error) {
	t.Helper()
	defer s.Close()
	var sb strings.Builder
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
}

func ndjson(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, l := range lines {
			fmt.Fprintln(w, l)
			w.(http.Flusher).Flush()
		}
	}
}

func TestOllama_StreamConcatenatesChunks(t *testing.T) {
	t.Parallel()
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		ndjson(
			`{"message":{"role":"assistant","content":"{\"a\":"},"done":false}`,
			``,
			`{"message":{"role":"assistant","content":"1}"},"done":false}`,
			`{"message":{"role":"assistant","content":""},"done":true}`,
		)(w, r)
	}))
	defer ts.Close()

	o := provider.NewOllama(provider.OllamaConfig{BaseURL: ts.URL + "/", Model: "llama3"})
	s, err := o.Stream(context.Background(), provider.Prompt{System: "sys", User: "hello"})
	require.NoError(t, err)

	text, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)
	assert.Equal(t, "llama3", gotBody["model"])
	assert.Equal(t, true, gotBody["stream"])
	assert.Len(t, gotBody["messages"], 2)
}

func TestOllama_StreamCutBeforeDoneIsUnreachable(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(ndjson(`{"message":{"content":"partial"},"done":false}`))
	defer ts.Close()

	o := provider.NewOllama(provider.OllamaConfig{BaseURL: ts.URL})
	s, err := o.Stream(context.Background(), provider.Prompt{User: "x"})
	require.NoError(t, err)

	text, err := collect(t, s)
	assert.ErrorIs(t, err, provider.ErrUnreachable)
	assert.Equal(t, "partial", text)
}

func TestOllama_StreamErrorLine(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(ndjson(`{"error":"model not found"}`))
	defer ts.Close()

	o := provider.NewOllama(provider.OllamaConfig{BaseURL: ts.URL})
	s, err := o.Stream(context.Background(), provider.Prompt{User: "x"})
	require.NoError(t, err)
	_, err = collect(t, s)
	assert.ErrorIs(t, err, provider.ErrUnreachable)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllama_StreamHTTPErrorStatus(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	o := provider.NewOllama(provider.OllamaConfig{BaseURL: ts.URL})
	_, err := o.Stream(context.Background(), provider.Prompt{User: "x"})
	assert.ErrorIs(t, err, provider.ErrUnreachable)
}

func TestOllama_Status(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = io.WriteString(w, `{"models":[]}`)
	}))
	defer ts.Close()

	st := provider.NewOllama(provider.OllamaConfig{BaseURL: ts.URL, Model: "m"}).Status(context.Background())
	assert.True(t, st.Available)
	assert.Equal(t, "m", st.Model)
	assert.Equal(t, provider.KindLocal, st.Kind)
	assert.Nil(t, st.Configured)
}

func TestOllama_StatusDown(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	st := provider.NewOllama(provider.OllamaConfig{BaseURL: url}).Status(context.Background())
	assert.False(t, st.Available)
	assert.NotEmpty(t, st.Error)
	assert.Equal(t, provider.DefaultOllamaModel, st.Model)
}
