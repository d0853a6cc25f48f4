package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "gpt-oss:20b"
)

type OllamaConfig struct {
	BaseURL        string
	Model          string
	ConnectTimeout time.Duration
	StatusTimeout  time.Duration
}

// Ollama talks to a local Ollama server.
type Ollama struct {
	baseURL       string
	model         string
	statusTimeout time.Duration
	http          *http.Client
}

func NewOllama(cfg OllamaConfig) *Ollama {
	o := &Ollama{
		baseURL:       normalizeBaseURL(cfg.BaseURL),
		model:         cfg.Model,
		statusTimeout: cfg.StatusTimeout,
		http:          newHTTPClient(cfg.ConnectTimeout),
	}
	if o.baseURL == "" {
		o.baseURL = DefaultOllamaBaseURL
	}
	if o.model == "" {
		o.model = DefaultOllamaModel
	}
	if o.statusTimeout <= 0 {
		o.statusTimeout = 5 * time.Second
	}
	return o
}

func (o *Ollama) Name() string  { return "ollama" }
func (o *Ollama) Kind() Kind    { return KindLocal }
func (o *Ollama) Model() string { return o.model }

func (o *Ollama) Status(ctx context.Context) Status {
	st := Status{Name: o.Name(), Kind: KindLocal, Model: o.model, BaseURL: o.baseURL}
	ctx, cancel := context.WithTimeout(ctx, o.statusTimeout)
	defer cancel()
	if err := get(ctx, o.http, o.baseURL+"/api/tags", ""); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Available = true
	return st
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (o *Ollama) Stream(ctx context.Context, prompt Prompt) (Stream, error) {
	resp, err := postStream(ctx, o.http, o.baseURL+"/api/chat", "", ollamaChatRequest{
		Model:    o.model,
		Messages: prompt.messages(),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	return &ollamaStream{body: resp.Body, lines: newLineScanner(resp.Body)}, nil
}

// ollamaStream reads newline-delimited JSON chunks.
type ollamaStream struct {
	body  io.ReadCloser
	lines *bufio.Scanner
	done  bool
}

func (s *ollamaStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if !s.lines.Scan() {
			if err := s.lines.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: reading stream: %v", ErrUnreachable, err)
			}
			return "", fmt.Errorf("%w: stream ended before completion", ErrUnreachable)
		}
		line := strings.TrimSpace(s.lines.Text())
		if line == "" {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return "", fmt.Errorf("%w: malformed stream line: %v", ErrUnreachable, err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrUnreachable, chunk.Error)
		}
		if chunk.Done {
			s.done = true
		}
		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}
}

func (s *ollamaStream) Close() error { return s.body.Close() }
