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
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
)

type GroqConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	ConnectTimeout time.Duration
	StatusTimeout  time.Duration
}

// Groq talks to an OpenAI-compatible chat completions API.
type Groq struct {
	apiKey        string
	baseURL       string
	model         string
	statusTimeout time.Duration
	http          *http.Client
}

func NewGroq(cfg GroqConfig) *Groq {
	g := &Groq{
		apiKey:        strings.TrimSpace(cfg.APIKey),
		baseURL:       normalizeBaseURL(cfg.BaseURL),
		model:         cfg.Model,
		statusTimeout: cfg.StatusTimeout,
		http:          newHTTPClient(cfg.ConnectTimeout),
	}
	if g.baseURL == "" {
		g.baseURL = DefaultGroqBaseURL
	}
	if g.model == "" {
		g.model = DefaultGroqModel
	}
	if g.statusTimeout <= 0 {
		g.statusTimeout = 5 * time.Second
	}
	return g
}

func (g *Groq) Name() string  { return "groq" }
func (g *Groq) Kind() Kind    { return KindCloud }
func (g *Groq) Model() string { return g.model }

func (g *Groq) Status(ctx context.Context) Status {
	configured := g.apiKey != ""
	st := Status{Name: g.Name(), Kind: KindCloud, Model: g.model, Configured: &configured}
	if !configured {
		st.Error = ErrNotConfigured.Error()
		return st
	}
	ctx, cancel := context.WithTimeout(ctx, g.statusTimeout)
	defer cancel()
	if err := get(ctx, g.http, g.baseURL+"/models", g.apiKey); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Available = true
	return st
}

type openAIChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float32       `json:"temperature"`
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Groq) Stream(ctx context.Context, prompt Prompt) (Stream, error) {
	if g.apiKey == "" {
		return nil, ErrNotConfigured
	}
	resp, err := postStream(ctx, g.http, g.baseURL+"/chat/completions", g.apiKey, openAIChatRequest{
		Model:       g.model,
		Messages:    prompt.messages(),
		Stream:      true,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}
	return &sseStream{body: resp.Body, lines: newLineScanner(resp.Body)}, nil
}

// sseStream reads server-sent "data:" lines until "[DONE]".
type sseStream struct {
	body     io.ReadCloser
	lines    *bufio.Scanner
	finished bool
	done     bool
}

func (s *sseStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if !s.lines.Scan() {
			if err := s.lines.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: reading stream: %v", ErrUnreachable, err)
			}
			if s.finished {
				s.done = true
				return "", io.EOF
			}
			return "", fmt.Errorf("%w: stream ended before completion", ErrUnreachable)
		}

		line := strings.TrimSpace(s.lines.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk openAIChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("%w: malformed stream event: %v", ErrUnreachable, err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("%w: %s", ErrUnreachable, chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.finished = true
		}
		if choice.Delta.Content != "" {
			return choice.Delta.Content, nil
		}
	}
}

func (s *sseStream) Close() error { return s.body.Close() }
