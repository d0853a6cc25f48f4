// Package provider streams completions from the AI providers auditai can use
// for analysis: a local Ollama server and the Groq cloud API.
package provider

import (
	"context"
	"errors"
)

// Kind tells local providers from cloud ones.
type Kind string

const (
	KindLocal Kind = "local"
	KindCloud Kind = "cloud"
)

var (
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrUnreachable         = errors.New("provider unreachable")
	ErrAuth                = errors.New("provider rejected credentials")
	ErrNotConfigured       = errors.New("provider credentials not configured")
)

// Prompt is the input of one completion.
type Prompt struct {
	System string
	User   string
}

// Status describes whether a provider can currently serve requests.
// Configured is only set for providers that need credentials.
type Status struct {
	Name       string `json:"name"`
	Kind       Kind   `json:"kind"`
	Available  bool   `json:"available"`
	Model      string `json:"model"`
	Configured *bool  `json:"configured,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Stream yields completion text in arrival order.
type Stream interface {
	// Recv returns the next chunk, io.EOF once the provider signalled the end
	// of the completion, or an error wrapping ErrUnreachable.
	Recv() (string, error)
	Close() error
}

type Provider interface {
	Name() string
	Kind() Kind
	Model() string
	// Status never fails; problems are reported in the returned Status.
	Status(ctx context.Context) Status
	Stream(ctx context.Context, prompt Prompt) (Stream, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p Prompt) messages() []chatMessage {
	var out []chatMessage
	if p.System != "" {
		out = append(out, chatMessage{Role: "system", Content: p.System})
	}
	return append(out, chatMessage{Role: "user", Content: p.User})
}
