package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/raysh454/auditai/internal/provider"
)

// ─── Provider ──────────────────────────────────────────────────────────

// FakeProvider implements provider.Provider with a scripted stream.
//
// The stream yields Chunks in order, then StreamErr if set, otherwise io.EOF.
// If Hold is non-nil the first Recv waits for it to be closed. If Stall is
// true the stream never ends after the chunks (until its context is done).
// If BlockOpen is true Stream itself does not return before its context is
// done, like a server that accepts the request and never answers.
type FakeProvider struct {
	ProviderName string
	ProviderKind provider.Kind
	ModelName    string
	Available    bool

	Chunks     []string
	ChunkDelay time.Duration
	OpenErr    error
	StreamErr  error
	Stall      bool
	BlockOpen  bool
	Hold       chan struct{}

	mu         sync.Mutex
	opens      int
	lastPrompt provider.Prompt
}

func (f *FakeProvider) Name() string {
	if f.ProviderName == "" {
		return "fake"
	}
	return f.ProviderName
}

func (f *FakeProvider) Kind() provider.Kind {
	if f.ProviderKind == "" {
		return provider.KindLocal
	}
	return f.ProviderKind
}

func (f *FakeProvider) Model() string {
	if f.ModelName == "" {
		return "fake-model"
	}
	return f.ModelName
}

func (f *FakeProvider) Status(context.Context) provider.Status {
	st := provider.Status{Name: f.Name(), Kind: f.Kind(), Model: f.Model(), Available: f.Available}
	if !f.Available {
		st.Error = "fake provider offline"
	}
	return st
}

func (f *FakeProvider) Stream(ctx context.Context, prompt provider.Prompt) (provider.Stream, error) {
	f.mu.Lock()
	f.opens++
	f.lastPrompt = prompt
	f.mu.Unlock()
	if f.BlockOpen {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", provider.ErrUnreachable, ctx.Err())
	}
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	chunks := make([]string, len(f.Chunks))
	copy(chunks, f.Chunks)
	return &fakeStream{ctx: ctx, p: f, chunks: chunks, hold: f.Hold}, nil
}

// Opens reports how many streams were requested.
func (f *FakeProvider) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// LastPrompt returns the prompt of the most recent stream.
func (f *FakeProvider) LastPrompt() provider.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

type fakeStream struct {
	ctx    context.Context
	p      *FakeProvider
	chunks []string
	hold   chan struct{}
	next   int
}

func (s *fakeStream) Recv() (string, error) {
	if s.hold != nil {
		select {
		case <-s.hold:
			s.hold = nil
		case <-s.ctx.Done():
			return "", fmt.Errorf("%w: %v", provider.ErrUnreachable, s.ctx.Err())
		}
	}
	if s.next < len(s.chunks) {
		if s.p.ChunkDelay > 0 {
			select {
			case <-time.After(s.p.ChunkDelay):
			case <-s.ctx.Done():
				return "", fmt.Errorf("%w: %v", provider.ErrUnreachable, s.ctx.Err())
			}
		}
		c := s.chunks[s.next]
		s.next++
		return c, nil
	}
	if s.p.Stall {
		<-s.ctx.Done()
		return "", fmt.Errorf("%w: %v", provider.ErrUnreachable, s.ctx.Err())
	}
	if s.p.StreamErr != nil {
		return "", s.p.StreamErr
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }
