package webclient

import (
	"context"
	"sync"
	"time"
)

// History is a concurrency-safe traffic log.
type History struct {
	mu      sync.Mutex
	entries []Exchange
}

func (h *History) add(e Exchange) {
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
}

// Entries returns a copy of the recorded exchanges in order.
func (h *History) Entries() []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Exchange, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Recording wraps wc so every request, failed or not, lands in h.
// Closing the wrapper does not close wc.
func Recording(wc WebClient, h *History) WebClient {
	return &recordingClient{next: wc, history: h}
}

type recordingClient struct {
	next    WebClient
	history *History
}

func (r *recordingClient) Do(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := r.next.Do(ctx, req)
	e := Exchange{At: start, Duration: time.Since(start)}
	if req != nil {
		e.Method, e.URL = req.Method, req.URL
	}
	if err != nil {
		e.Err = err.Error()
	} else {
		e.FinalURL = resp.FinalURL
		e.StatusCode = resp.StatusCode
		e.Headers = resp.Headers
		e.Retries = resp.Retries
	}
	r.history.add(e)
	return resp, err
}

func (r *recordingClient) Close() error { return nil }
