package webclient

import (
	"net/http"
	"time"
)

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	// FinalURL is the URL after redirects.
	FinalURL  string
	Redirects int
	Retries   int
	FetchedAt time.Time
	Duration  time.Duration
}

// Exchange is one entry of the traffic history.
type Exchange struct {
	Method     string
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Duration   time.Duration
	Retries    int
	Err        string
	At         time.Time
}
