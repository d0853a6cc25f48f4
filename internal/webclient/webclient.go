// Package webclient fetches pages for the probe. Backends are registered by
// name; the net/http backend is the default and chromedp renders JavaScript.
package webclient

import (
	"context"
	"errors"
)

var (
	ErrNilRequest         = errors.New("nil request")
	ErrMethodNotSupported = errors.New("method not supported by backend")
)

type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}

// Get is a convenience for a plain GET through wc.
func Get(ctx context.Context, wc WebClient, url string) (*Response, error) {
	return wc.Do(ctx, &Request{Method: "GET", URL: url})
}
