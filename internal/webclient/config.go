package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

const DefaultUserAgent = "AuditAI-Security-Scanner/1.0"

// Config configures a WebClient backend.
type Config struct {
	Client    Client
	Timeout   time.Duration
	UserAgent string

	// RateLimit is the sustained request rate per second; 0 means unlimited.
	RateLimit float64
	Burst     int

	// MaxRetries applies to transport errors only, never to HTTP statuses.
	MaxRetries    int
	RetryInterval time.Duration

	InsecureSkipVerify bool

	// chromedp only
	IdleAfter time.Duration
	Headless  bool
}

func DefaultConfig() Config {
	return Config{
		Client:        ClientNetHTTP,
		Timeout:       10 * time.Second,
		UserAgent:     DefaultUserAgent,
		RateLimit:     3,
		Burst:         1,
		MaxRetries:    2,
		RetryInterval: time.Second,
		IdleAfter:     2 * time.Second,
		Headless:      true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Client == "" {
		c.Client = d.Client
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = d.IdleAfter
	}
	return c
}
