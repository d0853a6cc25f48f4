package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/raysh454/auditai/internal/logging"
	"github.com/raysh454/auditai/internal/tracing"
	"github.com/raysh454/auditai/internal/webclient"
)

// EnvPrefix prefixes every environment override, e.g. AUDITAI_SERVER_ADDR.
const EnvPrefix = "AUDITAI"

type ServerConfig struct {
	Addr            string        `validate:"required"`
	AllowedOrigins  []string      `validate:"min=1"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	// KeepAlive is the SSE comment interval.
	KeepAlive time.Duration `validate:"gt=0"`
}

type JobsConfig struct {
	Retention     time.Duration `validate:"gte=0"`
	SweepInterval time.Duration `validate:"gt=0"`
	BufferSize    int           `validate:"gt=0"`
	ScanTimeout   time.Duration `validate:"gte=0"`
	IdleTimeout   time.Duration `validate:"gt=0"`
}

type ProbeConfig struct {
	Client             string  `validate:"oneof=nethttp chromedp"`
	Timeout            time.Duration
	UserAgent          string
	RateLimit          float64 `validate:"gte=0"`
	MaxRetries         int     `validate:"gte=0"`
	InsecureSkipVerify bool
	Headless           bool
	MaxCrawlURLs       int `validate:"gte=0"`
	StepDelay          time.Duration
}

type OllamaConfig struct {
	BaseURL string `validate:"required,url"`
	Model   string `validate:"required"`
}

type GroqConfig struct {
	APIKey  string
	BaseURL string `validate:"required,url"`
	Model   string `validate:"required"`
}

type ProvidersConfig struct {
	Ollama            OllamaConfig
	Groq              GroqConfig
	ConnectAttempts   int `validate:"gte=0"`
	RetryInterval     time.Duration
	BreakerFailures   uint32
	BreakerOpenPeriod time.Duration
}

type ArchiveConfig struct {
	// Path of the SQLite file; empty disables the archive.
	Path string
}

// Config is the full runtime configuration of the service.
type Config struct {
	Server    ServerConfig
	Log       logging.Config
	Jobs      JobsConfig
	Probe     ProbeConfig
	Providers ProvidersConfig
	Archive   ArchiveConfig
	Tracing   tracing.Config
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 15 * time.Second,
			KeepAlive:       15 * time.Second,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Jobs: JobsConfig{
			Retention:     time.Hour,
			SweepInterval: time.Minute,
			BufferSize:    512,
			ScanTimeout:   5 * time.Minute,
			IdleTimeout:   60 * time.Second,
		},
		Probe: ProbeConfig{
			Client:       string(webclient.ClientNetHTTP),
			Timeout:      10 * time.Second,
			UserAgent:    webclient.DefaultUserAgent,
			RateLimit:    3,
			MaxRetries:   2,
			Headless:     true,
			MaxCrawlURLs: 20,
			StepDelay:    500 * time.Millisecond,
		},
		Providers: ProvidersConfig{
			Ollama: OllamaConfig{
				BaseURL: "http://localhost:11434",
				Model:   "llama3.1:8b",
			},
			Groq: GroqConfig{
				BaseURL: "https://api.groq.com/openai/v1",
				Model:   "llama-3.3-70b-versatile",
			},
			ConnectAttempts:   2,
			RetryInterval:     500 * time.Millisecond,
			BreakerFailures:   5,
			BreakerOpenPeriod: 30 * time.Second,
		},
		Archive: ArchiveConfig{
			Path: "data/auditai.db",
		},
		Tracing: tracing.Config{
			ServiceName: "auditai",
			Insecure:    true,
			SampleRatio: 1,
		},
	}
}

// legacyEnv maps keys to the plain variable names the service has always
// honoured, checked after the prefixed ones.
var legacyEnv = map[string]string{
	"providers.ollama.base_url": "OLLAMA_BASE_URL",
	"providers.ollama.model":    "OLLAMA_MODEL",
	"providers.groq.api_key":    "GROQ_API_KEY",
	"providers.groq.model":      "GROQ_MODEL",
}

// LoadConfig layers defaults, the optional YAML file at path and the
// environment, then validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return nil, fmt.Errorf("binding %s: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.keep_alive", d.Server.KeepAlive)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("jobs.retention", d.Jobs.Retention)
	v.SetDefault("jobs.sweep_interval", d.Jobs.SweepInterval)
	v.SetDefault("jobs.buffer_size", d.Jobs.BufferSize)
	v.SetDefault("jobs.scan_timeout", d.Jobs.ScanTimeout)
	v.SetDefault("jobs.idle_timeout", d.Jobs.IdleTimeout)

	v.SetDefault("probe.client", d.Probe.Client)
	v.SetDefault("probe.timeout", d.Probe.Timeout)
	v.SetDefault("probe.user_agent", d.Probe.UserAgent)
	v.SetDefault("probe.rate_limit", d.Probe.RateLimit)
	v.SetDefault("probe.max_retries", d.Probe.MaxRetries)
	v.SetDefault("probe.insecure_skip_verify", d.Probe.InsecureSkipVerify)
	v.SetDefault("probe.headless", d.Probe.Headless)
	v.SetDefault("probe.max_crawl_urls", d.Probe.MaxCrawlURLs)
	v.SetDefault("probe.step_delay", d.Probe.StepDelay)

	v.SetDefault("providers.ollama.base_url", d.Providers.Ollama.BaseURL)
	v.SetDefault("providers.ollama.model", d.Providers.Ollama.Model)
	v.SetDefault("providers.groq.api_key", d.Providers.Groq.APIKey)
	v.SetDefault("providers.groq.base_url", d.Providers.Groq.BaseURL)
	v.SetDefault("providers.groq.model", d.Providers.Groq.Model)
	v.SetDefault("providers.connect_attempts", d.Providers.ConnectAttempts)
	v.SetDefault("providers.retry_interval", d.Providers.RetryInterval)
	v.SetDefault("providers.breaker_failures", d.Providers.BreakerFailures)
	v.SetDefault("providers.breaker_open_period", d.Providers.BreakerOpenPeriod)

	v.SetDefault("archive.path", d.Archive.Path)

	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			AllowedOrigins:  v.GetStringSlice("server.allowed_origins"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			KeepAlive:       v.GetDuration("server.keep_alive"),
		},
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Jobs: JobsConfig{
			Retention:     v.GetDuration("jobs.retention"),
			SweepInterval: v.GetDuration("jobs.sweep_interval"),
			BufferSize:    v.GetInt("jobs.buffer_size"),
			ScanTimeout:   v.GetDuration("jobs.scan_timeout"),
			IdleTimeout:   v.GetDuration("jobs.idle_timeout"),
		},
		Probe: ProbeConfig{
			Client:             v.GetString("probe.client"),
			Timeout:            v.GetDuration("probe.timeout"),
			UserAgent:          v.GetString("probe.user_agent"),
			RateLimit:          v.GetFloat64("probe.rate_limit"),
			MaxRetries:         v.GetInt("probe.max_retries"),
			InsecureSkipVerify: v.GetBool("probe.insecure_skip_verify"),
			Headless:           v.GetBool("probe.headless"),
			MaxCrawlURLs:       v.GetInt("probe.max_crawl_urls"),
			StepDelay:          v.GetDuration("probe.step_delay"),
		},
		Providers: ProvidersConfig{
			Ollama: OllamaConfig{
				BaseURL: v.GetString("providers.ollama.base_url"),
				Model:   v.GetString("providers.ollama.model"),
			},
			Groq: GroqConfig{
				APIKey:  v.GetString("providers.groq.api_key"),
				BaseURL: v.GetString("providers.groq.base_url"),
				Model:   v.GetString("providers.groq.model"),
			},
			ConnectAttempts:   v.GetInt("providers.connect_attempts"),
			RetryInterval:     v.GetDuration("providers.retry_interval"),
			BreakerFailures:   v.GetUint32("providers.breaker_failures"),
			BreakerOpenPeriod: v.GetDuration("providers.breaker_open_period"),
		},
		Archive: ArchiveConfig{
			Path: v.GetString("archive.path"),
		},
		Tracing: tracing.Config{
			ServiceName: v.GetString("tracing.service_name"),
			Endpoint:    v.GetString("tracing.endpoint"),
			Insecure:    v.GetBool("tracing.insecure"),
			SampleRatio: v.GetFloat64("tracing.sample_ratio"),
		},
	}
}

var validate = validator.New()

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// WebClient translates the probe settings for the webclient package.
func (c *Config) WebClient() webclient.Config {
	wc := webclient.DefaultConfig()
	wc.Client = webclient.Client(c.Probe.Client)
	wc.Timeout = c.Probe.Timeout
	wc.UserAgent = c.Probe.UserAgent
	wc.RateLimit = c.Probe.RateLimit
	wc.MaxRetries = c.Probe.MaxRetries
	wc.InsecureSkipVerify = c.Probe.InsecureSkipVerify
	wc.Headless = c.Probe.Headless
	return wc
}
