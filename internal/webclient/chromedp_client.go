package webclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/auditai/internal/logging"
)

// ChromedpClient renders pages in a headless browser. Only GET is supported.
type ChromedpClient struct {
	cfg         Config
	logger      logging.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromedpClient, error) {
	cfg = cfg.withDefaults()

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.InsecureSkipVerify {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	l := logger.With(logging.Field{Key: "backend", Value: "chromedp"})
	l.Debug("created chromedp webclient", logging.Field{Key: "idle_after", Value: cfg.IdleAfter.String()})

	return &ChromedpClient{cfg: cfg, logger: l, allocCtx: allocCtx, allocCancel: cancel}, nil
}

// waitNetworkIdle signals once no request has been in flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idle := make(chan struct{})
	var (
		active  int32
		timerMu sync.Mutex
		timer   *time.Timer
		once    sync.Once
	)

	arm := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&active) == 0 {
				once.Do(func() { close(idle) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&active, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&active, -1) <= 0 {
				arm()
			}
		}
	})
	arm()
	return idle
}

func (cdc *ChromedpClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if m := strings.ToUpper(req.Method); m != "" && m != http.MethodGet {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotSupported, m)
	}

	tabCtx, cancelTab := chromedp.NewContext(cdc.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, cdc.cfg.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var (
		docMu   sync.Mutex
		status  int
		headers = http.Header{}
	)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		docMu.Lock()
		defer docMu.Unlock()
		if status != 0 {
			return
		}
		status = int(e.Response.Status)
		for k, v := range e.Response.Headers {
			headers.Set(k, fmt.Sprint(v))
		}
	})
	idle := waitNetworkIdle(tabCtx, cdc.cfg.IdleAfter)

	start := time.Now()
	if err := chromedp.Run(tabCtx, network.Enable(), chromedp.Navigate(req.URL)); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	select {
	case <-idle:
	case <-tabCtx.Done():
		return nil, fmt.Errorf("waiting for %s to settle: %w", req.URL, tabCtx.Err())
	}

	var html, location string
	if err := chromedp.Run(tabCtx, chromedp.Location(&location), chromedp.OuterHTML("html", &html)); err != nil {
		return nil, fmt.Errorf("read rendered page %s: %w", req.URL, err)
	}

	docMu.Lock()
	defer docMu.Unlock()
	return &Response{
		Request:    req,
		Headers:    headers,
		Body:       []byte(html),
		StatusCode: status,
		FinalURL:   location,
		FetchedAt:  time.Now(),
		Duration:   time.Since(start),
	}, nil
}

func (cdc *ChromedpClient) Close() error {
	cdc.allocCancel()
	return nil
}
