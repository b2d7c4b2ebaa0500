// Package collyfetcher implements the crawler's HTTP client on top of gocolly.
// Each request gets a rotated user agent, a randomized politeness delay, and
// exponential-backoff retries.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/anime-catalog-crawler/internal/metrics"
)

// Request kinds used for delays and metrics.
const (
	KindPage = "page"
	KindAjax = "ajax"
)

// Window is an inclusive range for the randomized pre-request delay.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Config controls collector behavior.
type Config struct {
	// Origin is sent as the Origin header on AJAX posts that carry a referer.
	Origin           string
	UserAgents       []string
	DefaultUserAgent string
	Timeout          time.Duration
	ConnectTimeout   time.Duration
	PageDelay        Window
	AjaxDelay        Window
	MaxAttempts      int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
}

// StatusError reports a 4xx or 5xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Waiter throttles outbound requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher performs GET and form POST requests with Colly.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	policy        *ExponentialRetryPolicy
	limiter       Waiter
	logger        *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
	intn  func(n int) int
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type request struct {
	kind    string
	method  string
	url     string
	body    string
	headers http.Header
	delay   Window
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	metrics.Init()

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport(cfg.ConnectTimeout))
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		policy:        NewExponentialRetryPolicy(cfg.BackoffInitial, cfg.BackoffMax),
		limiter:       limiter,
		logger:        logger,
		sleep:         sleepContext,
		intn:          rand.IntN,
	}
}

// Get fetches rawURL and returns the response body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return f.do(ctx, request{
		kind:    KindPage,
		method:  http.MethodGet,
		url:     rawURL,
		headers: http.Header{},
		delay:   f.cfg.PageDelay,
	})
}

// PostForm submits fields as an urlencoded form, marked as an XHR. When
// referer is set the Referer and Origin headers are added.
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, fields map[string]string, referer string) ([]byte, error) {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	headers.Set("X-Requested-With", "XMLHttpRequest")
	if referer != "" {
		headers.Set("Referer", referer)
		if f.cfg.Origin != "" {
			headers.Set("Origin", strings.TrimRight(f.cfg.Origin, "/"))
		}
	}
	return f.do(ctx, request{
		kind:    KindAjax,
		method:  http.MethodPost,
		url:     rawURL,
		body:    form.Encode(),
		headers: headers,
		delay:   f.cfg.AjaxDelay,
	})
}

func (f *Fetcher) do(ctx context.Context, req request) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			b, err := f.attempt(ctx, req)
			metrics.ObserveFetch(req.kind, fetchOutcome(ctx, err))
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(f.cfg.MaxAttempts)),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return f.policy.Backoff(int(n))
		}),
		retry.RetryIf(func(err error) bool {
			return f.policy.ShouldRetry(ctx, err)
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			metrics.ObserveRetry(req.kind)
			f.logger.Debug("retrying request",
				zap.String("method", req.method),
				zap.String("url", req.url),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.url, err)
	}
	return body, nil
}

func (f *Fetcher) attempt(ctx context.Context, req request) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, req.url); err != nil {
			return nil, err
		}
	}
	if err := f.sleep(ctx, f.jitter(req.delay)); err != nil {
		return nil, fmt.Errorf("politeness delay: %w", err)
	}

	var (
		body     []byte
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &body, &fetchErr)

	headers := req.headers.Clone()
	headers.Set("User-Agent", f.userAgent())
	var data io.Reader
	if req.body != "" {
		data = strings.NewReader(req.body)
	}
	err := f.runCollector(ctx, func() error {
		return collector.Request(req.method, req.url, data, nil, headers)
	}, &fetchErr)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		if r.StatusCode >= http.StatusBadRequest {
			*fetchErr = newStatusError(r)
			return
		}
		*body = append([]byte(nil), r.Body...)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			*fetchErr = newStatusError(r)
			return
		}
		*fetchErr = err
	})
}

func newStatusError(r *colly.Response) *StatusError {
	target := ""
	if r.Request != nil && r.Request.URL != nil {
		target = r.Request.URL.String()
	}
	return &StatusError{URL: target, StatusCode: r.StatusCode}
}

func (f *Fetcher) runCollector(ctx context.Context, run func() error, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- run()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return fmt.Errorf("colly request failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) userAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return f.cfg.DefaultUserAgent
	}
	return f.cfg.UserAgents[f.intn(len(f.cfg.UserAgents))]
}

func (f *Fetcher) jitter(w Window) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	span := int(w.Max - w.Min)
	return w.Min + time.Duration(f.intn(span+1))
}

func fetchOutcome(ctx context.Context, err error) string {
	if err == nil {
		return "ok"
	}
	if ctx.Err() != nil {
		return "canceled"
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return "http_error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "transport_error"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport(connectTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
