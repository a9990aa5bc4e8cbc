// Package fetch implements the polite, retrying HTTP client used for every
// page request. Requests are spaced by a fixed delay, transient transport
// failures are retried with exponential backoff, and non-2xx responses fail
// the URL immediately.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/buildsheet/harvester/internal/metrics"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultDelay      = 1500 * time.Millisecond
	defaultMaxRetries = 3
	defaultRetryBase  = 5 * time.Second
)

// Config controls client behavior. Zero values take the defaults above.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	Delay      time.Duration
	MaxRetries int
	RetryBase  time.Duration
	Logger     *zap.Logger
}

// Response is the outcome of one successful fetch.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Markup returns the response body as a string.
func (r Response) Markup() string { return string(r.Body) }

// Client fetches pages through a shared Colly collector.
type Client struct {
	cfg           Config
	limiter       *rate.Limiter
	baseCollector *colly.Collector
	log           *zap.Logger
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.IgnoreRobotsTxt = true

	limiter := rate.NewLimiter(rate.Every(cfg.Delay), 1)
	// Drain the initial token so the very first request also waits the
	// politeness delay.
	limiter.Allow()

	return &Client{
		cfg:           cfg,
		limiter:       limiter,
		baseCollector: c,
		log:           cfg.Logger,
	}
}

// Fetch retrieves one URL, retrying transient failures. The politeness delay
// applies before every attempt.
func (c *Client) Fetch(ctx context.Context, url string) (Response, error) {
	var lastErr *Error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			c.log.Warn("retrying fetch",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait),
				zap.Error(lastErr),
			)
			metrics.TotalFetchRetries.Inc()
			if err := sleepCtx(ctx, wait); err != nil {
				return Response{}, &Error{URL: url, Kind: KindCanceled, Err: err}
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, &Error{URL: url, Kind: KindCanceled, Err: err}
		}

		metrics.TotalFetches.Inc()
		resp, err := c.visit(ctx, url)
		if err == nil {
			return resp, nil
		}
		metrics.TotalFetchErrors.Inc()

		var fe *Error
		if !errors.As(err, &fe) {
			fe = classify(url, err, 0)
		}
		if !fe.Retryable() {
			return Response{}, fe
		}
		lastErr = fe
	}
	return Response{}, fmt.Errorf("fetch %s: retries exhausted: %w", url, lastErr)
}

// backoff doubles the base delay per prior failed attempt.
func (c *Client) backoff(attempt int) time.Duration {
	return c.cfg.RetryBase << attempt
}

func (c *Client) visit(ctx context.Context, url string) (Response, error) {
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(c.cfg.Timeout)

	var (
		result   Response
		fetchErr error
		status   int
	)
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Response{}, &Error{URL: url, Kind: KindCanceled, Err: ctx.Err()}
	case err := <-done:
		if fetchErr != nil {
			return Response{}, classify(url, fetchErr, status)
		}
		if err != nil {
			return Response{}, classify(url, err, status)
		}
		return result, nil
	}
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
