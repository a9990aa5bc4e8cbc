// Package render produces DOM snapshots of script-driven pages with headless
// Chrome. Listing and detail pages on rendered sites only carry their data
// after the page scripts run, so the plain HTTP body is not enough there.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrDisabled indicates rendering has been disabled via configuration.
var ErrDisabled = errors.New("renderer disabled")

// Renderer returns the post-script markup of a page.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close(ctx context.Context) error
}

// Config controls the Chrome renderer.
type Config struct {
	UserAgent string
	// Timeout bounds one page render.
	Timeout time.Duration
	// Settle is the fixed wait after the document is ready, giving page
	// scripts time to fill the DOM.
	Settle time.Duration
}

// Chrome renders pages in a shared headless browser, one tab per call.
type Chrome struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	cfg             Config
	log             *zap.Logger
}

// NewChrome starts the browser and verifies it responds.
func NewChrome(cfg Config, logger *zap.Logger) (*Chrome, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Chrome{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		cfg:             cfg,
		log:             logger,
	}, nil
}

// Close tears down the allocator and browser contexts.
func (r *Chrome) Close(context.Context) error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	return nil
}

// Render loads the page in a fresh tab, waits for the document plus the
// settle delay, and returns the resulting markup.
func (r *Chrome) Render(ctx context.Context, rawURL string) (string, error) {
	if r == nil {
		return "", ErrDisabled
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.cfg.Timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.cfg.UserAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Noop is the renderer used when headless Chrome is turned off; callers fall
// back to the plain HTTP body.
type Noop struct{}

func (Noop) Render(context.Context, string) (string, error) { return "", ErrDisabled }
func (Noop) Close(context.Context) error                    { return nil }
