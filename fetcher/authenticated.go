package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pevans/archivist/auth"
	"github.com/pevans/archivist/browser"
	"github.com/pevans/archivist/logger"
	"github.com/pevans/archivist/wait"
)

// AuthenticatedOptions configure the browser-backed fetcher.
type AuthenticatedOptions struct {
	Credentials auth.Credentials
	Auth        auth.Options
	// Ready markers; the page is ready once any of them is present.
	Ready []string
	// Loading indicators; when one is present after readiness the fetcher
	// waits one Settle interval before reading the page.
	Loading []string
	Paywall []string

	ReadyTimeout time.Duration
	ReadyPoll    time.Duration
	Settle       time.Duration

	// Clock drives every wait; nil uses wall time.
	Clock wait.Clock
}

// DefaultReadySelectors mark a rendered post page.
var DefaultReadySelectors = []string{
	"div.available-content",
	"h1.post-title",
	"h2.paywall-title",
	".post-content",
}

// DefaultLoadingSelectors mark content that is still loading.
var DefaultLoadingSelectors = []string{".loading", ".spinner", "[data-testid='loading']", ".skeleton"}

// DefaultAuthenticatedOptions returns the standard readiness settings.
func DefaultAuthenticatedOptions() AuthenticatedOptions {
	return AuthenticatedOptions{
		Auth:         auth.DefaultOptions(),
		Ready:        DefaultReadySelectors,
		Loading:      DefaultLoadingSelectors,
		Paywall:      DefaultPaywallSelectors,
		ReadyTimeout: 5 * time.Second,
		ReadyPoll:    500 * time.Millisecond,
		Settle:       time.Second,
	}
}

// Authenticated fetches pages through a signed-in browser session. It owns
// the session exclusively for its whole lifetime.
type Authenticated struct {
	browser browser.Browser
	opts    AuthenticatedOptions
	clock   wait.Clock
	log     logger.Logger
	authed  bool
}

// NewAuthenticated signs b in and returns a fetcher that owns it. Sign-in
// runs exactly once, here. On failure the returned error is an *auth.Error
// and the browser is closed.
func NewAuthenticated(ctx context.Context, b browser.Browser, opts AuthenticatedOptions, log logger.Logger) (*Authenticated, error) {
	log = logger.OrNop(log)
	clock := opts.Clock
	if clock == nil {
		clock = wait.RealClock{}
	}
	if len(opts.Paywall) == 0 {
		opts.Paywall = DefaultPaywallSelectors
	}

	authenticator := auth.New(b, opts.Credentials, opts.Auth, clock, log)
	if err := authenticator.Login(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}

	return &Authenticated{
		browser: b,
		opts:    opts,
		clock:   clock,
		log:     log.With(logger.String("component", "fetcher"), logger.String("mode", "authenticated")),
		authed:  authenticator.State() == auth.Authenticated,
	}, nil
}

// Fetch navigates to url and returns the rendered page once it is ready.
func (f *Authenticated) Fetch(ctx context.Context, url string) Result {
	if !f.authed {
		return Result{URL: url, Status: StatusHardError, Err: ErrNotAuthenticated}
	}

	if err := f.browser.Navigate(ctx, url); err != nil {
		if ctx.Err() != nil {
			return Result{URL: url, Status: StatusTimeout, Err: ctx.Err()}
		}
		// A page-load deadline is a slow page, not a broken session.
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{URL: url, Status: StatusTimeout, Err: err}
		}
		return Result{URL: url, Status: StatusHardError, Err: err}
	}

	err := wait.Until(ctx, f.clock, wait.Options{
		Interval:  f.opts.ReadyPoll,
		Budget:    f.opts.ReadyTimeout,
		Immediate: true,
	}, func(ctx context.Context) (bool, error) {
		sel, err := browser.FirstExisting(ctx, f.browser, browser.Selectors(f.opts.Ready...))
		return sel != "", err
	})
	switch {
	case errors.Is(err, wait.ErrTimeout):
		return Result{URL: url, Status: StatusTimeout, Err: fmt.Errorf("page not ready after %s: %w", f.opts.ReadyTimeout, err)}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Result{URL: url, Status: StatusTimeout, Err: err}
	case err != nil:
		return Result{URL: url, Status: StatusHardError, Err: err}
	}

	if f.opts.Settle > 0 {
		loading, err := browser.FirstExisting(ctx, f.browser, browser.Selectors(f.opts.Loading...))
		if err != nil {
			return Result{URL: url, Status: StatusHardError, Err: err}
		}
		if loading != "" {
			f.log.Debug("content still loading, settling", logger.String("url", url), logger.String("indicator", loading.String()))
			select {
			case <-ctx.Done():
				return Result{URL: url, Status: StatusTimeout, Err: ctx.Err()}
			case <-f.clock.After(f.opts.Settle):
			}
		}
	}

	html, err := f.browser.HTML(ctx)
	if err != nil {
		return Result{URL: url, Status: StatusHardError, Err: err}
	}

	res := okOrPaywalled(url, html, f.opts.Paywall)
	if res.Status == StatusPaywalled {
		f.log.Info("post is paywalled for this account", logger.String("url", url))
	}
	return res
}

// Close ends the browser session.
func (f *Authenticated) Close() error {
	f.authed = false
	return f.browser.Close()
}
