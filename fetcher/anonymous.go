package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pevans/archivist/logger"
)

// AnonymousOptions configure the anonymous fetcher.
type AnonymousOptions struct {
	// Timeout bounds each request.
	Timeout   time.Duration
	UserAgent string
	// Paywall selectors; empty uses DefaultPaywallSelectors.
	Paywall []string
	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// Anonymous fetches pages with stateless HTTP GETs.
type Anonymous struct {
	client    *http.Client
	userAgent string
	paywall   []string
	log       logger.Logger
}

// DefaultUserAgent identifies the archiver when no override is configured.
const DefaultUserAgent = "archivist/1.0 (+post archiver)"

// NewAnonymous creates an anonymous fetcher.
func NewAnonymous(opts AnonymousOptions, log logger.Logger) *Anonymous {
	client := opts.Client
	if client == nil {
		client = NewHTTPClient(opts.Timeout)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	paywall := opts.Paywall
	if len(paywall) == 0 {
		paywall = DefaultPaywallSelectors
	}
	return &Anonymous{
		client:    client,
		userAgent: ua,
		paywall:   paywall,
		log:       logger.OrNop(log).With(logger.String("component", "fetcher"), logger.String("mode", "anonymous")),
	}
}

// NewHTTPClient returns a client with a bounded transport and redirect cap.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}
}

// Fetch issues a GET for url.
func (a *Anonymous) Fetch(ctx context.Context, url string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{URL: url, Status: StatusFailed, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Result{URL: url, Status: StatusTimeout, Err: fmt.Errorf("fetch %s: %w", url, err)}
		}
		return Result{URL: url, Status: StatusFailed, Err: fmt.Errorf("fetch %s: %w", url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{URL: url, Status: StatusFailed, Err: &HTTPError{StatusCode: resp.StatusCode, URL: url}}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return Result{URL: url, Status: StatusTimeout, Err: fmt.Errorf("read %s: %w", url, err)}
		}
		return Result{URL: url, Status: StatusFailed, Err: fmt.Errorf("read %s: %w", url, err)}
	}

	res := okOrPaywalled(url, string(body), a.paywall)
	if res.Status == StatusPaywalled {
		a.log.Info("skipping premium post", logger.String("url", url))
	}
	return res
}

// Close releases idle connections.
func (a *Anonymous) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
