package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Status is the outcome of a fetch.
type Status int

const (
	// StatusOK means HTML holds the rendered page.
	StatusOK Status = iota
	// StatusPaywalled means the page is behind a paywall; skip it.
	StatusPaywalled
	// StatusTimeout means the page did not become ready in time; skip it.
	StatusTimeout
	// StatusFailed is a per-post failure (bad HTTP status, unreadable body).
	StatusFailed
	// StatusHardError means the session itself is broken; later fetches
	// cannot succeed either.
	StatusHardError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusPaywalled:
		return "paywalled"
	case StatusTimeout:
		return "timeout"
	case StatusFailed:
		return "failed"
	case StatusHardError:
		return "hard_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the tagged outcome of one fetch.
type Result struct {
	URL    string
	Status Status
	HTML   string
	Err    error
}

// Escalate reports whether the failure invalidates the remaining batch.
func (r Result) Escalate() bool {
	return r.Status == StatusHardError
}

// Fetcher retrieves the rendered HTML of a post.
type Fetcher interface {
	Fetch(ctx context.Context, url string) Result
	Close() error
}

// ErrNotAuthenticated is returned when an authenticated fetch is attempted
// without a signed-in session.
var ErrNotAuthenticated = errors.New("session is not authenticated")

// HTTPError represents a non-200 response.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// DefaultPaywallSelectors mark a page whose body requires a subscription.
var DefaultPaywallSelectors = []string{"h2.paywall-title"}

// HasPaywall reports whether doc contains any paywall marker.
func HasPaywall(doc *goquery.Document, selectors []string) bool {
	for _, sel := range selectors {
		if strings.TrimSpace(sel) == "" {
			continue
		}
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func okOrPaywalled(url, html string, paywall []string) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{URL: url, Status: StatusFailed, Err: fmt.Errorf("parse HTML: %w", err)}
	}
	if HasPaywall(doc, paywall) {
		return Result{URL: url, Status: StatusPaywalled}
	}
	return Result{URL: url, Status: StatusOK, HTML: html}
}
