package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pevans/archivist/logger"
)

// ErrNoURLs is returned when neither the sitemap nor the feed yields URLs.
var ErrNoURLs = errors.New("no post URLs discovered")

// DefaultKeywords exclude non-post pages.
var DefaultKeywords = []string{"about", "archive", "podcast"}

// DefaultTimeout bounds each discovery request.
const DefaultTimeout = 30 * time.Second

// Options configure a Discoverer.
type Options struct {
	Client    *http.Client
	UserAgent string
	// Keywords exclude any URL containing one of them. Nil uses
	// DefaultKeywords; an empty non-nil slice disables filtering.
	Keywords []string
}

// Discoverer finds post URLs over HTTP.
type Discoverer struct {
	client    *http.Client
	userAgent string
	keywords  []string
	log       logger.Logger
}

// New creates a Discoverer.
func New(opts Options, log logger.Logger) *Discoverer {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	keywords := opts.Keywords
	if keywords == nil {
		keywords = DefaultKeywords
	}
	return &Discoverer{
		client:    client,
		userAgent: opts.UserAgent,
		keywords:  keywords,
		log:       logger.OrNop(log).With(logger.String("component", "discovery")),
	}
}

// NormalizeBase returns baseURL with a trailing slash.
func NormalizeBase(baseURL string) string {
	if strings.HasSuffix(baseURL, "/") {
		return baseURL
	}
	return baseURL + "/"
}

// Discover returns the filtered post URLs of the site at baseURL in document
// order. A sitemap that fails or lists nothing falls back to the feed. When
// both fail the result is empty and the error wraps ErrNoURLs. There are no
// retries.
func (d *Discoverer) Discover(ctx context.Context, baseURL string) ([]string, error) {
	base := NormalizeBase(baseURL)

	// Try sitemap first
	urls, sitemapErr := d.fromSitemap(ctx, base+"sitemap.xml")
	if sitemapErr == nil && len(urls) == 0 {
		sitemapErr = errors.New("sitemap lists no URLs")
	}
	if sitemapErr != nil {
		d.log.Warn("sitemap unavailable, falling back to feed; the feed only lists the most recent posts (about 22)",
			logger.String("base_url", base),
			logger.Error(sitemapErr),
		)

		// Fall back to feed
		var feedErr error
		urls, feedErr = d.fromFeed(ctx, base+"feed.xml")
		if feedErr == nil && len(urls) == 0 {
			feedErr = errors.New("feed lists no items")
		}
		if feedErr != nil {
			return nil, fmt.Errorf("%w: sitemap: %v; feed: %v", ErrNoURLs, sitemapErr, feedErr)
		}
	}

	filtered := FilterURLs(urls, d.keywords)
	d.log.Info("discovered post URLs",
		logger.String("base_url", base),
		logger.Int("found", len(urls)),
		logger.Int("kept", len(filtered)),
	)
	return filtered, nil
}

func (d *Discoverer) fromSitemap(ctx context.Context, url string) ([]string, error) {
	body, err := d.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return ParseSitemap(body)
}

func (d *Discoverer) fromFeed(ctx context.Context, url string) ([]string, error) {
	body, err := d.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return ParseFeed(body)
}

func (d *Discoverer) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %d for %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

// FilterURLs drops every URL that contains any keyword as a substring,
// preserving order.
func FilterURLs(urls, keywords []string) []string {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if !containsAny(u, keywords) {
			kept = append(kept, u)
		}
	}
	return kept
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}
