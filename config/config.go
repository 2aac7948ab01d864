package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pevans/archivist/auth"
	"github.com/pevans/archivist/browser"
	"github.com/pevans/archivist/discovery"
	"github.com/pevans/archivist/extract"
	"github.com/pevans/archivist/fetcher"
	"github.com/pevans/archivist/logger"
)

// Environment variables holding the account credentials.
const (
	EnvEmail    = "ARCHIVIST_EMAIL"
	EnvPassword = "ARCHIVIST_PASSWORD"
)

// Config is the configuration of one archive run. It is passed by value.
type Config struct {
	BaseURL string
	// Limit is the number of posts to process; 0 means all.
	Limit int
	// Premium selects the authenticated fetcher.
	Premium  bool
	Headless bool
	// BrowserPath is the browser executable; empty finds one on PATH.
	BrowserPath string
	// RemoteURL is the DevTools websocket of an already running browser.
	RemoteURL string
	UserAgent string
	OutputDir string

	Email    string
	Password string

	// Keywords exclude discovered URLs containing any of them.
	Keywords []string

	RequestTimeout  time.Duration
	PageTimeout     time.Duration
	PagePoll        time.Duration
	Settle          time.Duration
	ElementTimeout  time.Duration
	ChallengeBudget time.Duration
	ChallengePoll   time.Duration
	// FetchInterval is the minimum spacing between network fetches.
	FetchInterval time.Duration

	ExtractSelectors extract.Selectors
	AuthSelectors    auth.Selectors
	SignInURL        string
	ReadySelectors   []string
	LoadingSelectors []string
	PaywallSelectors []string

	Log logger.Config
	// JournalPath is the SQLite run ledger; empty disables it.
	JournalPath string
}

// Default returns the built-in configuration.
func Default() Config {
	authOpts := auth.DefaultOptions()
	fetchOpts := fetcher.DefaultAuthenticatedOptions()
	return Config{
		OutputDir:        "substacks",
		Keywords:         append([]string(nil), discovery.DefaultKeywords...),
		RequestTimeout:   30 * time.Second,
		PageTimeout:      fetchOpts.ReadyTimeout,
		PagePoll:         fetchOpts.ReadyPoll,
		Settle:           fetchOpts.Settle,
		ElementTimeout:   authOpts.ElementTimeout,
		ChallengeBudget:  authOpts.ChallengeBudget,
		ChallengePoll:    authOpts.ChallengePoll,
		FetchInterval:    time.Second,
		ExtractSelectors: extract.DefaultSelectors(),
		AuthSelectors:    auth.DefaultSelectors(),
		SignInURL:        auth.DefaultSignInURL,
		ReadySelectors:   append([]string(nil), fetcher.DefaultReadySelectors...),
		LoadingSelectors: append([]string(nil), fetcher.DefaultLoadingSelectors...),
		PaywallSelectors: append([]string(nil), fetcher.DefaultPaywallSelectors...),
		Log:              logger.Config{Level: "info", Format: "console"},
	}
}

// Mode names the fetch strategy.
func (c Config) Mode() string {
	if c.Premium {
		return "authenticated"
	}
	return "anonymous"
}

// Validate reports every configuration error found.
func (c Config) Validate() error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, errors.New("base URL is required"))
	} else if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base URL %q must be an absolute http or https URL", c.BaseURL))
	}
	if c.Limit < 0 {
		errs = append(errs, fmt.Errorf("limit must not be negative (got %d)", c.Limit))
	}
	if c.Premium && (c.Email == "" || c.Password == "") {
		errs = append(errs, fmt.Errorf("authenticated mode requires %s and %s", EnvEmail, EnvPassword))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"request_timeout", c.RequestTimeout},
		{"page_timeout", c.PageTimeout},
		{"page_poll", c.PagePoll},
		{"element_timeout", c.ElementTimeout},
		{"challenge_budget", c.ChallengeBudget},
		{"challenge_poll", c.ChallengePoll},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive (got %s)", d.name, d.value))
		}
	}
	if c.Settle < 0 {
		errs = append(errs, fmt.Errorf("settle must not be negative (got %s)", c.Settle))
	}
	if c.FetchInterval < 0 {
		errs = append(errs, fmt.Errorf("fetch_interval must not be negative (got %s)", c.FetchInterval))
	}

	return errors.Join(errs...)
}

// DiscoveryOptions configure URL discovery.
func (c Config) DiscoveryOptions() discovery.Options {
	return discovery.Options{
		Client:    fetcher.NewHTTPClient(c.RequestTimeout),
		UserAgent: c.userAgent(),
		Keywords:  c.Keywords,
	}
}

// AnonymousOptions configure the anonymous fetcher.
func (c Config) AnonymousOptions() fetcher.AnonymousOptions {
	return fetcher.AnonymousOptions{
		Timeout:   c.RequestTimeout,
		UserAgent: c.userAgent(),
		Paywall:   c.PaywallSelectors,
	}
}

// AuthenticatedOptions configure the browser-backed fetcher.
func (c Config) AuthenticatedOptions() fetcher.AuthenticatedOptions {
	authOpts := auth.DefaultOptions()
	authOpts.SignInURL = c.SignInURL
	authOpts.Selectors = c.AuthSelectors
	authOpts.ElementTimeout = c.ElementTimeout
	authOpts.ChallengeBudget = c.ChallengeBudget
	authOpts.ChallengePoll = c.ChallengePoll

	return fetcher.AuthenticatedOptions{
		Credentials:  auth.Credentials{Email: c.Email, Password: c.Password},
		Auth:         authOpts,
		Ready:        c.ReadySelectors,
		Loading:      c.LoadingSelectors,
		Paywall:      c.PaywallSelectors,
		ReadyTimeout: c.PageTimeout,
		ReadyPoll:    c.PagePoll,
		Settle:       c.Settle,
	}
}

// ChromeOptions configure the browser session.
func (c Config) ChromeOptions() browser.ChromeOptions {
	return browser.ChromeOptions{
		Headless:        c.Headless,
		ExecPath:        c.BrowserPath,
		RemoteURL:       c.RemoteURL,
		UserAgent:       c.UserAgent,
		PageLoadTimeout: c.RequestTimeout,
	}
}

func (c Config) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return fetcher.DefaultUserAgent
}
