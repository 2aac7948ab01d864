// Package auth signs a browser session in to the publishing platform. Sign-in
// is a small state machine; the last stage waits, bounded, for a person to
// solve an interactive challenge in the browser window.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pevans/archivist/browser"
	"github.com/pevans/archivist/logger"
	"github.com/pevans/archivist/wait"
)

// State is a stage of the sign-in state machine.
type State int

const (
	Unauthenticated State = iota
	AwaitingCredentialSubmit
	AwaitingChallenge
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case AwaitingCredentialSubmit:
		return "awaiting_credential_submit"
	case AwaitingChallenge:
		return "awaiting_challenge"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAuthentication is matched by every *Error.
var ErrAuthentication = errors.New("authentication failed")

// Error is returned when sign-in ends in the Failed state.
type Error struct {
	// State is the stage that was active when sign-in failed.
	State State
	// Observed is the text of an error indicator seen on the page, if any.
	Observed string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "login failed during %s", e.State)
	if e.Observed != "" {
		fmt.Fprintf(&b, " (page reported %q)", e.Observed)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	b.WriteString(". Possible causes:\n" +
		"1. the interactive challenge was not solved in time\n" +
		"2. invalid credentials\n" +
		"3. the account is locked or restricted\n" +
		"4. the sign-in page structure changed\n" +
		"Check the browser window for error messages.")
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuthentication}
	}
	return []error{ErrAuthentication, e.Err}
}

// Credentials are the account email and password.
type Credentials struct {
	Email    string
	Password string
}

// Selectors are the ordered candidate matchers for each sign-in element.
// Within a list the first candidate present on the page wins.
type Selectors struct {
	PasswordEntry  []string `yaml:"password_entry"`
	EmailField     []string `yaml:"email_field"`
	PasswordField  []string `yaml:"password_field"`
	SubmitButton   []string `yaml:"submit_button"`
	ErrorIndicator []string `yaml:"error_indicator"`
}

// DefaultSelectors returns the matchers for the current sign-in page.
func DefaultSelectors() Selectors {
	return Selectors{
		PasswordEntry: []string{
			"//a[@class='login-option substack-login__login-option']",
			"//a[contains(@class, 'login-option')]",
			"//a[contains(text(), 'password')]",
			"//a[contains(text(), 'Continue with email')]",
			"//button[contains(text(), 'Continue with email')]",
		},
		EmailField:     []string{"input[name='email']", "input[type='email']", "#email"},
		PasswordField:  []string{"input[name='password']", "input[type='password']", "#password"},
		SubmitButton:   []string{"//*[@id='substack-login']/div[2]/div[2]/form/button", "form button[type='submit']", "form button"},
		ErrorIndicator: []string{"#error-container"},
	}
}

// Options configure an Authenticator.
type Options struct {
	SignInURL string
	Selectors Selectors
	// PendingPattern matches error-indicator text meaning the challenge is
	// still unsolved rather than a real failure.
	PendingPattern *regexp.Regexp
	// ElementTimeout bounds the wait for each sign-in element to appear.
	ElementTimeout time.Duration
	// ElementPoll is the polling interval while waiting for elements.
	ElementPoll time.Duration
	// ChallengeBudget is the total time allowed for the challenge.
	ChallengeBudget time.Duration
	// ChallengePoll is how often the challenge outcome is checked.
	ChallengePoll time.Duration
}

// DefaultSignInURL is the platform's sign-in surface.
const DefaultSignInURL = "https://substack.com/sign-in"

// DefaultOptions returns the standard sign-in timings.
func DefaultOptions() Options {
	return Options{
		SignInURL:       DefaultSignInURL,
		Selectors:       DefaultSelectors(),
		PendingPattern:  regexp.MustCompile(`(?i)captcha`),
		ElementTimeout:  15 * time.Second,
		ElementPoll:     500 * time.Millisecond,
		ChallengeBudget: 120 * time.Second,
		ChallengePoll:   10 * time.Second,
	}
}

// Authenticator drives one browser session through sign-in.
type Authenticator struct {
	browser browser.Browser
	creds   Credentials
	opts    Options
	clock   wait.Clock
	log     logger.Logger
	state   State
}

// New creates an Authenticator. A nil clock uses wall time; a nil logger
// discards output.
func New(b browser.Browser, creds Credentials, opts Options, clock wait.Clock, log logger.Logger) *Authenticator {
	if clock == nil {
		clock = wait.RealClock{}
	}
	if opts.PendingPattern == nil {
		opts.PendingPattern = DefaultOptions().PendingPattern
	}
	return &Authenticator{
		browser: b,
		creds:   creds,
		opts:    opts,
		clock:   clock,
		log:     logger.OrNop(log).With(logger.String("component", "auth")),
		state:   Unauthenticated,
	}
}

// State returns the current state.
func (a *Authenticator) State() State {
	return a.state
}

func (a *Authenticator) transition(to State) {
	a.log.Info("login state change",
		logger.String("from", a.state.String()),
		logger.String("to", to.String()),
	)
	a.state = to
}

func (a *Authenticator) fail(observed string, err error) error {
	failedIn := a.state
	a.transition(Failed)
	return &Error{State: failedIn, Observed: observed, Err: err}
}

// Login runs the state machine to completion. It returns nil in the
// Authenticated state and an *Error otherwise.
func (a *Authenticator) Login(ctx context.Context) error {
	if a.state != Unauthenticated {
		return fmt.Errorf("login already attempted (state %s)", a.state)
	}
	if a.creds.Email == "" || a.creds.Password == "" {
		return a.fail("", errors.New("missing credentials"))
	}

	if err := a.openPasswordForm(ctx); err != nil {
		return a.fail("", err)
	}
	a.transition(AwaitingCredentialSubmit)

	if err := a.submitCredentials(ctx); err != nil {
		return a.fail("", err)
	}
	a.transition(AwaitingChallenge)

	a.log.Warn("waiting for sign-in to complete; solve any challenge in the browser window",
		logger.Duration("budget", a.opts.ChallengeBudget),
	)
	observed, err := a.awaitChallenge(ctx)
	if err != nil {
		return a.fail(observed, err)
	}

	a.transition(Authenticated)
	return nil
}

// openPasswordForm navigates to the sign-in surface and activates the
// password-based entry point.
func (a *Authenticator) openPasswordForm(ctx context.Context) error {
	if err := a.browser.Navigate(ctx, a.opts.SignInURL); err != nil {
		return fmt.Errorf("open sign-in page: %w", err)
	}

	entry, err := a.locate(ctx, "password entry point", a.opts.Selectors.PasswordEntry)
	if err != nil {
		return err
	}
	if err := a.browser.Click(ctx, entry); err != nil {
		return fmt.Errorf("activate password entry point: %w", err)
	}
	return nil
}

func (a *Authenticator) submitCredentials(ctx context.Context) error {
	email, err := a.locate(ctx, "email field", a.opts.Selectors.EmailField)
	if err != nil {
		return err
	}
	password, err := a.locate(ctx, "password field", a.opts.Selectors.PasswordField)
	if err != nil {
		return err
	}

	if err := a.browser.Fill(ctx, email, a.creds.Email); err != nil {
		return fmt.Errorf("enter email: %w", err)
	}
	if err := a.browser.Fill(ctx, password, a.creds.Password); err != nil {
		return fmt.Errorf("enter password: %w", err)
	}
	a.log.Info("entered credentials", logger.String("email", a.creds.Email))

	submit, err := a.locate(ctx, "submit button", a.opts.Selectors.SubmitButton)
	if err != nil {
		return err
	}
	if err := a.browser.Click(ctx, submit); err != nil {
		return fmt.Errorf("submit sign-in form: %w", err)
	}
	return nil
}

// locate polls until one of candidates is present, returning the first
// present candidate in priority order.
func (a *Authenticator) locate(ctx context.Context, what string, candidates []string) (browser.Selector, error) {
	var found browser.Selector
	err := wait.Until(ctx, a.clock, wait.Options{
		Interval:  a.opts.ElementPoll,
		Budget:    a.opts.ElementTimeout,
		Immediate: true,
	}, func(ctx context.Context) (bool, error) {
		sel, err := browser.FirstExisting(ctx, a.browser, browser.Selectors(candidates...))
		if err != nil {
			return false, err
		}
		found = sel
		return sel != "", nil
	})
	if errors.Is(err, wait.ErrTimeout) {
		return "", fmt.Errorf("no %s found (tried %d matchers): %w", what, len(candidates), err)
	}
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", what, err)
	}
	a.log.Debug("located element", logger.String("element", what), logger.String("selector", found.String()))
	return found, nil
}

// errObserved carries the text of a terminal error indicator out of the
// polling loop.
type errObserved struct{ text string }

func (e *errObserved) Error() string { return "sign-in error shown: " + e.text }

// awaitChallenge polls until the browser leaves the sign-in surface.
func (a *Authenticator) awaitChallenge(ctx context.Context) (string, error) {
	err := wait.Until(ctx, a.clock, wait.Options{
		Interval: a.opts.ChallengePoll,
		Budget:   a.opts.ChallengeBudget,
	}, func(ctx context.Context) (bool, error) {
		loc, err := a.browser.Location(ctx)
		if err != nil {
			return false, err
		}
		if !a.onSignInSurface(loc) {
			a.log.Info("left sign-in page", logger.String("location", loc))
			return true, nil
		}

		for _, sel := range browser.Selectors(a.opts.Selectors.ErrorIndicator...) {
			visible, text, err := a.browser.Visible(ctx, sel)
			if err != nil {
				return false, err
			}
			if !visible || text == "" {
				continue
			}
			if a.opts.PendingPattern.MatchString(text) {
				a.log.Info("challenge still pending", logger.String("message", text))
				continue
			}
			return false, &errObserved{text: text}
		}
		return false, nil
	})

	var observed *errObserved
	switch {
	case err == nil:
		return "", nil
	case errors.As(err, &observed):
		return observed.text, err
	case errors.Is(err, wait.ErrTimeout):
		return "", fmt.Errorf("still on sign-in page after %s: %w", a.opts.ChallengeBudget, err)
	default:
		return "", err
	}
}

// onSignInSurface reports whether loc is the sign-in page.
func (a *Authenticator) onSignInSurface(loc string) bool {
	signIn, err := url.Parse(a.opts.SignInURL)
	if err != nil {
		return strings.Contains(loc, a.opts.SignInURL)
	}
	cur, err := url.Parse(loc)
	if err != nil {
		return true
	}
	if !strings.EqualFold(cur.Hostname(), signIn.Hostname()) {
		return false
	}
	want := strings.TrimSuffix(signIn.Path, "/")
	got := strings.TrimSuffix(cur.Path, "/")
	return got == want || strings.HasPrefix(got, want+"/")
}
