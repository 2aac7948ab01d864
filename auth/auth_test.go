package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pevans/archivist/browser"
	"github.com/pevans/archivist/browser/browsertest"
	"github.com/pevans/archivist/wait"
	"github.com/pevans/archivist/wait/waittest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	entrySel    = browser.Selector("//a[@class='login-option substack-login__login-option']")
	emailSel    = browser.Selector("input[name='email']")
	passwordSel = browser.Selector("input[name='password']")
	submitSel   = browser.Selector("//*[@id='substack-login']/div[2]/div[2]/form/button")
	errorSel    = browser.Selector("#error-container")
)

var testCreds = Credentials{Email: "reader@example.com", Password: "hunter2"}

// signInFake builds a fake browser that walks through the sign-in pages.
// After submit the location stays on the sign-in page until a test moves it.
func signInFake() *browsertest.Fake {
	f := browsertest.NewFake()
	f.OnNavigate = func(f *browsertest.Fake, url string) {
		f.Set(map[browser.Selector]browsertest.Element{entrySel: {}})
	}
	f.OnClick = func(f *browsertest.Fake, sel browser.Selector) {
		if sel != submitSel {
			f.Set(map[browser.Selector]browsertest.Element{
				emailSel:    {},
				passwordSel: {},
				submitSel:   {},
			})
		}
	}
	return f
}

func newTestAuthenticator(f *browsertest.Fake, clock wait.Clock) *Authenticator {
	return New(f, testCreds, DefaultOptions(), clock, nil)
}

// TestLogin_Success verifies leaving the sign-in page authenticates
func TestLogin_Success(t *testing.T) {
	f := signInFake()
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	f.OnClick = chainClick(f.OnClick, func(f *browsertest.Fake, sel browser.Selector) {
		if sel == submitSel {
			f.URL = "https://substack.com/home"
		}
	})

	a := newTestAuthenticator(f, clock)
	err := a.Login(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Authenticated, a.State())
	assert.Equal(t, []string{DefaultSignInURL}, f.Navigations)
	assert.Equal(t, testCreds.Email, f.Filled[emailSel])
	assert.Equal(t, testCreds.Password, f.Filled[passwordSel])
	assert.Equal(t, []browser.Selector{entrySel, submitSel}, f.Clicks)
	assert.Equal(t, 10*time.Second, clock.Elapsed(), "one challenge poll interval")
}

// TestLogin_ChallengeSolvedLater verifies polling continues until the page changes
func TestLogin_ChallengeSolvedLater(t *testing.T) {
	f := signInFake()
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	polls := 0
	f.OnLocation = func(f *browsertest.Fake) {
		polls++
		if polls == 4 {
			f.URL = "https://reader.substack.com/"
		}
	}

	a := newTestAuthenticator(f, clock)
	require.NoError(t, a.Login(context.Background()))

	assert.Equal(t, Authenticated, a.State())
	assert.Equal(t, 40*time.Second, clock.Elapsed())
}

// TestLogin_BudgetExhausted verifies the wait is bounded by the budget
func TestLogin_BudgetExhausted(t *testing.T) {
	f := signInFake()
	clock := waittest.NewFakeClock(time.Unix(0, 0))

	a := newTestAuthenticator(f, clock)
	err := a.Login(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, wait.ErrTimeout)

	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AwaitingChallenge, authErr.State)
	assert.Equal(t, Failed, a.State())
	assert.Equal(t, 120*time.Second, clock.Elapsed(), "challenge budget in virtual time")
}

// TestLogin_PendingChallengeThenError verifies challenge messages keep waiting
// while other error text fails immediately
func TestLogin_PendingChallengeThenError(t *testing.T) {
	f := signInFake()
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	polls := 0
	f.OnLocation = func(f *browsertest.Fake) {
		polls++
		switch polls {
		case 1:
			f.Elements[errorSel] = browsertest.Element{Text: "Please complete the captcha"}
		case 3:
			f.Elements[errorSel] = browsertest.Element{Text: "Invalid email or password"}
		}
	}

	a := newTestAuthenticator(f, clock)
	err := a.Login(context.Background())

	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Invalid email or password", authErr.Observed)
	assert.Equal(t, 3, polls)
	assert.Equal(t, 30*time.Second, clock.Elapsed())
}

// TestLogin_HiddenErrorIgnored verifies hidden error containers are not failures
func TestLogin_HiddenErrorIgnored(t *testing.T) {
	f := signInFake()
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	polls := 0
	f.OnLocation = func(f *browsertest.Fake) {
		polls++
		f.Elements[errorSel] = browsertest.Element{Hidden: true, Text: "Invalid password"}
		if polls == 2 {
			f.URL = "https://substack.com/home"
		}
	}

	a := newTestAuthenticator(f, clock)
	require.NoError(t, a.Login(context.Background()))
}

// TestLogin_FallbackEntryMatcher verifies later matchers are tried in order
func TestLogin_FallbackEntryMatcher(t *testing.T) {
	fallback := browser.Selector("//a[contains(text(), 'password')]")
	f := signInFake()
	f.OnNavigate = func(f *browsertest.Fake, url string) {
		f.Set(map[browser.Selector]browsertest.Element{fallback: {}})
	}
	f.OnClick = chainClick(f.OnClick, func(f *browsertest.Fake, sel browser.Selector) {
		if sel == submitSel {
			f.URL = "https://substack.com/home"
		}
	})

	a := newTestAuthenticator(f, waittest.NewFakeClock(time.Unix(0, 0)))
	require.NoError(t, a.Login(context.Background()))
	assert.Equal(t, fallback, f.Clicks[0])
}

// TestLogin_StructureChanged verifies a missing entry point fails after the
// element timeout instead of hanging
func TestLogin_StructureChanged(t *testing.T) {
	f := browsertest.NewFake()
	clock := waittest.NewFakeClock(time.Unix(0, 0))

	a := newTestAuthenticator(f, clock)
	err := a.Login(context.Background())

	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, Unauthenticated, authErr.State)
	assert.Contains(t, err.Error(), "password entry point")
	assert.Equal(t, 15*time.Second, clock.Elapsed())
	assert.Equal(t, Failed, a.State())
}

// TestLogin_NavigationError verifies navigation failures fail sign-in
func TestLogin_NavigationError(t *testing.T) {
	f := browsertest.NewFake()
	f.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	a := newTestAuthenticator(f, waittest.NewFakeClock(time.Unix(0, 0)))
	err := a.Login(context.Background())

	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
}

// TestLogin_MissingCredentials verifies empty credentials fail without navigating
func TestLogin_MissingCredentials(t *testing.T) {
	f := signInFake()

	a := New(f, Credentials{Email: "reader@example.com"}, DefaultOptions(), waittest.NewFakeClock(time.Unix(0, 0)), nil)
	err := a.Login(context.Background())

	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Empty(t, f.Navigations)
}

// TestLogin_OnlyOnce verifies a second Login is rejected
func TestLogin_OnlyOnce(t *testing.T) {
	f := signInFake()
	f.OnClick = chainClick(f.OnClick, func(f *browsertest.Fake, sel browser.Selector) {
		if sel == submitSel {
			f.URL = "https://substack.com/home"
		}
	})

	a := newTestAuthenticator(f, waittest.NewFakeClock(time.Unix(0, 0)))
	require.NoError(t, a.Login(context.Background()))

	err := a.Login(context.Background())
	assert.Error(t, err)
	assert.Len(t, f.Navigations, 1)
}

// TestError_ListsCauses verifies the failure message enumerates causes
func TestError_ListsCauses(t *testing.T) {
	err := &Error{State: AwaitingChallenge, Observed: "Too many attempts"}
	msg := err.Error()

	assert.Contains(t, msg, "awaiting_challenge")
	assert.Contains(t, msg, "Too many attempts")
	assert.Contains(t, msg, "challenge was not solved")
	assert.Contains(t, msg, "invalid credentials")
	assert.Contains(t, msg, "locked or restricted")
	assert.Contains(t, msg, "structure changed")
}

// TestOnSignInSurface verifies location matching against the sign-in page
func TestOnSignInSurface(t *testing.T) {
	a := newTestAuthenticator(browsertest.NewFake(), nil)

	assert.True(t, a.onSignInSurface("https://substack.com/sign-in"))
	assert.True(t, a.onSignInSurface("https://substack.com/sign-in?redirect=%2F"))
	assert.True(t, a.onSignInSurface("https://substack.com/sign-in/"))
	assert.True(t, a.onSignInSurface("https://substack.com/sign-in/password"))
	assert.False(t, a.onSignInSurface("https://substack.com/sign-in-help"))
	assert.False(t, a.onSignInSurface("https://substack.com/home"))
	assert.False(t, a.onSignInSurface("https://example.substack.com/"))
}

func chainClick(first, second func(*browsertest.Fake, browser.Selector)) func(*browsertest.Fake, browser.Selector) {
	return func(f *browsertest.Fake, sel browser.Selector) {
		if first != nil {
			first(f, sel)
		}
		second(f, sel)
	}
}
