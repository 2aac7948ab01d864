package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pevans/archivist/auth"
	"github.com/pevans/archivist/browser"
	"github.com/pevans/archivist/browser/browsertest"
	"github.com/pevans/archivist/wait/waittest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	entrySel  = browser.Selector("//a[@class='login-option substack-login__login-option']")
	submitSel = browser.Selector("//*[@id='substack-login']/div[2]/div[2]/form/button")
)

// signedInFake returns a fake browser that completes sign-in immediately
// after submit, plus a page hook the test uses for post pages.
func signedInFake(page func(f *browsertest.Fake, url string)) *browsertest.Fake {
	f := browsertest.NewFake()
	f.OnNavigate = func(f *browsertest.Fake, url string) {
		if url == auth.DefaultSignInURL {
			f.Set(map[browser.Selector]browsertest.Element{entrySel: {}})
			return
		}
		page(f, url)
	}
	f.OnClick = func(f *browsertest.Fake, sel browser.Selector) {
		if sel == submitSel {
			f.URL = "https://substack.com/home"
			return
		}
		f.Set(map[browser.Selector]browsertest.Element{
			"input[name='email']":    {},
			"input[name='password']": {},
			submitSel:                {},
		})
	}
	return f
}

func testOptions(clock *waittest.FakeClock) AuthenticatedOptions {
	opts := DefaultAuthenticatedOptions()
	opts.Credentials = auth.Credentials{Email: "reader@example.com", Password: "secret"}
	opts.Clock = clock
	return opts
}

func readyPage(doc string) func(f *browsertest.Fake, url string) {
	return func(f *browsertest.Fake, url string) {
		f.Doc = doc
		f.Set(map[browser.Selector]browsertest.Element{"div.available-content": {}})
	}
}

// TestNewAuthenticated_LogsInOnce verifies sign-in happens at construction only
func TestNewAuthenticated_LogsInOnce(t *testing.T) {
	f := signedInFake(readyPage(postHTML))
	clock := waittest.NewFakeClock(time.Unix(0, 0))

	fetcher, err := NewAuthenticated(context.Background(), f, testOptions(clock), nil)
	require.NoError(t, err)

	fetcher.Fetch(context.Background(), "https://example.substack.com/p/one")
	fetcher.Fetch(context.Background(), "https://example.substack.com/p/two")

	signIns := 0
	for _, nav := range f.Navigations {
		if nav == auth.DefaultSignInURL {
			signIns++
		}
	}
	assert.Equal(t, 1, signIns)
}

// TestNewAuthenticated_Failure verifies a failed sign-in yields no fetcher
func TestNewAuthenticated_Failure(t *testing.T) {
	f := browsertest.NewFake()
	clock := waittest.NewFakeClock(time.Unix(0, 0))

	fetcher, err := NewAuthenticated(context.Background(), f, testOptions(clock), nil)

	assert.Nil(t, fetcher)
	assert.ErrorIs(t, err, auth.ErrAuthentication)
	assert.True(t, f.Closed, "browser released on failure")
}

// TestAuthenticatedFetch_Ready verifies a ready page is returned
func TestAuthenticatedFetch_Ready(t *testing.T) {
	f := signedInFake(readyPage(postHTML))
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	fetcher, err := NewAuthenticated(context.Background(), f, testOptions(clock), nil)
	require.NoError(t, err)

	before := clock.Elapsed()
	res := fetcher.Fetch(context.Background(), "https://example.substack.com/p/one")

	require.NoError(t, res.Err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, postHTML, res.HTML)
	assert.Equal(t, before, clock.Elapsed(), "ready on first check, no waiting")
}

// TestAuthenticatedFetch_Timeout verifies a page that never becomes ready is transient
func TestAuthenticatedFetch_Timeout(t *testing.T) {
	f := signedInFake(func(f *browsertest.Fake, url string) {
		f.Set(map[browser.Selector]browsertest.Element{})
	})
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	fetcher, err := NewAuthenticated(context.Background(), f, testOptions(clock), nil)
	require.NoError(t, err)

	before := clock.Elapsed()
	res := fetcher.Fetch(context.Background(), "https://example.substack.com/p/slow")

	assert.Equal(t, StatusTimeout, res.Status)
	assert.False(t, res.Escalate())
	assert.Equal(t, 5*time.Second, clock.Elapsed()-before)
}

// TestAuthenticatedFetch_NavigationError verifies navigation failures escalate
func TestAuthenticatedFetch_NavigationError(t *testing.T) {
	f := signedInFake(readyPage(postHTML))
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	fetcher, err := NewAuthenticated(context.Background(), f, testOptions(clock), nil)
	require.NoError(t, err)

	f.NavigateErr = errors.New("target closed")
	res := fetcher.Fetch(context.Background(), "https://example.substack.com/p/one")

	assert.Equal(t, StatusHardError, res.Status)
	assert.True(t, res.Escalate())
}

// TestAuthenticatedFetch_PageLoadDeadline verifies a slow page is skipped
// without stopping the batch
func TestAuthenticatedFetch_PageLoadDeadline(t *testing.T) {
	f := signedInFake(readyPage(postHTML))
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	fetcher, err := NewAuthenticated(context.Background(), f, testOptions(clock), nil)
	require.NoError(t, err)

	url := "https://example.substack.com/p/heavy"
	f.NavigateErr = fmt.Errorf("navigate %s: %w", url, context.DeadlineExceeded)
	res := fetcher.Fetch(context.Background(), url)

	assert.Equal(t, StatusTimeout, res.Status)
	assert.False(t, res.Escalate())
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

// TestAuthenticatedFetch_NavigationCancelled verifies a cancelled run does not
// escalate as a session failure
func TestAuthenticatedFetch_NavigationCancelled(t *testing.T) {
	f := signedInFake(readyPage(postHTML))
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	fetcher, err := NewAuthenticated(context.Background(), f, testOptions(clock), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.NavigateErr = fmt.Errorf("navigate: %w", context.Canceled)
	res := fetcher.Fetch(ctx, "https://example.substack.com/p/one")

	assert.Equal(t, StatusTimeout, res.Status)
	assert.False(t, res.Escalate())
	assert.ErrorIs(t, res.Err, context.Canceled)
}

// TestAuthenticatedFetch_Paywalled verifies paywall markers are reported
func TestAuthenticatedFetch_Paywalled(t *testing.T) {
	f := signedInFake(func(f *browsertest.Fake, url string) {
		f.Doc = paywalledHTML
		f.Set(map[browser.Selector]browsertest.Element{"h2.paywall-title": {}})
	})
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	fetcher, err := NewAuthenticated(context.Background(), f, testOptions(clock), nil)
	require.NoError(t, err)

	res := fetcher.Fetch(context.Background(), "https://example.substack.com/p/premium")

	assert.Equal(t, StatusPaywalled, res.Status)
	assert.Empty(t, res.HTML)
}

// TestAuthenticatedFetch_Settles verifies loading indicators add one settle wait
func TestAuthenticatedFetch_Settles(t *testing.T) {
	f := signedInFake(func(f *browsertest.Fake, url string) {
		f.Doc = postHTML
		f.Set(map[browser.Selector]browsertest.Element{
			"h1.post-title": {},
			".spinner":      {},
		})
	})
	clock := waittest.NewFakeClock(time.Unix(0, 0))
	fetcher, err := NewAuthenticated(context.Background(), f, testOptions(clock), nil)
	require.NoError(t, err)

	before := clock.Elapsed()
	res := fetcher.Fetch(context.Background(), "https://example.substack.com/p/one")

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, time.Second, clock.Elapsed()-before)
}

// TestAuthenticatedFetch_AfterClose verifies a closed session cannot fetch
func TestAuthenticatedFetch_AfterClose(t *testing.T) {
	f := signedInFake(readyPage(postHTML))
	fetcher, err := NewAuthenticated(context.Background(), f, testOptions(waittest.NewFakeClock(time.Unix(0, 0))), nil)
	require.NoError(t, err)

	require.NoError(t, fetcher.Close())
	res := fetcher.Fetch(context.Background(), "https://example.substack.com/p/one")

	assert.Equal(t, StatusHardError, res.Status)
	assert.ErrorIs(t, res.Err, ErrNotAuthenticated)
	assert.True(t, f.Closed)
}
