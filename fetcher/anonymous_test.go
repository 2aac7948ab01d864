package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postHTML = `<html><body>
<h1 class="post-title">An Essay</h1>
<div class="available-content"><p>Body</p></div>
</body></html>`

const paywalledHTML = `<html><body>
<h1 class="post-title">Premium Essay</h1>
<h2 class="paywall-title">This post is for paid subscribers</h2>
</body></html>`

// TestAnonymousFetch_OK verifies a plain page is returned with its HTML
func TestAnonymousFetch_OK(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(postHTML))
	}))
	defer server.Close()

	f := NewAnonymous(AnonymousOptions{UserAgent: "custom-agent"}, nil)
	res := f.Fetch(context.Background(), server.URL+"/p/an-essay")

	require.NoError(t, res.Err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, postHTML, res.HTML)
	assert.Equal(t, "custom-agent", gotUA)
	assert.False(t, res.Escalate())
}

// TestAnonymousFetch_Paywalled verifies paywall markers short-circuit the body
func TestAnonymousFetch_Paywalled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(paywalledHTML))
	}))
	defer server.Close()

	res := NewAnonymous(AnonymousOptions{}, nil).Fetch(context.Background(), server.URL)

	assert.Equal(t, StatusPaywalled, res.Status)
	assert.Empty(t, res.HTML, "no body content for paywalled posts")
	assert.NoError(t, res.Err)
}

// TestAnonymousFetch_HTTPError verifies non-200 responses fail the post only
func TestAnonymousFetch_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	res := NewAnonymous(AnonymousOptions{}, nil).Fetch(context.Background(), server.URL)

	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.Escalate())
	var httpErr *HTTPError
	require.ErrorAs(t, res.Err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

// TestAnonymousFetch_Timeout verifies slow responses are transient timeouts
func TestAnonymousFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := NewAnonymous(AnonymousOptions{Timeout: 50 * time.Millisecond}, nil)
	res := f.Fetch(context.Background(), server.URL)

	assert.Equal(t, StatusTimeout, res.Status)
	assert.Error(t, res.Err)
}

// TestAnonymousFetch_BadURL verifies malformed URLs fail the post
func TestAnonymousFetch_BadURL(t *testing.T) {
	res := NewAnonymous(AnonymousOptions{}, nil).Fetch(context.Background(), "://missing-scheme")

	assert.Equal(t, StatusFailed, res.Status)
	assert.Error(t, res.Err)
}

// TestStatusString verifies status names
func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "paywalled", StatusPaywalled.String())
	assert.Equal(t, "timeout", StatusTimeout.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "hard_error", StatusHardError.String())
}
