package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func newRequest(url string) *interfaces.RenderRequest {
	return &interfaces.RenderRequest{
		Task:      models.URLTask{URL: url},
		Mode:      interfaces.ModeRaw,
		Timeout:   5 * time.Second,
		UserAgent: "cartographer-test/1.0",
		Privacy:   models.PrivacyPolicy{StripCookies: true, StripAuthHeaders: true},
	}
}

func TestHTTPFetcherBasicFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cartographer-test/1.0", r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(nil, testLogger())
	defer f.Close()

	result, err := f.Render(context.Background(), newRequest(server.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, "utf-8", result.Encoding)
	assert.Contains(t, string(result.Body), "hello")
	assert.Equal(t, interfaces.EndFetch, result.EndReason)
	assert.False(t, result.Partial)
}

func TestHTTPFetcherFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("destination"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := NewHTTPFetcher(nil, testLogger())
	defer f.Close()

	result, err := f.Render(context.Background(), newRequest(server.URL))
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/final", result.FinalURL)
	assert.Equal(t, http.StatusOK, result.Status)
}

func TestHTTPFetcherRetriesRetryableStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(nil, testLogger())
	defer f.Close()
	f.retry.InitialBackoff = 10 * time.Millisecond

	result, err := f.Render(context.Background(), newRequest(server.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestHTTPFetcherDoesNotRetryClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewHTTPFetcher(nil, testLogger())
	defer f.Close()

	result, err := f.Render(context.Background(), newRequest(server.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, result.Status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestHTTPFetcherByteBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer server.Close()

	f := NewHTTPFetcher(nil, testLogger())
	defer f.Close()

	req := newRequest(server.URL)
	req.MaxBytes = 1024
	result, err := f.Render(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, result.Body, 1024)
}

func TestHTTPFetcherStripsCookieHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "session=secret")
		w.Header().Set("WWW-Authenticate", "Basic realm=x")
		w.Header().Set("X-Custom", "kept")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(nil, testLogger())
	defer f.Close()

	result, err := f.Render(context.Background(), newRequest(server.URL))
	require.NoError(t, err)
	assert.Empty(t, result.Headers.Get("Set-Cookie"))
	assert.Empty(t, result.Headers.Get("WWW-Authenticate"))
	assert.Equal(t, "kept", result.Headers.Get("X-Custom"))
}

func TestHTTPFetcherContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	f := NewHTTPFetcher(nil, testLogger())
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := f.Render(ctx, newRequest(server.URL))
	assert.Error(t, err)
}

func TestRetryPolicyBackoffBounds(t *testing.T) {
	p := NewRetryPolicy()
	for attempt := 0; attempt < 10; attempt++ {
		b := p.CalculateBackoff(attempt)
		assert.Greater(t, b, time.Duration(0))
		assert.LessOrEqual(t, b, time.Duration(float64(p.MaxBackoff)*1.25))
	}
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	p := NewRetryPolicy()
	assert.True(t, p.ShouldRetry(0, 503, nil))
	assert.True(t, p.ShouldRetry(0, 429, nil))
	assert.False(t, p.ShouldRetry(0, 404, nil))
	assert.False(t, p.ShouldRetry(p.MaxAttempts-1, 503, nil))
	assert.False(t, p.ShouldRetry(0, 0, context.Canceled))
	assert.True(t, p.ShouldRetry(0, 0, context.DeadlineExceeded))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, models.ErrFetchTimeout, ClassifyError(context.DeadlineExceeded, models.PhaseFetch))
	assert.Equal(t, models.ErrRenderTimeout, ClassifyError(context.DeadlineExceeded, models.PhaseRender))
	assert.Equal(t, models.ErrFetchNetwork, ClassifyError(assert.AnError, models.PhaseFetch))
	assert.Equal(t, models.ErrRenderCrash, ClassifyError(assert.AnError, models.PhaseRender))
	assert.Equal(t, models.ErrWriteIO, ClassifyError(assert.AnError, models.PhaseWrite))
}
