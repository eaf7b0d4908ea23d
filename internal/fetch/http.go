// Package fetch implements the Renderer contract: a raw HTTP fetcher
// and a chromedp-backed browser renderer for the prerender and full
// modes.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// HTTPFetcher retrieves pages over plain HTTP (render mode "raw")
type HTTPFetcher struct {
	client *http.Client
	retry  *RetryPolicy
	logger arbor.ILogger
}

// NewHTTPFetcher creates a raw-mode fetcher. A nil client gets a
// default with sane timeouts and no cookie jar.
func NewHTTPFetcher(client *http.Client, logger arbor.ILogger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}
	return &HTTPFetcher{
		client: client,
		retry:  NewRetryPolicy(),
		logger: logger,
	}
}

// Render fetches the URL without browser rendering. Transient network
// errors are retried in place with exponential backoff; only the final
// failure surfaces.
func (f *HTTPFetcher) Render(ctx context.Context, req *interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	var lastErr error
	for attempt := 0; attempt < f.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := f.retry.CalculateBackoff(attempt - 1)
			f.logger.Debug().
				Str("url", req.Task.URL).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Retrying fetch after backoff")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := f.fetchOnce(ctx, req)
		if err == nil {
			if result.Status > 0 && f.retry.ShouldRetry(attempt, result.Status, nil) {
				lastErr = fmt.Errorf("retryable status %d", result.Status)
				continue
			}
			return result, nil
		}
		lastErr = err
		if !f.retry.ShouldRetry(attempt, 0, err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, req *interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	fetchCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, req.Task.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", req.UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	// Privacy defaults: never send credentials the process may have
	// inherited. The client has no cookie jar; auth headers are simply
	// never set when stripping is on.
	if !req.Privacy.StripCookies && req.SessionKey != "" {
		httpReq.Header.Set("X-Session-Key", req.SessionKey)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := req.MaxBytes
	if limit <= 0 {
		limit = 50 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	encoding := ""
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil {
			encoding = params["charset"]
		}
	}

	finalURL := req.Task.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	elapsed := time.Since(start)
	return &interfaces.RenderResult{
		FinalURL: finalURL,
		Status:   resp.StatusCode,
		Headers:  sanitizeHeaders(resp.Header, req.Privacy),
		Body:     body,
		Encoding: encoding,
		Timing: models.NavTiming{
			NavStart:     start,
			LoadEventEnd: elapsed.Milliseconds(),
		},
		EndReason: interfaces.EndFetch,
	}, nil
}

// Close releases fetcher resources
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// sanitizeHeaders drops cookie and auth material from captured headers
// per the privacy policy
func sanitizeHeaders(h http.Header, privacy models.PrivacyPolicy) http.Header {
	out := make(http.Header, len(h))
	for key, values := range h {
		lower := strings.ToLower(key)
		if privacy.StripCookies && (lower == "set-cookie" || lower == "cookie") {
			continue
		}
		if privacy.StripAuthHeaders && (lower == "authorization" || lower == "proxy-authorization" || lower == "www-authenticate") {
			continue
		}
		out[key] = append([]string(nil), values...)
	}
	return out
}
