package policy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/urlnorm"
)

// RobotsFailPolicy decides the answer when robots.txt cannot be fetched
type RobotsFailPolicy string

const (
	RobotsFailAllow RobotsFailPolicy = "allow"
	RobotsFailDeny  RobotsFailPolicy = "deny"
)

const (
	robotsMaxBody     = 512 * 1024
	robotsMaxAttempts = 3
	robotsSoftFailTTL = 5 * time.Minute
)

// RobotsCache fetches and caches robots.txt per origin with its own TTL
// and fetch-error policy
type RobotsCache struct {
	client     *http.Client
	userAgent  string
	ttl        time.Duration
	failPolicy RobotsFailPolicy
	logger     arbor.ILogger

	mu      sync.Mutex
	entries map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
	ttl       time.Duration
	softFail  bool
}

// NewRobotsCache creates a per-origin robots.txt cache
func NewRobotsCache(client *http.Client, userAgent string, ttl time.Duration, failPolicy RobotsFailPolicy, logger arbor.ILogger) *RobotsCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsCache{
		client:     client,
		userAgent:  userAgent,
		ttl:        ttl,
		failPolicy: failPolicy,
		logger:     logger,
		entries:    make(map[string]*robotsEntry),
	}
}

// Allowed reports whether the user agent may fetch rawURL according to
// the origin's robots rules. softFail is true when robots.txt could not
// be fetched and the fail policy answered instead.
func (c *RobotsCache) Allowed(ctx context.Context, rawURL string) (allowed bool, softFail bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, false, fmt.Errorf("failed to parse URL: %w", err)
	}
	origin := urlnorm.Origin(rawURL)
	if origin == "" {
		return false, false, fmt.Errorf("no origin for URL: %s", rawURL)
	}

	entry := c.entry(ctx, origin)
	if entry.softFail {
		return c.failPolicy == RobotsFailAllow, true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return entry.data.TestAgent(path, c.userAgent), false, nil
}

func (c *RobotsCache) entry(ctx context.Context, origin string) *robotsEntry {
	c.mu.Lock()
	cached, ok := c.entries[origin]
	c.mu.Unlock()
	if ok && time.Since(cached.fetchedAt) < cached.ttl {
		return cached
	}

	entry := c.fetch(ctx, origin)

	c.mu.Lock()
	c.entries[origin] = entry
	c.mu.Unlock()
	return entry
}

// fetch retrieves robots.txt with bounded exponential backoff. IO
// failures are cached as a soft failure for a short TTL.
func (c *RobotsCache) fetch(ctx context.Context, origin string) *robotsEntry {
	robotsURL := origin + "/robots.txt"

	var lastErr error
	for attempt := 0; attempt < robotsMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = robotsMaxAttempts
				continue
			case <-time.After(backoff):
			}
		}

		data, err := c.fetchOnce(ctx, robotsURL)
		if err != nil {
			lastErr = err
			c.logger.Debug().
				Err(err).
				Str("origin", origin).
				Int("attempt", attempt+1).
				Msg("robots.txt fetch failed")
			continue
		}

		return &robotsEntry{
			data:      data,
			fetchedAt: time.Now(),
			ttl:       c.ttl,
		}
	}

	c.logger.Warn().
		Err(lastErr).
		Str("origin", origin).
		Str("fail_policy", string(c.failPolicy)).
		Msg("robots.txt unreachable, applying fail policy")

	return &robotsEntry{
		fetchedAt: time.Now(),
		ttl:       robotsSoftFailTTL,
		softFail:  true,
	}
}

func (c *RobotsCache) fetchOnce(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build robots request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("robots request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read robots body: %w", err)
	}

	// FromStatusAndBytes applies the conventional status semantics:
	// 4xx allows everything, 5xx disallows everything.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
	}
	return data, nil
}
