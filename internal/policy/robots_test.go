package policy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRobotsCacheAllowDisallow(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("User-agent: *\nDisallow: /secret\nAllow: /\n"))
	}))
	defer server.Close()

	cache := NewRobotsCache(server.Client(), "cartographer-test", time.Hour, RobotsFailAllow, testLogger())
	ctx := context.Background()

	allowed, soft, err := cache.Allowed(ctx, server.URL+"/page")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.False(t, soft)

	allowed, _, err = cache.Allowed(ctx, server.URL+"/secret/x")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Second origin lookup served from cache
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRobotsCacheMissingRobotsAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	cache := NewRobotsCache(server.Client(), "cartographer-test", time.Hour, RobotsFailAllow, testLogger())

	allowed, soft, err := cache.Allowed(context.Background(), server.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.False(t, soft, "a 404 is a definitive answer, not a soft failure")
}

func TestRobotsCacheFailPolicy(t *testing.T) {
	// Unreachable origin: connection refused on a closed port
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	origin := server.URL
	server.Close()

	allow := NewRobotsCache(&http.Client{Timeout: time.Second}, "cartographer-test",
		time.Hour, RobotsFailAllow, testLogger())
	allowed, soft, err := allow.Allowed(context.Background(), origin+"/x")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.True(t, soft)

	deny := NewRobotsCache(&http.Client{Timeout: time.Second}, "cartographer-test",
		time.Hour, RobotsFailDeny, testLogger())
	allowed, soft, err = deny.Allowed(context.Background(), origin+"/x")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.True(t, soft)
}

func TestRobotsCacheAgentGroups(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: cartographer\nDisallow: /\n\nUser-agent: *\nAllow: /\n"))
	}))
	defer server.Close()

	cache := NewRobotsCache(server.Client(), "cartographer", time.Hour, RobotsFailAllow, testLogger())
	allowed, _, err := cache.Allowed(context.Background(), server.URL+"/page")
	require.NoError(t, err)
	assert.False(t, allowed, "agent-specific group applies")
}
