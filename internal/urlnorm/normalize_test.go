package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n := New([]string{"utm_source", "utm_medium", "gclid"}, ParamKeep, true)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercase scheme and host",
			input:    "HTTPS://Example.COM/Path",
			expected: "https://example.com/Path",
		},
		{
			name:     "path case preserved",
			input:    "https://example.com/About/Team",
			expected: "https://example.com/About/Team",
		},
		{
			name:     "default https port elided",
			input:    "https://example.com:443/",
			expected: "https://example.com/",
		},
		{
			name:     "default http port elided",
			input:    "http://example.com:80/x",
			expected: "http://example.com/x",
		},
		{
			name:     "non-default port kept",
			input:    "https://example.com:8443/x",
			expected: "https://example.com:8443/x",
		},
		{
			name:     "fragment removed",
			input:    "https://example.com/page#section-2",
			expected: "https://example.com/page",
		},
		{
			name:     "tracking params stripped",
			input:    "https://example.com/p?utm_source=x&id=7&gclid=abc",
			expected: "https://example.com/p?id=7",
		},
		{
			name:     "query sorted",
			input:    "https://example.com/p?b=2&a=1",
			expected: "https://example.com/p?a=1&b=2",
		},
		{
			name:     "empty path becomes root",
			input:    "https://example.com",
			expected: "https://example.com/",
		},
		{
			name:     "double slashes collapsed",
			input:    "https://example.com//a///b",
			expected: "https://example.com/a/b",
		},
		{
			name:     "dot segments resolved",
			input:    "https://example.com/a/./b/../c",
			expected: "https://example.com/a/c",
		},
		{
			name:     "idn host punycoded",
			input:    "https://bücher.example/",
			expected: "https://xn--bcher-kva.example/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := New([]string{"utm_source", "fbclid"}, ParamKeep, true)

	urls := []string{
		"HTTPS://Example.COM:443//a/../b?utm_source=x&z=1&a=2#frag",
		"http://bücher.example/Path/?b=&a=1",
		"https://example.com/p?a=1&a=0",
		"https://example.com",
	}

	for _, raw := range urls {
		once, err := n.Normalize(raw)
		require.NoError(t, err)
		twice, err := n.Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "normalize must be idempotent for %s", raw)
	}
}

func TestNormalizeParamPolicies(t *testing.T) {
	raw := "https://example.com/p?b=2&a=1&a=0&utm_source=x"

	strip := New(nil, ParamStrip, false)
	got, err := strip.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/p", got)

	sample := New([]string{"utm_source"}, ParamSample, false)
	got, err = sample.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/p?a=0&b=2", got)
}

func TestNormalizeRejectsRelative(t *testing.T) {
	n := New(nil, ParamKeep, false)
	_, err := n.Normalize("/relative/path")
	assert.Error(t, err)
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://example.com", Origin("https://example.com/a/b?c=1"))
	assert.Equal(t, "https://example.com:8443", Origin("https://example.com:8443/"))
	assert.True(t, IsSameOrigin("https://example.com/a", "https://example.com/b"))
	assert.False(t, IsSameOrigin("https://example.com/a", "http://example.com/a"))
}

func TestResolve(t *testing.T) {
	got, err := Resolve("https://example.com/dir/page", "../other")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/other", got)

	got, err = Resolve("https://example.com/dir/", "https://other.test/x")
	require.NoError(t, err)
	assert.Equal(t, "https://other.test/x", got)
}
