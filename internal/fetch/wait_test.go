package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWaitCondition(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  WaitCondition
	}{
		{"empty defaults to domcontentloaded", "", WaitCondition{Kind: WaitDOMContentLoaded}},
		{"domcontentloaded", "domcontentloaded", WaitCondition{Kind: WaitDOMContentLoaded}},
		{"networkidle", "networkidle", WaitCondition{Kind: WaitNetworkIdle}},
		{"bare timeout", "timeout", WaitCondition{Kind: WaitTimeout, Duration: 3 * time.Second}},
		{"timeout with duration", "timeout(5s)", WaitCondition{Kind: WaitTimeout, Duration: 5 * time.Second}},
		{"selector", "selector(#app .ready)", WaitCondition{Kind: WaitSelector, Selector: "#app .ready"}},
		{"whitespace trimmed", "  networkidle  ", WaitCondition{Kind: WaitNetworkIdle}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWaitCondition(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWaitConditionErrors(t *testing.T) {
	for _, input := range []string{"selector()", "timeout(banana)", "loadeventend", "selector(#x"} {
		_, err := ParseWaitCondition(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestWaitConditionString(t *testing.T) {
	assert.Equal(t, "domcontentloaded", WaitCondition{Kind: WaitDOMContentLoaded}.String())
	assert.Equal(t, "selector(#main)", WaitCondition{Kind: WaitSelector, Selector: "#main"}.String())
	assert.Equal(t, "timeout(2s)", WaitCondition{Kind: WaitTimeout, Duration: 2 * time.Second}.String())
}
