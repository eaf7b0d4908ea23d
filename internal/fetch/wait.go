package fetch

import (
	"fmt"
	"strings"
	"time"
)

// WaitKind names the rule that ends a render wait
type WaitKind string

const (
	WaitDOMContentLoaded WaitKind = "domcontentloaded"
	WaitNetworkIdle      WaitKind = "networkidle"
	WaitSelector         WaitKind = "selector"
	WaitTimeout          WaitKind = "timeout"
)

// WaitCondition is a parsed render wait condition
type WaitCondition struct {
	Kind     WaitKind
	Selector string        // for selector(...)
	Duration time.Duration // for timeout(...)
}

// ParseWaitCondition parses the condition strings recognized by the
// configuration surface: "domcontentloaded", "networkidle",
// "selector(<css>)", "timeout" or "timeout(<duration>)".
func ParseWaitCondition(s string) (WaitCondition, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == string(WaitDOMContentLoaded):
		return WaitCondition{Kind: WaitDOMContentLoaded}, nil
	case s == string(WaitNetworkIdle):
		return WaitCondition{Kind: WaitNetworkIdle}, nil
	case s == string(WaitTimeout):
		return WaitCondition{Kind: WaitTimeout, Duration: 3 * time.Second}, nil
	case strings.HasPrefix(s, "selector(") && strings.HasSuffix(s, ")"):
		sel := strings.TrimSuffix(strings.TrimPrefix(s, "selector("), ")")
		if sel == "" {
			return WaitCondition{}, fmt.Errorf("empty selector in wait condition %q", s)
		}
		return WaitCondition{Kind: WaitSelector, Selector: sel}, nil
	case strings.HasPrefix(s, "timeout(") && strings.HasSuffix(s, ")"):
		raw := strings.TrimSuffix(strings.TrimPrefix(s, "timeout("), ")")
		d, err := time.ParseDuration(raw)
		if err != nil {
			return WaitCondition{}, fmt.Errorf("invalid duration in wait condition %q: %w", s, err)
		}
		return WaitCondition{Kind: WaitTimeout, Duration: d}, nil
	default:
		return WaitCondition{}, fmt.Errorf("unrecognized wait condition %q", s)
	}
}

// String renders the condition back into its configuration form
func (w WaitCondition) String() string {
	switch w.Kind {
	case WaitSelector:
		return fmt.Sprintf("selector(%s)", w.Selector)
	case WaitTimeout:
		return fmt.Sprintf("timeout(%s)", w.Duration)
	default:
		return string(w.Kind)
	}
}
