// Package policy decides whether a candidate URL may be fetched. The
// gate consults, in order: scheme whitelist, private-IP/loopback check,
// host allow/deny patterns, robots.txt, crawl budgets, and an IDN
// mixed-script heuristic that warns without denying.
package policy

import (
	"context"
	"net"
	"net/url"
	"strings"
	"unicode"

	"github.com/gobwas/glob"
	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// Deny reasons reported by the gate
const (
	DenyScheme      = "scheme_not_allowed"
	DenyPrivateIP   = "private_address"
	DenyPattern     = "deny_pattern"
	DenyNotAllowed  = "not_in_allow_list"
	DenyRobots      = "robots_disallow"
	DenyDepthBudget = "depth_budget"
	DenyPageBudget  = "page_budget"
	DenyByteBudget  = "byte_budget"
	DenyInvalidURL  = "invalid_url"
)

// Budget is the gate's view of the crawl's running consumption
type Budget struct {
	PagesCompleted int64
	BytesFetched   int64
}

// Result is the gate's verdict for one URL
type Result struct {
	Allow    bool
	Reason   string                // deny reason, empty when allowed
	Robots   models.RobotsDecision // how robots ruled, when consulted
	SoftFail bool                  // robots answer came from the fail policy
	Warnings []string              // non-fatal notes (homograph, robots soft-fail)
}

// GateConfig configures the policy gate
type GateConfig struct {
	AllowPatterns  []string // host/path globs; empty list allows all
	DenyPatterns   []string
	AllowPrivate   bool // permit loopback/private addresses (test fixtures)
	RobotsRespect  bool
	RobotsOverride bool  // return allow for disallows but record the override
	MaxPages       int   // 0 = unlimited
	MaxTotalBytes  int64 // 0 = unlimited
	FollowExternal bool
}

// Gate applies crawl policy ahead of the rate limiter
type Gate struct {
	config      GateConfig
	allowGlobs  []glob.Glob
	denyGlobs   []glob.Glob
	seedOrigins map[string]struct{}
	robots      *RobotsCache
	logger      arbor.ILogger
}

// NewGate compiles the configured patterns and returns a gate.
// seedOrigins bounds discovery when followExternal is false.
func NewGate(config GateConfig, robots *RobotsCache, seedOrigins []string, logger arbor.ILogger) *Gate {
	g := &Gate{
		config:      config,
		robots:      robots,
		seedOrigins: make(map[string]struct{}, len(seedOrigins)),
		logger:      logger,
	}
	for _, o := range seedOrigins {
		g.seedOrigins[o] = struct{}{}
	}
	g.allowGlobs = compileGlobs(config.AllowPatterns, logger)
	g.denyGlobs = compileGlobs(config.DenyPatterns, logger)
	return g
}

func compileGlobs(patterns []string, logger arbor.ILogger) []glob.Glob {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("pattern", pattern).
				Msg("Failed to compile URL pattern")
			continue
		}
		globs = append(globs, compiled)
	}
	return globs
}

// Evaluate decides whether task's URL may be fetched. Policy denials
// are not errors; they produce no page record.
func (g *Gate) Evaluate(ctx context.Context, task *models.URLTask, budget Budget) Result {
	u, err := url.Parse(task.NormalizedURL)
	if err != nil || u.Host == "" {
		return Result{Reason: DenyInvalidURL}
	}

	// (a) scheme whitelist
	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{Reason: DenyScheme}
	}

	// (b) private/loopback addresses
	if !g.config.AllowPrivate && isPrivateHost(u.Hostname()) {
		return Result{Reason: DenyPrivateIP}
	}

	// cross-origin expansion
	if !g.config.FollowExternal && task.Source != models.SourceSeed {
		origin := strings.ToLower(u.Scheme + "://" + u.Host)
		if _, ok := g.seedOrigins[origin]; !ok {
			return Result{Reason: DenyNotAllowed}
		}
	}

	// (c) host/path pattern lists, deny first
	target := u.Host + u.Path
	for _, d := range g.denyGlobs {
		if d.Match(target) || d.Match(task.NormalizedURL) {
			return Result{Reason: DenyPattern}
		}
	}
	if len(g.allowGlobs) > 0 {
		matched := false
		for _, a := range g.allowGlobs {
			if a.Match(target) || a.Match(task.NormalizedURL) {
				matched = true
				break
			}
		}
		if !matched {
			return Result{Reason: DenyNotAllowed}
		}
	}

	result := Result{Allow: true, Robots: models.RobotsAllow}

	// (d) robots.txt
	if g.config.RobotsRespect && g.robots != nil {
		allowed, softFail, err := g.robots.Allowed(ctx, task.NormalizedURL)
		if err != nil {
			g.logger.Warn().Err(err).Str("url", task.NormalizedURL).Msg("robots evaluation failed")
			allowed, softFail = true, true
		}
		result.SoftFail = softFail
		if softFail {
			result.Warnings = append(result.Warnings, "robots_soft_fail")
		}
		if !allowed {
			if g.config.RobotsOverride {
				// Allowed through, but the override is recorded on the
				// page record and in the manifest notes.
				result.Robots = models.RobotsOverride
			} else {
				return Result{Reason: DenyRobots, Robots: models.RobotsDisallow, SoftFail: softFail}
			}
		}
	}

	// (e) budgets; depth is enforced by the frontier at admission
	if g.config.MaxPages > 0 && budget.PagesCompleted >= int64(g.config.MaxPages) {
		return Result{Reason: DenyPageBudget, Robots: result.Robots}
	}
	if g.config.MaxTotalBytes > 0 && budget.BytesFetched >= g.config.MaxTotalBytes {
		return Result{Reason: DenyByteBudget, Robots: result.Robots}
	}

	// (f) homograph heuristic: warn, never deny
	if mixedScriptHost(u.Hostname()) {
		result.Warnings = append(result.Warnings, "mixed_script_host")
	}

	return result
}

// isPrivateHost reports whether host is loopback, private, link-local,
// or a conventional local name
func isPrivateHost(host string) bool {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".local") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

// mixedScriptHost flags hosts mixing Latin with Cyrillic or Greek
// letters, the common homograph pattern
func mixedScriptHost(host string) bool {
	var latin, cyrillic, greek bool
	for _, r := range host {
		switch {
		case unicode.Is(unicode.Latin, r):
			latin = true
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic = true
		case unicode.Is(unicode.Greek, r):
			greek = true
		}
	}
	return (latin && cyrillic) || (latin && greek) || (cyrillic && greek)
}
