// Package urlnorm provides deterministic URL canonicalization. The
// normalized form is the identity used for frontier deduplication and
// is documented in the archive manifest so consumers can reproduce it.
package urlnorm

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// ParamPolicy controls how query parameters survive normalization
type ParamPolicy string

const (
	ParamKeep   ParamPolicy = "keep"   // keep non-tracking parameters as-is
	ParamSample ParamPolicy = "sample" // keep one value per key, sorted
	ParamStrip  ParamPolicy = "strip"  // drop the query string entirely
)

// Normalizer canonicalizes URLs according to a fixed rule set
type Normalizer struct {
	stripParams map[string]struct{}
	policy      ParamPolicy
	sortQuery   bool
}

var multiSlash = regexp.MustCompile(`/+`)

// New creates a normalizer. blockList names tracking parameters removed
// from every URL regardless of policy.
func New(blockList []string, policy ParamPolicy, sortQuery bool) *Normalizer {
	params := make(map[string]struct{}, len(blockList))
	for _, p := range blockList {
		params[strings.ToLower(p)] = struct{}{}
	}
	return &Normalizer{
		stripParams: params,
		policy:      policy,
		sortQuery:   sortQuery,
	}
}

// Rules returns the normalization rules in effect, for the manifest
func (n *Normalizer) Rules() models.NormalizationRules {
	params := make([]string, 0, len(n.stripParams))
	for p := range n.stripParams {
		params = append(params, p)
	}
	sort.Strings(params)
	return models.NormalizationRules{
		LowercaseSchemeHost: true,
		PunycodeHost:        true,
		StripDefaultPort:    true,
		StripFragment:       true,
		StripParams:         params,
		SortQuery:           n.sortQuery || n.policy == ParamSample,
		PreservePathCase:    true,
	}
}

// Normalize returns the canonical form of rawURL. The transform is
// idempotent: Normalize(Normalize(u)) == Normalize(u).
func (n *Normalizer) Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("not an absolute URL: %s", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		host = ascii
	}

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""

	// Path case is preserved; only structure is cleaned up. Working on
	// the decoded path lets String() re-escape uniformly.
	path := u.Path
	if path == "" {
		path = "/"
	}
	path = multiSlash.ReplaceAllString(path, "/")
	path = resolveDots(path)
	u.RawPath = ""
	u.Path = path

	u.RawQuery = n.normalizeQuery(u.Query())

	return u.String(), nil
}

// normalizeQuery applies the tracking block list and the param policy
func (n *Normalizer) normalizeQuery(query url.Values) string {
	if n.policy == ParamStrip || len(query) == 0 {
		return ""
	}

	kept := url.Values{}
	for key, values := range query {
		if _, blocked := n.stripParams[strings.ToLower(key)]; blocked {
			continue
		}
		if n.policy == ParamSample {
			// One representative value per key collapses variants
			if len(values) > 0 {
				vs := append([]string(nil), values...)
				sort.Strings(vs)
				kept.Set(key, vs[0])
			}
			continue
		}
		for _, v := range values {
			kept.Add(key, v)
		}
	}

	if n.sortQuery || n.policy == ParamSample {
		return sortedEncode(kept)
	}
	return kept.Encode()
}

// resolveDots removes "." segments and resolves ".." without escaping root
func resolveDots(path string) string {
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case ".":
		case "..":
			if len(result) > 1 {
				result = result[:len(result)-1]
			}
		default:
			result = append(result, part)
		}
	}
	joined := strings.Join(result, "/")
	if joined == "" || !strings.HasPrefix(joined, "/") {
		return "/" + strings.TrimPrefix(joined, "/")
	}
	return joined
}

// sortedEncode encodes query values with sorted keys and sorted values
func sortedEncode(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			if v == "" {
				parts = append(parts, url.QueryEscape(k))
			} else {
				parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
	}
	return strings.Join(parts, "&")
}

// Origin returns the scheme+host+port identity used for rate limiting
// and robots caching
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// IsSameOrigin reports whether two URLs share one origin
func IsSameOrigin(a, b string) bool {
	oa, ob := Origin(a), Origin(b)
	return oa != "" && oa == ob
}

// Resolve resolves a possibly relative reference against a base URL
func Resolve(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("failed to parse reference: %w", err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
