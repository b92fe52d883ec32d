package urlutil

import (
	"net/url"
	"strings"
)

// ScopeRule marks a host as same-site. When PathPrefixes is non-empty only
// paths under one of the prefixes are in scope.
type ScopeRule struct {
	Domain       string
	PathPrefixes []string
}

// Scope is the allow-list of same-site rules eligible for recursive mirroring.
type Scope []ScopeRule

// Contains reports whether targetURL falls inside any scope rule. Hosts are
// compared case-insensitively and must match exactly (including any port).
func (s Scope) Contains(targetURL string) bool {
	parsed, err := url.Parse(targetURL)
	if err != nil || !IsHTTPScheme(targetURL) {
		return false
	}

	host := strings.ToLower(parsed.Host)
	for _, rule := range s {
		if host != strings.ToLower(rule.Domain) {
			continue
		}
		if len(rule.PathPrefixes) == 0 {
			return true
		}
		for _, prefix := range rule.PathPrefixes {
			if strings.HasPrefix(parsed.Path, prefix) {
				return true
			}
		}
	}
	return false
}

// IsHTTPScheme returns true if the URL has an http or https scheme.
// Returns false for empty strings, non-HTTP schemes, or unparseable URLs.
func IsHTTPScheme(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

// IsFragmentOnly reports whether ref only names an anchor in the current
// document (e.g. "#section").
func IsFragmentOnly(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), "#")
}

// IsProtocolRelative reports whether ref starts with "//".
func IsProtocolRelative(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), "//")
}
