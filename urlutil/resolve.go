package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// HostFallback supplies a host for links that carry none. Resolve applies it
// only when the base URL has no host either; ResolvePage also applies it to
// root-relative page links found under another host. Rules are matched by
// path prefix, in order.
type HostFallback struct {
	PathPrefix string
	Host       string
}

// Resolver canonicalizes possibly relative or protocol-relative references
// into fully qualified URLs. The zero value is ready to use.
type Resolver struct {
	Fallbacks []HostFallback
}

// DefaultScheme is applied to any resolved URL that still lacks a scheme.
const DefaultScheme = "https"

// Resolve joins candidate against base and returns an absolute URL string.
//
//   - A host-less candidate is joined against base with RFC 3986 reference
//     resolution when base has a host.
//   - A candidate whose host differs from base is an external resource and is
//     only made absolute, never moved onto the base host.
//   - When neither has a host, the first matching HostFallback supplies one.
//   - A missing scheme defaults to https.
func (r *Resolver) Resolve(base, candidate string) (string, error) {
	candidate = strings.TrimSpace(candidate)

	ref, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("parse candidate URL %q: %w", candidate, err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL %q: %w", base, err)
	}

	resolved := ref
	if ref.Host == "" {
		switch {
		case baseURL.Host != "":
			resolved = baseURL.ResolveReference(ref)
		default:
			if host, ok := r.fallbackHost(ref.Path); ok {
				copied := *ref
				copied.Host = host
				resolved = &copied
			}
		}
	}

	if resolved.Scheme == "" {
		copied := *resolved
		copied.Scheme = DefaultScheme
		resolved = &copied
	}

	return resolved.String(), nil
}

// ResolvePage resolves a page link. A root-relative candidate whose path
// matches a HostFallback lands on the fallback host whatever the base, so
// "/wiki/..." links on a project homepage lead into the wiki.
func (r *Resolver) ResolvePage(base, candidate string) (string, error) {
	candidate = strings.TrimSpace(candidate)
	ref, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("parse candidate URL %q: %w", candidate, err)
	}
	if ref.Host == "" && ref.Scheme == "" && strings.HasPrefix(ref.Path, "/") {
		if _, ok := r.fallbackHost(ref.Path); ok {
			return r.Resolve("", candidate)
		}
	}
	return r.Resolve(base, candidate)
}

func (r *Resolver) fallbackHost(path string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, fb := range r.Fallbacks {
		if fb.PathPrefix != "" && strings.HasPrefix(path, fb.PathPrefix) {
			return fb.Host, true
		}
	}
	return "", false
}
