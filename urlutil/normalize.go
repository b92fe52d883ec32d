// Package urlutil canonicalizes references found in mirrored documents,
// decides which of them are same-site, and derives the local file names
// they are saved under.
package urlutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var errNotAbsolute = errors.New("URL must have both scheme and host")

// defaultPorts are dropped from keys so https://host:443/x and
// https://host/x claim the same ledger entry.
var defaultPorts = map[string]string{"http": "80", "https": "443"}

// Normalize returns the ledger key for an absolute URL: scheme and host in
// lower case, default port dropped, fragment removed, empty path as "/".
// The query is kept because aggregated stylesheets differ only by query.
func Normalize(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("cannot normalize empty URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("normalize URL %q: %w", rawURL, errNotAbsolute)
	}

	key := *u
	key.Scheme = strings.ToLower(u.Scheme)
	key.Host = canonicalHost(key.Scheme, u.Host)
	key.Fragment, key.RawFragment = "", ""
	if key.Path == "" && key.Opaque == "" {
		key.Path = "/"
	}
	return key.String(), nil
}

func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	name, port, err := net.SplitHostPort(host)
	if err != nil || port != defaultPorts[scheme] {
		return host
	}
	if strings.Contains(name, ":") {
		return "[" + name + "]"
	}
	return name
}
