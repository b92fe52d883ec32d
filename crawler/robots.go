package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// robotsMaxBytes bounds how much of a robots.txt file is read.
const robotsMaxBytes = 512 * 1024

// RobotsChecker fetches robots.txt once per scheme and host and answers
// whether a page may be mirrored. Any failure to obtain rules allows the
// page.
type RobotsChecker struct {
	client *http.Client
	rules  sync.Map // "scheme://host" -> *robotstxt.RobotsData (nil = allow all)
	group  singleflight.Group
}

// NewRobotsChecker creates a RobotsChecker with the given HTTP client.
func NewRobotsChecker(client *http.Client) *RobotsChecker {
	return &RobotsChecker{client: client}
}

// Allowed reports whether userAgent may fetch rawURL. A non-nil error means
// the rules could not be obtained; the result is then true.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL, userAgent string) (bool, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return true, fmt.Errorf("parse URL: %w", err)
	}
	if parsedURL.Host == "" {
		return true, nil
	}

	origin := parsedURL.Scheme + "://" + parsedURL.Host
	data, err := r.rulesFor(ctx, origin)
	if data == nil {
		return true, err
	}

	path := parsedURL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsedURL.RawQuery != "" {
		path += "?" + parsedURL.RawQuery
	}
	return data.TestAgent(path, userAgent), nil
}

// rulesFor returns the cached rules for origin, fetching them at most once
// even when many pages on the same host are checked concurrently.
func (r *RobotsChecker) rulesFor(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	if cached, ok := r.rules.Load(origin); ok {
		data, _ := cached.(*robotstxt.RobotsData)
		return data, nil
	}

	v, err, _ := r.group.Do(origin, func() (any, error) {
		if cached, ok := r.rules.Load(origin); ok {
			return cached, nil
		}
		data, err := r.fetch(ctx, origin)
		// Failures are cached as allow-all so they are reported once.
		r.rules.Store(origin, data)
		return data, err
	})
	data, _ := v.(*robotstxt.RobotsData)
	return data, err
}

func (r *RobotsChecker) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("create robots.txt request for %s: %w", origin, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt for %s: %w", origin, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Missing or broken robots.txt allows everything.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode >= 500 {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt for %s: %w", origin, err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt for %s: %w", origin, err)
	}
	return data, nil
}
