package crawler

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/lukemcguire/offliner/ledger"
	"github.com/lukemcguire/offliner/result"
)

const maxRedirects = 10

var (
	// ErrDisallowed is returned for pages excluded by the host's robots.txt.
	ErrDisallowed = errors.New("disallowed by robots.txt")

	errRedirectLoop = errors.New("redirect loop")
)

// FetchError describes a fetch that did not produce a usable body.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no HTTP response was received
	Category   result.ErrorCategory
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func newFetchError(rawURL string, statusCode int, err error) *FetchError {
	return &FetchError{
		URL:        rawURL,
		StatusCode: statusCode,
		Category:   result.ClassifyError(err, statusCode, errors.Is(err, errRedirectLoop)),
		Err:        err,
	}
}

// Response is a fully read 2xx response.
type Response struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Body        []byte
	RTT         time.Duration
}

// FetcherOptions controls HTTP fetching behaviour.
type FetcherOptions struct {
	UserAgent     string
	Timeout       time.Duration
	MaxBodyBytes  int64
	RateLimit     int           // requests per second; 0 disables limiting
	TargetRTT     time.Duration // response time the adaptive limiter aims for
	RespectRobots bool
	Retry         RetryPolicy
	Client        *http.Client // optional; a default client is built when nil
}

// Fetcher issues GET requests for pages, stylesheets and images. Every
// request is rate limited and bounded by a timeout.
type Fetcher struct {
	client       *http.Client
	limiter      *AdaptiveLimiter
	robots       *RobotsChecker
	retry        RetryPolicy
	userAgent    string
	timeout      time.Duration
	maxBodyBytes int64
	logger       *slog.Logger
	requests     atomic.Int64
}

// NewFetcher builds a Fetcher from opts.
func NewFetcher(opts FetcherOptions, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 32 * 1024 * 1024
	}
	if opts.TargetRTT <= 0 {
		opts.TargetRTT = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if client.CheckRedirect == nil {
		copied := *client
		copied.CheckRedirect = checkRedirect
		client = &copied
	}

	f := &Fetcher{
		client:       client,
		limiter:      NewAdaptiveLimiter(opts.RateLimit, opts.TargetRTT),
		retry:        opts.Retry,
		userAgent:    opts.UserAgent,
		timeout:      opts.Timeout,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       logger,
	}
	if opts.RespectRobots {
		// robots.txt gets its own short timeout
		f.robots = NewRobotsChecker(&http.Client{Timeout: 5 * time.Second, Transport: client.Transport})
	}
	return f
}

// Limiter exposes the adaptive limiter so memory pressure can throttle it.
func (f *Fetcher) Limiter() *AdaptiveLimiter {
	return f.limiter
}

// Requests is the number of HTTP requests issued so far, robots.txt excluded.
func (f *Fetcher) Requests() int {
	return int(f.requests.Load())
}

// Fetch downloads rawURL. Pages are checked against robots.txt first;
// stylesheets and images are page resources and are not.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, kind ledger.Kind) (*Response, error) {
	if kind == ledger.KindPage && f.robots != nil {
		allowed, err := f.robots.Allowed(ctx, rawURL, f.userAgent)
		if err != nil {
			f.logger.Debug("robots.txt unavailable, allowing", "url", rawURL, "error", err)
		}
		if !allowed {
			return nil, newFetchError(rawURL, 0, ErrDisallowed)
		}
	}
	return f.fetchWithRetry(ctx, rawURL)
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, newFetchError(rawURL, 0, fmt.Errorf("rate limiter wait: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newFetchError(rawURL, 0, fmt.Errorf("build request: %w", err))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	f.requests.Add(1)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, newFetchError(rawURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rtt := time.Since(start)
	f.limiter.ObserveRTT(rtt)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, newFetchError(rawURL, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, newFetchError(rawURL, 0, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		URL:         finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		RTT:         rtt,
	}, nil
}

// readBody decodes the content-encoding and enforces the body size cap.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	var closer io.Closer

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader, closer = gz, gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader, closer = fl, fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}

// checkRedirect stops redirect chains that revisit a URL or run too long.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: stopped after %d redirects", errRedirectLoop, maxRedirects)
	}
	target := req.URL.String()
	for _, prev := range via {
		if prev.URL.String() == target {
			return fmt.Errorf("%w: %s", errRedirectLoop, target)
		}
	}
	return nil
}
