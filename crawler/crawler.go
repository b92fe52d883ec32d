// Package crawler mirrors a documentation site to disk. It fetches pages,
// stylesheets and images, rewrites references to point at the local copies,
// and records every artifact in a ledger so an interrupted run can resume.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lukemcguire/offliner/config"
	"github.com/lukemcguire/offliner/ledger"
	"github.com/lukemcguire/offliner/result"
	"github.com/lukemcguire/offliner/urlutil"
)

// LedgerFile is the snapshot file name inside the output directory.
const LedgerFile = "ledger.json"

// memoryCheckInterval is how often the memory watcher samples the heap.
const memoryCheckInterval = time.Second

// Option customises a Crawler.
type Option func(*Crawler)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Crawler) { c.client = client }
}

// WithClock replaces time.Now, which stamps page footers.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

type kindCounts struct {
	saved, failed, skipped atomic.Int64
}

// Crawler mirrors the site reachable from the configured root URL.
type Crawler struct {
	cfg        config.Config
	ledger     *ledger.Ledger
	logger     *slog.Logger
	progressCh chan<- CrawlEvent

	client   *http.Client
	fetcher  *Fetcher
	memory   *MemoryWatcher
	slots    *semaphore.Weighted
	group    *errgroup.Group
	resolver *urlutil.Resolver
	scope    urlutil.Scope
	stages   []Stage
	now      func() time.Time

	outDir    string
	stylesDir string
	imagesDir string

	counts   [3]kindCounts // indexed by ledger.Kind
	mu       sync.Mutex
	failures []result.Failure
}

// New creates a Crawler for cfg. A nil ledger starts empty; a nil logger
// discards output. progressCh is optional; pass nil to disable progress
// events.
func New(cfg config.Config, l *ledger.Ledger, logger *slog.Logger, progressCh chan<- CrawlEvent, opts ...Option) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if l == nil {
		l = ledger.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Crawler{
		cfg:        cfg,
		ledger:     l,
		logger:     logger,
		progressCh: progressCh,
		slots:      semaphore.NewWeighted(int64(cfg.Fetch.Concurrency)),
		resolver:   cfg.Resolver(),
		scope:      cfg.URLScope(),
		now:        time.Now,
		outDir:     cfg.OutputDir,
		stylesDir:  filepath.Join(cfg.OutputDir, urlutil.StylesDir),
		imagesDir:  filepath.Join(cfg.OutputDir, urlutil.ImagesDir),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.fetcher = NewFetcher(FetcherOptions{
		UserAgent:     cfg.Fetch.UserAgent,
		Timeout:       cfg.Fetch.RequestTimeout.Duration,
		MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
		RateLimit:     cfg.Fetch.RateLimit,
		TargetRTT:     cfg.Fetch.TargetRTT.Duration,
		RespectRobots: cfg.Fetch.RespectRobots,
		Retry: RetryPolicy{
			MaxRetries: cfg.Fetch.MaxRetries,
			BaseDelay:  cfg.Fetch.RetryBaseDelay.Duration,
			MaxDelay:   cfg.Fetch.RetryMaxDelay.Duration,
		},
		Client: c.client,
	}, logger)

	if cfg.Fetch.MemoryLimitMB > 0 {
		c.memory = NewMemoryWatcher(cfg.Fetch.MemoryLimitMB)
		throttle := throttleLimiter(c.fetcher.Limiter())
		c.memory.SetThrottleCallback(func(level ThrottleLevel) {
			c.logger.Warn("memory pressure changed", "level", level)
			throttle(level)
		})
	}

	c.stages = c.pageStages()
	return c, nil
}

// Run mirrors everything reachable from the root URL. The ledger snapshot
// is written at the end of every run, cancelled or not. Only setup failures
// are returned as errors; per-resource failures are in the result.
func (c *Crawler) Run(ctx context.Context) (*result.Result, error) {
	start := time.Now()

	root, err := urlutil.Normalize(c.cfg.RootURL)
	if err != nil {
		return nil, fmt.Errorf("normalize root URL: %w", err)
	}
	rootName, err := urlutil.PageFileName(root)
	if err != nil {
		return nil, err
	}

	if err := c.makeOutputDirs(); err != nil {
		return nil, err
	}

	ledgerPath := filepath.Join(c.outDir, LedgerFile)
	c.loadLedger(ledgerPath)

	if c.memory != nil {
		restore := c.memory.Install()
		defer restore()
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go c.memory.Watch(watchCtx, memoryCheckInterval)
	}

	c.group = new(errgroup.Group)
	entry, claimed := c.ledger.ClaimPage(root, rootName)
	frontier := c.ledger.Frontier()
	switch {
	case claimed:
		c.logger.Info("mirroring", "root", root, "out", c.outDir, "concurrency", c.cfg.Fetch.Concurrency)
		c.visit(ctx, entry, "")
	case len(frontier) == 0:
		c.logger.Info("root page already mirrored, nothing to do", "root", root)
	}
	if len(frontier) > 0 {
		c.logger.Info("resuming unfinished pages", "count", len(frontier))
	}
	for _, link := range frontier {
		name, err := urlutil.PageFileName(link.To)
		if err != nil {
			continue
		}
		if entry, claimed := c.ledger.ClaimPage(link.To, name); claimed {
			c.visit(ctx, entry, link.From)
		}
	}
	_ = c.group.Wait()

	if err := c.ledger.Save(ledgerPath); err != nil {
		c.logger.Error("saving ledger failed", "path", ledgerPath, "error", err)
	}

	res := c.buildResult(time.Since(start))
	res.Cancelled = ctx.Err() != nil
	c.logger.Info("mirror finished",
		"pages", res.Stats.Pages.Saved,
		"styles", res.Stats.Styles.Saved,
		"images", res.Stats.Images.Saved,
		"failed", res.Stats.FailureCount(),
		"fetches", res.Stats.Fetches,
		"duration", res.Stats.Duration.Round(time.Millisecond),
		"cancelled", res.Cancelled)
	return res, nil
}

// visit starts a claimed page in the crawl's goroutine group.
func (c *Crawler) visit(ctx context.Context, entry *ledger.Entry, sourcePage string) {
	c.group.Go(func() error {
		c.visitPage(ctx, entry, sourcePage)
		return nil
	})
}

func (c *Crawler) makeOutputDirs() error {
	for _, dir := range []string{c.outDir, c.stylesDir, c.imagesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return nil
}

// loadLedger restores the previous run's snapshot unless a fresh run was
// requested. A missing or unreadable snapshot starts an empty ledger.
func (c *Crawler) loadLedger(path string) {
	if c.cfg.Fresh {
		c.logger.Info("fresh run, ignoring existing ledger", "path", path)
		return
	}
	err := c.ledger.Load(path)
	switch {
	case err == nil:
		counts := c.ledger.Stats()
		c.logger.Info("resumed from ledger",
			"pages", counts[ledger.KindPage][ledger.StatusSaved],
			"styles", counts[ledger.KindStyle][ledger.StatusSaved],
			"images", counts[ledger.KindImage][ledger.StatusSaved])
	case errors.Is(err, fs.ErrNotExist):
		c.logger.Debug("no ledger snapshot, starting empty", "path", path)
	default:
		c.logger.Warn("ignoring unreadable ledger snapshot", "path", path, "error", err)
	}
}

// fetch downloads rawURL while holding one of the concurrency slots. No
// slot is held while waiting on the ledger, so waiting never starves
// fetching.
func (c *Crawler) fetch(ctx context.Context, rawURL string, kind ledger.Kind) (*Response, error) {
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return nil, newFetchError(rawURL, 0, err)
	}
	defer c.slots.Release(1)
	return c.fetcher.Fetch(ctx, rawURL, kind)
}

// writeArtifact saves data atomically, noting when a file is replaced.
func (c *Crawler) writeArtifact(path string, data []byte) error {
	existed, err := writeFileAtomic(path, data)
	if err != nil {
		return err
	}
	if existed {
		c.logger.Info("overwrote existing file", "path", path)
	}
	return nil
}

// markSaved publishes a written artifact. A partial one still refers to
// something worth retrying and is left out of the snapshot.
func (c *Crawler) markSaved(entry *ledger.Entry, partial bool) {
	if partial {
		c.ledger.MarkPartial(entry)
	} else {
		c.ledger.MarkSaved(entry)
	}
	c.recordSaved(entry)
}

func (c *Crawler) recordSaved(entry *ledger.Entry) {
	c.counts[entry.Kind].saved.Add(1)
	c.logger.Debug("saved", "kind", entry.Kind, "url", entry.Key, "file", entry.LocalName)
	c.emit(CrawlEvent{
		Kind:      entry.Kind,
		URL:       entry.Key,
		Status:    ledger.StatusSaved,
		LocalName: entry.LocalName,
	})
}

// recordFailure adds a resource to the failure list. Failures caused by
// cancellation are not reported; the resource is simply retried next run.
func (c *Crawler) recordFailure(ctx context.Context, kind ledger.Kind, rawURL, sourcePage string, err error) {
	if ctx.Err() != nil {
		c.logger.Debug("abandoned", "kind", kind, "url", rawURL, "error", err)
		return
	}

	failure := result.Failure{
		URL:        rawURL,
		Kind:       kind.String(),
		Error:      err.Error(),
		SourcePage: sourcePage,
	}
	status := ledger.StatusFailed
	var fe *FetchError
	switch {
	case errors.As(err, &fe):
		failure.StatusCode = fe.StatusCode
		failure.ErrorCategory = fe.Category
	case errors.Is(err, ErrSkipped):
		failure.ErrorCategory = result.CategoryFilesystem
		status = ledger.StatusSkipped
	default:
		failure.ErrorCategory = result.ClassifyError(err, 0, false)
	}

	if status == ledger.StatusSkipped {
		c.counts[kind].skipped.Add(1)
	} else {
		c.counts[kind].failed.Add(1)
		c.logger.Warn("not mirrored", "kind", kind, "url", rawURL, "source", sourcePage, "error", err)
	}

	c.mu.Lock()
	c.failures = append(c.failures, failure)
	c.mu.Unlock()

	c.emit(CrawlEvent{
		Kind:          kind,
		URL:           rawURL,
		Status:        status,
		Error:         failure.Error,
		ErrorCategory: failure.ErrorCategory,
	})
}

// emit fills in the running totals and sends evt to the progress channel.
func (c *Crawler) emit(evt CrawlEvent) {
	if c.progressCh == nil {
		return
	}
	evt.Pages = int(c.counts[ledger.KindPage].saved.Load())
	evt.Styles = int(c.counts[ledger.KindStyle].saved.Load())
	evt.Images = int(c.counts[ledger.KindImage].saved.Load())
	for i := range c.counts {
		evt.Failed += int(c.counts[i].failed.Load())
		evt.Skipped += int(c.counts[i].skipped.Load())
	}
	evt.Fetches = c.fetcher.Requests()
	c.progressCh <- evt
}

func (c *Crawler) buildResult(elapsed time.Duration) *result.Result {
	stats := func(kind ledger.Kind) result.KindStats {
		return result.KindStats{
			Saved:   int(c.counts[kind].saved.Load()),
			Failed:  int(c.counts[kind].failed.Load()),
			Skipped: int(c.counts[kind].skipped.Load()),
		}
	}

	c.mu.Lock()
	failures := make([]result.Failure, len(c.failures))
	copy(failures, c.failures)
	c.mu.Unlock()

	return &result.Result{
		Failures: failures,
		Stats: result.CrawlStats{
			Pages:    stats(ledger.KindPage),
			Styles:   stats(ledger.KindStyle),
			Images:   stats(ledger.KindImage),
			Fetches:  c.fetcher.Requests(),
			Duration: elapsed,
		},
	}
}
