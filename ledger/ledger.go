// Package ledger records which pages, stylesheets and images a mirror run
// has claimed, fetched and saved, and persists that record so later runs
// resume instead of re-fetching.
package ledger

import (
	"context"
	"fmt"
	"path"
	"slices"
	"sort"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/lukemcguire/offliner/urlutil"
)

// Kind distinguishes the three artifact kinds tracked by the ledger.
type Kind int

const (
	KindPage Kind = iota
	KindStyle
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindStyle:
		return "style"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Status is the lifecycle state of one ledger entry.
type Status int

const (
	// StatusPending means the entry is claimed and its fetch is in flight.
	StatusPending Status = iota
	// StatusFetched means the network fetch succeeded; nothing is on disk yet.
	StatusFetched
	// StatusSaved means the artifact is durably written.
	StatusSaved
	// StatusFailed is terminal for this run; the reference stays remote.
	StatusFailed
	// StatusSkipped marks a resource that can never be saved (e.g. its name
	// is too long for the filesystem). It is not retried.
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFetched:
		return "fetched"
	case StatusSaved:
		return "saved"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transition happens in this run.
func (s Status) Terminal() bool {
	return s == StatusSaved || s == StatusFailed || s == StatusSkipped
}

// Usable reports whether references to an entry in this state may be
// rewritten to its local copy.
func (s Status) Usable() bool {
	return s == StatusFetched || s == StatusSaved
}

// Entry is one claimed resource. Fields other than status are immutable
// after the claim.
type Entry struct {
	Kind      Kind
	Key       string // canonical URL for pages/styles, local path for images
	LocalName string // page file name, style file name, or image file name
	Ordinal   int    // style ordinal; -1 for other kinds
	SourceURL string // image source URL that first claimed this path

	status    Status
	resolved  chan struct{} // closed once the fetch outcome is known
	done      chan struct{} // closed once the status is terminal
	permanent bool          // failure will not go away on a rerun
	complete  bool          // saved with nothing left to retry
	links     []string      // pages this page links to locally
}

// Ledger is the process-wide record of claimed resources. All membership
// tests that precede a fetch go through a Claim method so that check and
// insert happen under one lock.
type Ledger struct {
	mu          sync.Mutex
	filter      *bloom.BloomFilter
	pages       map[string]*Entry
	styles      map[string]*Entry
	images      map[string]*Entry
	nextOrdinal int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		// Sized like a large manual; the filter only answers "definitely new".
		filter: bloom.NewWithEstimates(100000, 0.001),
		pages:  make(map[string]*Entry),
		styles: make(map[string]*Entry),
		images: make(map[string]*Entry),
	}
}

func filterKey(kind Kind, key string) string {
	return kind.String() + "\x00" + key
}

// lookupLocked consults the bloom filter before the exact map. Must be
// called with mu held.
func (l *Ledger) lookupLocked(kind Kind, key string) (*Entry, bool) {
	if !l.filter.TestString(filterKey(kind, key)) {
		return nil, false
	}
	e, ok := l.table(kind)[key]
	return e, ok
}

func (l *Ledger) insertLocked(e *Entry) {
	l.table(e.Kind)[e.Key] = e
	l.filter.AddString(filterKey(e.Kind, e.Key))
}

func (l *Ledger) table(kind Kind) map[string]*Entry {
	switch kind {
	case KindPage:
		return l.pages
	case KindStyle:
		return l.styles
	default:
		return l.images
	}
}

func newEntry(kind Kind, key, localName string) *Entry {
	return &Entry{
		Kind:      kind,
		Key:       key,
		LocalName: localName,
		Ordinal:   -1,
		status:    StatusPending,
		resolved:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ClaimPage atomically checks for pageURL and inserts a pending entry if it
// is new. The boolean is true only for the caller that inserted the entry;
// that caller owns the fetch.
func (l *Ledger) ClaimPage(pageURL, localName string) (*Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.lookupLocked(KindPage, pageURL); ok {
		return e, false
	}
	e := newEntry(KindPage, pageURL, localName)
	l.insertLocked(e)
	return e, true
}

// ClaimStyle atomically checks for styleURL and, if new, reserves the next
// ordinal for it. The ordinal is assigned once and never reused in a run.
func (l *Ledger) ClaimStyle(styleURL string) (*Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.lookupLocked(KindStyle, styleURL); ok {
		return e, false
	}
	e := newEntry(KindStyle, styleURL, "")
	e.Ordinal = l.nextOrdinal
	e.LocalName = urlutil.StyleFileName(e.Ordinal)
	l.nextOrdinal++
	l.insertLocked(e)
	return e, true
}

// ClaimImage atomically checks for the local image path and inserts a
// pending entry if it is new. Identity is the local path, so a different
// sourceURL decoding to the same name finds the existing entry; callers can
// detect that by comparing Entry.SourceURL.
func (l *Ledger) ClaimImage(localPath, sourceURL string) (*Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.lookupLocked(KindImage, localPath); ok {
		return e, false
	}
	e := newEntry(KindImage, localPath, path.Base(localPath))
	e.SourceURL = sourceURL
	l.insertLocked(e)
	return e, true
}

// HasPage reports whether pageURL has been claimed in this or a restored run.
func (l *Ledger) HasPage(pageURL string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.lookupLocked(KindPage, pageURL)
	return ok
}

// RecordPage records pageURL under localName if it is not already known.
func (l *Ledger) RecordPage(pageURL, localName string) {
	l.ClaimPage(pageURL, localName)
}

// HasStyle reports whether styleURL is known and, if so, its ordinal.
func (l *Ledger) HasStyle(styleURL string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.lookupLocked(KindStyle, styleURL)
	if !ok {
		return false, -1
	}
	return true, e.Ordinal
}

// RecordStyle returns the ordinal of styleURL, assigning the next one on
// first sight.
func (l *Ledger) RecordStyle(styleURL string) int {
	e, _ := l.ClaimStyle(styleURL)
	return e.Ordinal
}

// HasImage reports whether localPath has been claimed.
func (l *Ledger) HasImage(localPath string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.lookupLocked(KindImage, localPath)
	return ok
}

// RecordImage records localPath if it is not already known.
func (l *Ledger) RecordImage(localPath string) {
	l.ClaimImage(localPath, "")
}

// Resolve publishes the outcome of an entry's fetch. The first call releases
// every Wait on the entry; later calls only update the status. A terminal
// status (saved, failed, skipped) also releases WaitDone.
func (l *Ledger) Resolve(e *Entry, status Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolveLocked(e, status)
}

func (l *Ledger) resolveLocked(e *Entry, status Status) {
	e.status = status
	closeOnce(e.resolved)
	if status.Terminal() {
		closeOnce(e.done)
	}
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// MarkSaved records that the entry's artifact is durably written and
// complete. Only complete entries are included in snapshots.
func (l *Ledger) MarkSaved(e *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.complete = true
	l.resolveLocked(e, StatusSaved)
}

// MarkPartial records that the entry's artifact is written but still
// references something a later run should retry. It is usable in this run
// and left out of snapshots, so the next run mirrors it again.
func (l *Ledger) MarkPartial(e *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.complete = false
	l.resolveLocked(e, StatusSaved)
}

// Fail marks the entry failed. A permanent failure (the resource is gone or
// disallowed) settles references to it; any other failure is retried by the
// next run.
func (l *Ledger) Fail(e *Entry, permanent bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.permanent = permanent
	l.resolveLocked(e, StatusFailed)
}

// Settled reports whether nothing about e is left for a later run: it is
// saved complete, skipped, or failed permanently.
func (l *Ledger) Settled(e *Entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return settledLocked(e)
}

func settledLocked(e *Entry) bool {
	switch e.status {
	case StatusSaved:
		return e.complete
	case StatusSkipped:
		return true
	case StatusFailed:
		return e.permanent
	default:
		return false
	}
}

// SetLinks records the pages a saved page links to locally. They are kept
// in the snapshot so a resumed run can find pages that were never saved.
func (l *Ledger) SetLinks(e *Entry, links []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.links = slices.Compact(slices.Sorted(slices.Values(links)))
}

// Status returns the current status of e.
func (l *Ledger) Status(e *Entry) Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return e.status
}

// Wait blocks until e's fetch outcome is known or ctx is done.
func (l *Ledger) Wait(ctx context.Context, e *Entry) (Status, error) {
	return l.waitOn(ctx, e, e.resolved)
}

// WaitDone blocks until e reaches a terminal status or ctx is done.
func (l *Ledger) WaitDone(ctx context.Context, e *Entry) (Status, error) {
	return l.waitOn(ctx, e, e.done)
}

func (l *Ledger) waitOn(ctx context.Context, e *Entry, ch <-chan struct{}) (Status, error) {
	select {
	case <-ch:
		return l.Status(e), nil
	case <-ctx.Done():
		return StatusPending, fmt.Errorf("wait for %s %s: %w", e.Kind, e.Key, ctx.Err())
	}
}

// Link is a local reference from a saved page to another page.
type Link struct {
	From string
	To   string
}

// Frontier lists links from complete pages to pages the ledger does not
// know. After a restore these are the pages an interrupted or failed run
// left unsaved; visiting them resumes the mirror.
func (l *Ledger) Frontier() []Link {
	l.mu.Lock()
	defer l.mu.Unlock()

	var frontier []Link
	seen := make(map[string]bool)
	for _, e := range l.pages {
		if e.status != StatusSaved || !e.complete {
			continue
		}
		for _, to := range e.links {
			if _, known := l.pages[to]; known || seen[to] {
				continue
			}
			seen[to] = true
			frontier = append(frontier, Link{From: e.Key, To: to})
		}
	}
	sort.Slice(frontier, func(i, j int) bool { return frontier[i].To < frontier[j].To })
	return frontier
}

// Counts summarises the ledger per kind and status.
type Counts map[Kind]map[Status]int

// Stats returns entry counts by kind and status.
func (l *Ledger) Stats() Counts {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := Counts{
		KindPage:  make(map[Status]int),
		KindStyle: make(map[Status]int),
		KindImage: make(map[Status]int),
	}
	for _, kind := range []Kind{KindPage, KindStyle, KindImage} {
		for _, e := range l.table(kind) {
			counts[kind][e.status]++
		}
	}
	return counts
}
