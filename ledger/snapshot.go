package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"

	"github.com/lukemcguire/offliner/urlutil"
)

// SnapshotVersion is the on-disk format version written by Snapshot.
const SnapshotVersion = 1

// ErrCorruptSnapshot is returned when a snapshot cannot be decoded or fails
// validation. The ledger is left unchanged.
var ErrCorruptSnapshot = errors.New("corrupt ledger snapshot")

// Snapshot is the serialised form of a ledger. Only entries saved complete
// appear. Links maps a page to the pages it links to locally.
type Snapshot struct {
	Version int                 `json:"version"`
	Pages   map[string]string   `json:"pages"`
	Styles  map[string]int      `json:"styles"`
	Images  []string            `json:"images"`
	Links   map[string][]string `json:"links,omitempty"`
}

// Snapshot serialises every entry saved complete.
func (l *Ledger) Snapshot() ([]byte, error) {
	l.mu.Lock()
	snap := Snapshot{
		Version: SnapshotVersion,
		Pages:   make(map[string]string),
		Styles:  make(map[string]int),
		Images:  []string{},
	}
	for key, e := range l.pages {
		if e.status != StatusSaved || !e.complete {
			continue
		}
		snap.Pages[key] = e.LocalName
		if len(e.links) > 0 {
			if snap.Links == nil {
				snap.Links = make(map[string][]string)
			}
			snap.Links[key] = append([]string(nil), e.links...)
		}
	}
	for key, e := range l.styles {
		if e.status == StatusSaved && e.complete {
			snap.Styles[key] = e.Ordinal
		}
	}
	for key, e := range l.images {
		if e.status == StatusSaved && e.complete {
			snap.Images = append(snap.Images, key)
		}
	}
	l.mu.Unlock()

	sort.Strings(snap.Images)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the ledger's contents with the entries in data. Restored
// entries are saved and resolved. Style ordinals continue from the largest
// restored ordinal. On error the ledger is unchanged.
func (l *Ledger) Restore(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, snap.Version)
	}

	filter := bloom.NewWithEstimates(100000, 0.001)
	pages := make(map[string]*Entry, len(snap.Pages))
	styles := make(map[string]*Entry, len(snap.Styles))
	images := make(map[string]*Entry, len(snap.Images))
	next := 0

	for key, name := range snap.Pages {
		if key == "" || name == "" {
			return fmt.Errorf("%w: page entry %q has no name", ErrCorruptSnapshot, key)
		}
		e := restoredEntry(KindPage, key, name)
		e.links = append([]string(nil), snap.Links[key]...)
		pages[key] = e
		filter.AddString(filterKey(KindPage, key))
	}

	seen := make(map[int]string, len(snap.Styles))
	for key, ordinal := range snap.Styles {
		if key == "" || ordinal < 0 {
			return fmt.Errorf("%w: style entry %q has ordinal %d", ErrCorruptSnapshot, key, ordinal)
		}
		if other, dup := seen[ordinal]; dup {
			return fmt.Errorf("%w: ordinal %d shared by %q and %q", ErrCorruptSnapshot, ordinal, other, key)
		}
		seen[ordinal] = key
		e := restoredEntry(KindStyle, key, urlutil.StyleFileName(ordinal))
		e.Ordinal = ordinal
		styles[key] = e
		filter.AddString(filterKey(KindStyle, key))
		if ordinal >= next {
			next = ordinal + 1
		}
	}

	for _, key := range snap.Images {
		if key == "" {
			return fmt.Errorf("%w: empty image path", ErrCorruptSnapshot)
		}
		images[key] = restoredEntry(KindImage, key, path.Base(key))
		filter.AddString(filterKey(KindImage, key))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter = filter
	l.pages = pages
	l.styles = styles
	l.images = images
	l.nextOrdinal = next
	return nil
}

func restoredEntry(kind Kind, key, localName string) *Entry {
	e := newEntry(kind, key, localName)
	e.status = StatusSaved
	e.complete = true
	close(e.resolved)
	close(e.done)
	return e
}

// Save writes the snapshot to path. The file is replaced atomically so an
// interrupted save leaves the previous snapshot intact.
func (l *Ledger) Save(path string) error {
	data, err := l.Snapshot()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load restores the ledger from the snapshot at path, reading it through a
// read-only memory map. A missing file returns an error wrapping
// os.ErrNotExist; an empty or undecodable file returns ErrCorruptSnapshot.
// Either way the ledger is left as it was.
func (l *Ledger) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: empty file", ErrCorruptSnapshot)
	}

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mmap snapshot: %w", err)
	}
	defer func() { _ = mapped.Unmap() }()

	return l.Restore(mapped)
}
