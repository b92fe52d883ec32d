package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/lukemcguire/offliner/ledger"
	"github.com/lukemcguire/offliner/result"
	"github.com/lukemcguire/offliner/urlutil"
)

var (
	// ErrSkipped is returned for resources that were deliberately not
	// mirrored, such as images whose names the filesystem cannot hold.
	ErrSkipped = errors.New("resource skipped")

	errNotMirrored = errors.New("resource not mirrored")
	// errGone marks a resource that will not become available by retrying.
	errGone = errors.New("resource permanently unavailable")
)

// isPermanent reports whether err is a failure a later run would hit again:
// skips, robots exclusions, redirect loops, unusable URLs and 4xx answers
// other than 408 and 429. Anything else is retried on resume.
func isPermanent(err error) bool {
	switch {
	case errors.Is(err, ErrSkipped), errors.Is(err, errGone),
		errors.Is(err, ErrDisallowed), errors.Is(err, errRedirectLoop):
		return true
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Category != result.Category4xx {
		return false
	}
	return fe.StatusCode != http.StatusRequestTimeout && fe.StatusCode != http.StatusTooManyRequests
}

// fail publishes a failed fetch of entry, permanent or not.
func (c *Crawler) fail(entry *ledger.Entry, err error) {
	c.ledger.Fail(entry, isPermanent(err))
}

// waitFunc is either Ledger.Wait (fetch outcome) or Ledger.WaitDone
// (terminal status).
type waitFunc func(context.Context, *ledger.Entry) (ledger.Status, error)

// fetchImage mirrors the image src (relative to base) and returns its
// output-relative path, imgs/<name>. Images are keyed by that path, so two
// URLs with the same file name share the first download.
func (c *Crawler) fetchImage(ctx context.Context, base, src, sourcePage string) (string, error) {
	resolved, err := c.resolver.Resolve(base, src)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errGone, err)
	}
	name, err := urlutil.ImageFileName(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errGone, err)
	}
	localPath := urlutil.ImagePath(name)

	entry, claimed := c.ledger.ClaimImage(localPath, resolved)
	if !claimed {
		if entry.SourceURL != "" && entry.SourceURL != resolved {
			c.logger.Warn("image name collision, reusing first download",
				"path", localPath, "first", entry.SourceURL, "second", resolved)
		}
		if _, err := c.awaitLocal(ctx, entry, c.ledger.WaitDone); err != nil {
			return "", err
		}
		return localPath, nil
	}

	fullPath := filepath.Join(c.imagesDir, name)
	if len(name) > maxNameBytes {
		return "", c.skipImage(entry, resolved, sourcePage)
	}
	if _, err := os.Stat(fullPath); err == nil {
		c.logger.Debug("image already on disk", "path", localPath)
		c.markSaved(entry, false)
		return localPath, nil
	} else if isNameTooLong(err) {
		return "", c.skipImage(entry, resolved, sourcePage)
	} else if !errors.Is(err, fs.ErrNotExist) {
		c.fail(entry, err)
		c.recordFailure(ctx, ledger.KindImage, resolved, sourcePage, err)
		return "", err
	}

	resp, err := c.fetch(ctx, resolved, ledger.KindImage)
	if err != nil {
		c.fail(entry, err)
		c.recordFailure(ctx, ledger.KindImage, resolved, sourcePage, err)
		return "", err
	}

	if err := c.writeArtifact(fullPath, resp.Body); err != nil {
		if isNameTooLong(err) {
			return "", c.skipImage(entry, resolved, sourcePage)
		}
		c.fail(entry, err)
		c.recordFailure(ctx, ledger.KindImage, resolved, sourcePage, err)
		return "", err
	}
	c.markSaved(entry, false)
	return localPath, nil
}

func (c *Crawler) skipImage(entry *ledger.Entry, sourceURL, sourcePage string) error {
	c.ledger.Resolve(entry, ledger.StatusSkipped)
	err := fmt.Errorf("%w: file name too long for %s", ErrSkipped, entry.Key)
	c.logger.Warn("image skipped", "url", sourceURL, "error", err)
	c.recordFailure(context.Background(), ledger.KindImage, sourceURL, sourcePage, err)
	return err
}

// awaitLocal waits on another goroutine's work on entry and returns the
// entry's local name when the resource is usable. The error tells a
// permanent failure (errGone, ErrSkipped) from one worth retrying.
func (c *Crawler) awaitLocal(ctx context.Context, entry *ledger.Entry, wait waitFunc) (string, error) {
	status, err := wait(ctx, entry)
	if err != nil {
		return "", err
	}
	switch {
	case status.Usable():
		return entry.LocalName, nil
	case status == ledger.StatusSkipped:
		return "", ErrSkipped
	case c.ledger.Settled(entry):
		return "", fmt.Errorf("%w: %s", errGone, entry.Key)
	default:
		return "", fmt.Errorf("%w: %s", errNotMirrored, entry.Key)
	}
}
