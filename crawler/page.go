package crawler

import (
	"context"
	"path/filepath"

	"github.com/lukemcguire/offliner/ledger"
)

// visitPage fetches, transforms and saves a claimed page. Its fetch outcome
// is published through the ledger before any transformation so that pages
// linking to it (including itself, through a cycle) never wait on it for
// long. Every exit leaves the entry in a terminal status.
func (c *Crawler) visitPage(ctx context.Context, entry *ledger.Entry, sourcePage string) {
	resp, err := c.fetch(ctx, entry.Key, ledger.KindPage)
	if err != nil {
		c.fail(entry, err)
		c.recordFailure(ctx, ledger.KindPage, entry.Key, sourcePage, err)
		return
	}
	c.ledger.Resolve(entry, ledger.StatusFetched)
	c.logger.Debug("page fetched", "url", entry.Key, "file", entry.LocalName)

	doc, err := parseDocument(resp)
	if err != nil {
		c.fail(entry, err)
		c.recordFailure(ctx, ledger.KindPage, entry.Key, sourcePage, err)
		return
	}

	page := &Page{
		URL:     entry.Key,
		Base:    resp.URL,
		Name:    entry.LocalName,
		Profile: c.cfg.ProfileFor(entry.Key),
		Doc:     doc,
	}
	for _, stage := range c.stages {
		if err := stage.Apply(ctx, page); err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Warn("page stage failed", "url", page.URL, "stage", stage.Name, "error", err)
		}
	}
	if ctx.Err() != nil {
		c.logger.Debug("page abandoned", "url", page.URL)
		c.ledger.Fail(entry, false)
		return
	}

	html, err := doc.Html()
	if err != nil {
		c.fail(entry, err)
		c.recordFailure(ctx, ledger.KindPage, entry.Key, sourcePage, err)
		return
	}
	if err := c.writeArtifact(filepath.Join(c.outDir, entry.LocalName), []byte(html)); err != nil {
		c.fail(entry, err)
		c.recordFailure(ctx, ledger.KindPage, entry.Key, sourcePage, err)
		return
	}
	c.ledger.SetLinks(entry, page.links)
	c.markSaved(entry, page.incomplete)
}
