package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lukemcguire/offliner/config"
	"github.com/lukemcguire/offliner/ledger"
	"github.com/lukemcguire/offliner/result"
	"github.com/lukemcguire/offliner/urlutil"
)

// Page is a fetched document moving through the transformation stages.
type Page struct {
	URL     string // ledger key: canonical URL without fragment
	Base    string // URL references are resolved against (after redirects)
	Name    string // local file name
	Profile config.Profile
	Doc     *goquery.Document

	links      []string // child pages rewritten to local files
	incomplete bool     // something this page refers to is worth retrying
}

// noteFailure marks p incomplete unless err is permanent.
func (p *Page) noteFailure(err error) {
	if !isPermanent(err) {
		p.incomplete = true
	}
}

// Stage is one named transformation applied to every page, in order. A
// stage error is logged and the remaining stages still run, unless the
// context is done.
type Stage struct {
	Name  string
	Apply func(ctx context.Context, p *Page) error
}

func (c *Crawler) pageStages() []Stage {
	return []Stage{
		// <link> hrefs: needs the page's own URL as base.
		{Name: "styles", Apply: c.styleStage},
		// <a> hrefs and wrapped images: may claim and visit child pages.
		{Name: "anchors", Apply: c.anchorStage},
		{Name: "scripts", Apply: scriptStage},
		// Runs after anchors so links inside removed chrome are still followed.
		{Name: "chrome", Apply: c.chromeStage},
		// Last, so the footer survives the body replacement.
		{Name: "footer", Apply: c.footerStage},
	}
}

// styleStage mirrors aggregated stylesheets (or every <link> for pages whose
// profile asks for it) and drops the href of all other links.
func (c *Crawler) styleStage(ctx context.Context, p *Page) error {
	p.Doc.Find("link[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !p.Profile.AllStyles && !c.isLoadStyle(href) {
			link.RemoveAttr("href")
			return
		}
		entry, err := c.fetchStyle(ctx, p.Base, href, p.URL, c.ledger.WaitDone)
		if err != nil {
			c.logger.Debug("stylesheet left remote", "page", p.URL, "href", href, "error", err)
			p.noteFailure(err)
			return
		}
		if !c.ledger.Settled(entry) {
			p.incomplete = true
		}
		link.SetAttr("href", urlutil.StyleHref(entry.Ordinal))
	})
	return ctx.Err()
}

func (c *Crawler) isLoadStyle(href string) bool {
	for _, marker := range c.cfg.Styles.LoadMarkers {
		if marker != "" && strings.Contains(href, marker) {
			return true
		}
	}
	return false
}

// pendingLink is an anchor whose rewrite waits on a child page's fetch.
type pendingLink struct {
	anchor *goquery.Selection
	entry  *ledger.Entry
	href   string
}

// anchorStage removes edit affordances, then handles every remaining anchor
// in two passes: the first claims and starts all child pages, the second
// waits for each child's fetch outcome and rewrites the anchor. Children
// therefore fetch concurrently, and a parent never waits on a transform.
// Local children are remembered so a resumed run can find any that never
// got saved.
func (c *Crawler) anchorStage(ctx context.Context, p *Page) error {
	c.removeEditLinks(p)

	var pending []pendingLink
	p.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || urlutil.IsFragmentOnly(href) {
			return
		}

		link, ok := c.followLink(ctx, p, a, href)
		imaged := c.mirrorLinkedImage(ctx, p, a)
		if ok && !imaged {
			pending = append(pending, link)
		}
	})

	for _, link := range pending {
		status, err := c.ledger.Wait(ctx, link.entry)
		if err != nil {
			return err
		}
		if status.Usable() {
			link.anchor.SetAttr("href", link.href)
			p.links = append(p.links, link.entry.Key)
			continue
		}
		if !c.ledger.Settled(link.entry) {
			p.incomplete = true
		}
		// keep the link working online
		link.anchor.SetAttr("href", link.entry.Key+fragmentOf(link.href))
	}
	return nil
}

// removeEditLinks drops "[edit]" style anchors together with their wrapper.
func (c *Crawler) removeEditLinks(p *Page) {
	p.Doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		for _, marker := range c.cfg.Anchors.EditMarkers {
			if text != marker {
				continue
			}
			parent := a.Parent()
			if parent.Length() == 0 || parent.Is("body, html") {
				a.Remove()
			} else {
				parent.Remove()
			}
			return
		}
	})
}

// followLink claims the page an in-scope anchor points to, starting its
// visit when this page is the first to reach it. Root-relative hrefs under
// a host fallback prefix lead to the fallback host. Protocol-relative hrefs
// to other sites are made https.
func (c *Crawler) followLink(ctx context.Context, p *Page, a *goquery.Selection, href string) (pendingLink, bool) {
	resolved, err := c.resolver.ResolvePage(p.Base, href)
	if err != nil {
		c.logger.Debug("unresolvable link", "page", p.URL, "href", href, "error", err)
		return pendingLink{}, false
	}

	if !c.scope.Contains(resolved) {
		if urlutil.IsProtocolRelative(href) {
			a.SetAttr("href", "https:"+href)
		}
		return pendingLink{}, false
	}

	key, err := urlutil.Normalize(resolved)
	if err != nil {
		return pendingLink{}, false
	}
	name, err := urlutil.PageFileName(key)
	if err != nil || c.isExcluded(name) {
		return pendingLink{}, false
	}
	localHref, err := urlutil.PageHref(resolved)
	if err != nil {
		return pendingLink{}, false
	}

	entry, claimed := c.ledger.ClaimPage(key, name)
	if claimed {
		c.visit(ctx, entry, p.URL)
	}
	return pendingLink{anchor: a, entry: entry, href: localHref}, true
}

func (c *Crawler) isExcluded(pageName string) bool {
	base := strings.TrimSuffix(pageName, urlutil.PageExt)
	for _, excluded := range c.cfg.ExcludedPages {
		if base == excluded {
			return true
		}
	}
	return false
}

// mirrorLinkedImage sends the first image inside an anchor through the
// image pipeline and points both the image and the anchor at the local
// copy. Built-in icons stay remote.
func (c *Crawler) mirrorLinkedImage(ctx context.Context, p *Page, a *goquery.Selection) bool {
	img := a.Find("img").First()
	src, ok := img.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return false
	}
	for _, prefix := range c.cfg.Anchors.BuiltinIconPrefixes {
		if prefix != "" && strings.HasPrefix(src, prefix) {
			return false
		}
	}

	localPath, err := c.fetchImage(ctx, p.Base, src, p.URL)
	if err != nil {
		if !errors.Is(err, ErrSkipped) {
			c.logger.Debug("image left remote", "page", p.URL, "src", src, "error", err)
		}
		p.noteFailure(err)
		return false
	}

	href := urlutil.ImageHref(strings.TrimPrefix(localPath, urlutil.ImagesDir+"/"))
	img.RemoveAttr("srcset")
	img.SetAttr("src", href)
	a.SetAttr("href", href)
	return true
}

// scriptStage empties every script and drops external script sources.
func scriptStage(_ context.Context, p *Page) error {
	p.Doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		s.Empty()
		s.RemoveAttr("src")
	})
	return nil
}

// chromeStage strips site navigation and keeps only the main content.
func (c *Crawler) chromeStage(_ context.Context, p *Page) error {
	if p.Profile.KeepChrome {
		return nil
	}

	for _, sel := range c.cfg.Chrome.ClearSelectors {
		p.Doc.Find(sel).Empty()
	}
	for _, sel := range c.cfg.Chrome.HideSelectors {
		p.Doc.Find(sel).Empty().SetAttr("style", "display:none")
	}

	var content *goquery.Selection
	for _, id := range c.cfg.Chrome.ContentIDs {
		if found := p.Doc.Find("#" + id).First(); found.Length() > 0 {
			content = found
			break
		}
	}
	body := p.Doc.Find("body").First()
	if content == nil || body.Length() == 0 || content.Is("body") {
		return fmt.Errorf("%w: no content container, keeping full body", result.ErrStructure)
	}

	content.SetAttr("style", "margin-left:0px")
	content.Remove()
	body.Empty()
	body.AppendSelection(content)
	return nil
}

func fragmentOf(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[i:]
	}
	return ""
}
