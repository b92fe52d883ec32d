package crawler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gorilla/css/scanner"

	"github.com/lukemcguire/offliner/ledger"
	"github.com/lukemcguire/offliner/urlutil"
)

// cssInput applies the scanner's own input preprocessing so token offsets
// line up with the text being rewritten.
var cssInput = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\f", "\n", "\x00", "\ufffd")

// fetchStyle mirrors the stylesheet href (relative to base) and returns its
// ledger entry. Each stylesheet is fetched once per ledger; later callers
// wait on the first claim with wait and share its outcome.
func (c *Crawler) fetchStyle(ctx context.Context, base, href, sourcePage string, wait waitFunc) (*ledger.Entry, error) {
	resolved, err := c.resolver.Resolve(base, href)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errGone, err)
	}
	key, err := urlutil.Normalize(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errGone, err)
	}

	entry, claimed := c.ledger.ClaimStyle(key)
	if !claimed {
		if _, err := c.awaitLocal(ctx, entry, wait); err != nil {
			return nil, err
		}
		return entry, nil
	}

	resp, err := c.fetch(ctx, key, ledger.KindStyle)
	if err != nil {
		c.fail(entry, err)
		c.recordFailure(ctx, ledger.KindStyle, key, sourcePage, err)
		return nil, err
	}
	// Release importers before following imports so import cycles terminate.
	c.ledger.Resolve(entry, ledger.StatusFetched)

	data, partial := resp.Body, false
	if text, ok := decodeText(resp.ContentType, resp.Body); ok {
		var rewritten string
		rewritten, partial = c.rewriteImports(ctx, resp.URL, text, sourcePage)
		if ctx.Err() != nil {
			c.ledger.Fail(entry, false)
			return nil, ctx.Err()
		}
		data = []byte(rewritten)
	} else {
		c.logger.Debug("stylesheet encoding unknown, saving verbatim",
			"url", key, "content_type", resp.ContentType)
	}

	if err := c.writeArtifact(filepath.Join(c.stylesDir, entry.LocalName), data); err != nil {
		c.fail(entry, err)
		c.recordFailure(ctx, ledger.KindStyle, key, sourcePage, err)
		return nil, err
	}
	c.markSaved(entry, partial)
	return entry, nil
}

// rewriteImports mirrors every @import of a stylesheet and points it at the
// local copy. Imports that cannot be mirrored keep their original text; the
// second result reports whether any of them is worth retrying.
func (c *Crawler) rewriteImports(ctx context.Context, styleURL, css, sourcePage string) (string, bool) {
	css = cssInput.Replace(css)
	sc := scanner.New(css)

	var out strings.Builder
	out.Grow(len(css))
	consumed := 0
	inImport := false
	partial := false

	for {
		tok := sc.Next()
		if tok.Type == scanner.TokenEOF {
			break
		}
		if tok.Type == scanner.TokenError {
			// unterminated string or comment: keep the rest untouched
			out.WriteString(css[consumed:])
			break
		}
		consumed += len(tok.Value)

		switch {
		case tok.Type == scanner.TokenAtKeyword:
			inImport = strings.EqualFold(tok.Value, "@import")
			out.WriteString(tok.Value)
		case inImport && (tok.Type == scanner.TokenS || tok.Type == scanner.TokenComment):
			out.WriteString(tok.Value)
		case inImport && (tok.Type == scanner.TokenURI || tok.Type == scanner.TokenString):
			inImport = false
			text, ok := c.rewriteImport(ctx, styleURL, tok, sourcePage)
			partial = partial || !ok
			out.WriteString(text)
		default:
			inImport = false
			out.WriteString(tok.Value)
		}
	}
	return out.String(), partial
}

// rewriteImport returns the replacement for one import target and false
// when the import failed in a way a later run may fix. Imports only wait for
// the fetch outcome, so a cycle of imports cannot deadlock.
func (c *Crawler) rewriteImport(ctx context.Context, styleURL string, tok *scanner.Token, sourcePage string) (string, bool) {
	target := importTarget(tok)
	if target == "" {
		return tok.Value, true
	}
	entry, err := c.fetchStyle(ctx, styleURL, target, sourcePage, c.ledger.Wait)
	if err != nil {
		c.logger.Debug("import left remote", "stylesheet", styleURL, "import", target, "error", err)
		return tok.Value, isPermanent(err)
	}
	return "url(" + entry.LocalName + ")", true
}

// importTarget extracts the URL from a url(...) or quoted string token.
func importTarget(tok *scanner.Token) string {
	v := tok.Value
	if tok.Type == scanner.TokenURI {
		v = strings.TrimSpace(v[len("url(") : len(v)-1])
	}
	return strings.Trim(v, `"'`)
}
