package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	// PageExt is appended to the last path segment of every mirrored page.
	PageExt = ".html"
	// StylesDir holds mirrored stylesheets, relative to the output root.
	StylesDir = "styles"
	// ImagesDir holds mirrored images, relative to the output root.
	ImagesDir = "imgs"
	// indexName stands in for an empty last path segment.
	indexName = "index"
)

// reservedEscapes are the only percent-escapes decoded in image names.
// Full decoding would corrupt names that legitimately contain escapes.
var reservedEscapes = strings.NewReplacer("%28", "(", "%29", ")", "%25", "%")

// lastSegment returns the decoded last path segment, or "index" when the
// path ends in a slash or is empty.
func lastSegment(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return indexName
	}
	return path.Base(p)
}

// PageFileName derives the local file name of a page: its last path segment
// plus ".html". Query and fragment do not take part.
func PageFileName(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", rawURL, err)
	}
	return lastSegment(parsed.Path) + PageExt, nil
}

// PageHref is the reference written into anchors pointing at a mirrored
// page: the escaped file name plus the original fragment, if any.
func PageHref(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", rawURL, err)
	}
	href := url.PathEscape(lastSegment(parsed.Path) + PageExt)
	if parsed.Fragment != "" {
		href += "#" + parsed.EscapedFragment()
	}
	return href, nil
}

// ImageFileName derives the local name of an image from the escaped last
// path segment of its URL, decoding only %28, %29 and %25.
//
//	Foo%28bar%29.png -> Foo(bar).png
//	100%25.png       -> 100%.png
func ImageFileName(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", rawURL, err)
	}
	escaped := parsed.EscapedPath()
	seg := escaped
	if i := strings.LastIndex(escaped, "/"); i >= 0 {
		seg = escaped[i+1:]
	}
	if seg == "" {
		return "", fmt.Errorf("image URL %q has no file name", rawURL)
	}
	return reservedEscapes.Replace(seg), nil
}

// ImagePath is the ledger key and output-relative path of an image.
func ImagePath(name string) string {
	return ImagesDir + "/" + name
}

// ImageHref is the reference written into img/src and a/href for an image.
// The name is escaped so that a browser decoding it lands on the file.
func ImageHref(name string) string {
	return ImagesDir + "/" + url.PathEscape(name)
}

// StyleFileName returns the local name assigned to stylesheet ordinal n.
func StyleFileName(n int) string {
	return fmt.Sprintf("style_%d.css", n)
}

// StyleHref is the reference written into a page's <link> for ordinal n.
func StyleHref(n int) string {
	return StylesDir + "/" + StyleFileName(n)
}
