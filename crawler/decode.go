package crawler

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/lukemcguire/offliner/result"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns body as UTF-8 text when its encoding can be determined:
// the Content-Type names a known charset, or the media type is text/* and
// the bytes are already valid UTF-8. ok is false otherwise and the caller
// keeps the bytes as they are.
func decodeText(contentType string, body []byte) (text string, ok bool) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "", nil
	}

	if label := params["charset"]; label != "" {
		enc, _ := charset.Lookup(label)
		if enc == nil {
			return "", false
		}
		decoded, _, err := transform.Bytes(unicode.BOMOverride(enc.NewDecoder()), body)
		if err != nil {
			return "", false
		}
		return string(decoded), true
	}

	if strings.HasPrefix(mediaType, "text/") && utf8.Valid(body) {
		return string(bytes.TrimPrefix(body, utf8BOM)), true
	}
	return "", false
}

// parseDocument decodes a page to UTF-8, honouring the Content-Type charset
// and any <meta charset>, and parses it.
func parseDocument(resp *Response) (*goquery.Document, error) {
	r, err := charset.NewReader(bytes.NewReader(resp.Body), resp.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", result.ErrEncoding, err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", result.ErrStructure, err)
	}
	return doc, nil
}
