package crawler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/css/scanner"

	"github.com/lukemcguire/offliner/config"
	"github.com/lukemcguire/offliner/ledger"
)

func newStyleCrawler(t *testing.T) (*Crawler, string) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.css", "/b.css":
			w.Header().Set("Content-Type", "text/css")
			_, _ = io.WriteString(w, ".x{}")
		case "/flaky.css":
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)

	u, _ := url.Parse(ts.URL)
	cfg := config.Default()
	cfg.RootURL = ts.URL + "/"
	cfg.OutputDir = t.TempDir()
	cfg.Scope = []config.ScopeRule{{Domain: u.Host}}
	cfg.Profiles = nil
	cfg.Fetch.RateLimit = 0
	cfg.Fetch.RespectRobots = false
	cfg.Fetch.MaxRetries = 0

	c, err := New(cfg, ledger.New(), nil, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := c.makeOutputDirs(); err != nil {
		t.Fatalf("create output dirs: %v", err)
	}
	return c, ts.URL + "/main.css"
}

func TestRewriteImports(t *testing.T) {
	tests := []struct {
		name    string
		css     string
		want    string
		partial bool
	}{
		{"url form", "@import url(/a.css);", "@import url(style_0.css);", false},
		{"quoted url form", `@import url( "/a.css" );`, "@import url(style_0.css);", false},
		{"string form", `@import "/a.css" screen;`, "@import url(style_0.css) screen;", false},
		{"upper case keyword", "@IMPORT '/a.css';", "@IMPORT url(style_0.css);", false},
		{"comment before target", "@import /* site */ url(/a.css);", "@import /* site */ url(style_0.css);", false},
		{"missing import kept", "@import url(/missing.css);\na{}", "@import url(/missing.css);\na{}", false},
		{"same import twice", "@import url(/a.css);@import url(/a.css);", "@import url(style_0.css);@import url(style_0.css);", false},
		{"two imports", "@import url(/a.css);\n@import url(/b.css);", "@import url(style_0.css);\n@import url(style_1.css);", false},
		{"background url untouched", "a{background:url(/a.css)}", "a{background:url(/a.css)}", false},
		{"other at-rule untouched", "@media print{a{color:red}}", "@media print{a{color:red}}", false},
		{"newlines normalised", "a{}\r\nb{}", "a{}\nb{}", false},
		{"unterminated comment kept", "@import url(/a.css);\n/* open", "@import url(style_0.css);\n/* open", false},
		{"unavailable import is retried later", "@import url(/flaky.css);@import url(/a.css);", "@import url(/flaky.css);@import url(style_1.css);", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, styleURL := newStyleCrawler(t)
			got, partial := c.rewriteImports(context.Background(), styleURL, tt.css, "")
			if got != tt.want {
				t.Errorf("rewriteImports(%q) =\n%q\nwant\n%q", tt.css, got, tt.want)
			}
			if partial != tt.partial {
				t.Errorf("rewriteImports(%q) partial = %v, want %v", tt.css, partial, tt.partial)
			}
		})
	}
}

func TestImportTarget(t *testing.T) {
	tests := []struct {
		tok  scanner.Token
		want string
	}{
		{scanner.Token{Type: scanner.TokenURI, Value: "url(/a.css)"}, "/a.css"},
		{scanner.Token{Type: scanner.TokenURI, Value: `url( "/a.css" )`}, "/a.css"},
		{scanner.Token{Type: scanner.TokenURI, Value: "url('/a.css')"}, "/a.css"},
		{scanner.Token{Type: scanner.TokenString, Value: `"/a.css"`}, "/a.css"},
		{scanner.Token{Type: scanner.TokenString, Value: `''`}, ""},
	}
	for _, tt := range tests {
		if got := importTarget(&tt.tok); got != tt.want {
			t.Errorf("importTarget(%q) = %q, want %q", tt.tok.Value, got, tt.want)
		}
	}
}
