// Package config loads and validates the offliner configuration: the root
// URL, the same-site scope, the per-site content filtering rules and the
// fetch tuning knobs.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lukemcguire/offliner/urlutil"
)

// Config captures everything the mirror engine needs for one run.
type Config struct {
	RootURL       string            `yaml:"root_url"`
	OutputDir     string            `yaml:"output_dir"`
	Fresh         bool              `yaml:"fresh"`
	Scope         []ScopeRule       `yaml:"scope"`
	HostFallbacks []HostFallback    `yaml:"host_fallbacks"`
	ExcludedPages []string          `yaml:"excluded_pages"`
	Styles        StyleConfig       `yaml:"styles"`
	Anchors       AnchorConfig      `yaml:"anchors"`
	Chrome        ChromeConfig      `yaml:"chrome"`
	Profiles      []Profile         `yaml:"profiles"`
	Attribution   AttributionConfig `yaml:"attribution"`
	Fetch         FetchConfig       `yaml:"fetch"`
	Logging       LoggingConfig     `yaml:"logging"`
}

// ScopeRule marks a host (and optionally a set of path prefixes on it) as
// same-site. Links matching any rule are mirrored recursively.
type ScopeRule struct {
	Domain       string   `yaml:"domain"`
	PathPrefixes []string `yaml:"path_prefixes"`
}

// HostFallback supplies a host for host-less links whose base URL has no
// host either, keyed by path prefix.
type HostFallback struct {
	PathPrefix string `yaml:"path_prefix"`
	Host       string `yaml:"host"`
}

// StyleConfig controls which <link> references are mirrored.
type StyleConfig struct {
	// LoadMarkers are substrings identifying aggregated stylesheet URLs.
	LoadMarkers []string `yaml:"load_markers"`
}

// AnchorConfig controls anchor and anchor-wrapped image handling.
type AnchorConfig struct {
	EditMarkers         []string `yaml:"edit_markers"`
	BuiltinIconPrefixes []string `yaml:"builtin_icon_prefixes"`
}

// ChromeConfig lists the site furniture stripped from mirrored pages.
type ChromeConfig struct {
	ClearSelectors []string `yaml:"clear_selectors"`
	HideSelectors  []string `yaml:"hide_selectors"`
	ContentIDs     []string `yaml:"content_ids"`
}

// Profile overrides the transformation for a single page URL.
type Profile struct {
	URL        string `yaml:"url"`
	AllStyles  bool   `yaml:"all_styles"`
	KeepChrome bool   `yaml:"keep_chrome"`
}

// AttributionConfig feeds the footer appended to every mirrored page.
type AttributionConfig struct {
	SourceName  string `yaml:"source_name"`
	LicenseName string `yaml:"license_name"`
	LicenseURL  string `yaml:"license_url"`
	ToolName    string `yaml:"tool_name"`
	ToolURL     string `yaml:"tool_url"`
}

// FetchConfig tunes network behaviour.
type FetchConfig struct {
	Concurrency    int      `yaml:"concurrency"`
	RequestTimeout Duration `yaml:"request_timeout"`
	RateLimit      int      `yaml:"rate_limit"`
	TargetRTT      Duration `yaml:"target_rtt"`
	UserAgent      string   `yaml:"user_agent"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryBaseDelay Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  Duration `yaml:"retry_max_delay"`
	RespectRobots  bool     `yaml:"respect_robots"`
	MemoryLimitMB  int64    `yaml:"memory_limit_mb"`
}

// LoggingConfig selects log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CheatsheetURL is the aggregated reference page of the default profile.
const CheatsheetURL = "https://www.openscad.org/cheatsheet/index"

// Default returns the configuration for mirroring the OpenSCAD manual.
func Default() Config {
	return Config{
		RootURL:   CheatsheetURL,
		OutputDir: "openscad_docs",
		Scope: []ScopeRule{
			{Domain: "en.wikibooks.org", PathPrefixes: []string{"/wiki/OpenSCAD_User_Manual"}},
			{Domain: "www.openscad.org"},
		},
		HostFallbacks: []HostFallback{
			{PathPrefix: "/wiki", Host: "en.wikibooks.org"},
		},
		ExcludedPages: []string{"Print_version"},
		Styles: StyleConfig{
			LoadMarkers: []string{"/load.php?"},
		},
		Anchors: AnchorConfig{
			EditMarkers:         []string{"edit"},
			BuiltinIconPrefixes: []string{"/static/images"},
		},
		Chrome: ChromeConfig{
			ClearSelectors: []string{"noscript"},
			HideSelectors: []string{
				"div.printfooter",
				"div.catlinks",
				"div.noprint",
				"table.noprint",
				"table.ambox",
			},
			ContentIDs: []string{"page-content", "content"},
		},
		Profiles: []Profile{
			{URL: CheatsheetURL, AllStyles: true, KeepChrome: true},
		},
		Attribution: AttributionConfig{
			SourceName:  "OpenSCAD Wikibooks",
			LicenseName: "Creative Commons Attribution-Share-Alike License 3.0",
			LicenseURL:  "http://creativecommons.org/licenses/by-sa/3.0/",
			ToolName:    "offliner",
			ToolURL:     "https://github.com/lukemcguire/offliner",
		},
		Fetch: FetchConfig{
			Concurrency:    1,
			RequestTimeout: DurationFrom(30 * time.Second),
			RateLimit:      10,
			TargetRTT:      DurationFrom(500 * time.Millisecond),
			UserAgent:      "offliner/1.0 (+https://github.com/lukemcguire/offliner)",
			MaxBodyBytes:   32 * 1024 * 1024,
			MaxRetries:     0,
			RetryBaseDelay: DurationFrom(time.Second),
			RetryMaxDelay:  DurationFrom(30 * time.Second),
			RespectRobots:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
// An empty path yields the validated defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants for the mirror configuration.
func (c Config) Validate() error {
	if c.RootURL == "" {
		return errors.New("root_url must be set")
	}
	root, err := url.Parse(c.RootURL)
	if err != nil {
		return fmt.Errorf("root_url: %w", err)
	}
	if (root.Scheme != "http" && root.Scheme != "https") || root.Host == "" {
		return fmt.Errorf("root_url must be an absolute http(s) URL (got %q)", c.RootURL)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("output_dir must be set")
	}
	if len(c.Scope) == 0 {
		return errors.New("at least one scope rule must be configured")
	}
	for i, rule := range c.Scope {
		if rule.Domain == "" {
			return fmt.Errorf("scope rule %d has empty domain", i)
		}
	}
	for i, fb := range c.HostFallbacks {
		if fb.PathPrefix == "" || fb.Host == "" {
			return fmt.Errorf("host fallback %d needs both path_prefix and host", i)
		}
	}
	for i, p := range c.Profiles {
		if p.URL == "" {
			return fmt.Errorf("profile %d has empty url", i)
		}
		if _, err := urlutil.Normalize(p.URL); err != nil {
			return fmt.Errorf("profile %d: %w", i, err)
		}
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0 (got %d)", c.Fetch.Concurrency)
	}
	if c.Fetch.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("fetch.request_timeout must be > 0 (got %s)", c.Fetch.RequestTimeout)
	}
	if c.Fetch.RateLimit < 0 {
		return fmt.Errorf("fetch.rate_limit must be >= 0 (got %d)", c.Fetch.RateLimit)
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0 (got %d)", c.Fetch.MaxBodyBytes)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0 (got %d)", c.Fetch.MaxRetries)
	}
	if strings.TrimSpace(c.Fetch.UserAgent) == "" {
		return errors.New("fetch.user_agent must be set")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// Normalise trims and lower-cases the host-like values so comparisons in
// the engine can be exact.
func (c *Config) Normalise() {
	c.RootURL = strings.TrimSpace(c.RootURL)
	c.OutputDir = strings.TrimSpace(c.OutputDir)
	for i := range c.Scope {
		c.Scope[i].Domain = strings.ToLower(strings.TrimSpace(c.Scope[i].Domain))
	}
	for i := range c.HostFallbacks {
		c.HostFallbacks[i].Host = strings.ToLower(strings.TrimSpace(c.HostFallbacks[i].Host))
	}
	for i := range c.Profiles {
		c.Profiles[i].URL = strings.TrimSpace(c.Profiles[i].URL)
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

// ProfileFor returns the transformation profile configured for pageURL, or
// the zero Profile when none matches. URLs are compared in canonical form.
func (c Config) ProfileFor(pageURL string) Profile {
	key, err := urlutil.Normalize(pageURL)
	if err != nil {
		return Profile{}
	}
	for _, p := range c.Profiles {
		if candidate, err := urlutil.Normalize(p.URL); err == nil && candidate == key {
			return p
		}
	}
	return Profile{}
}

// URLScope converts the scope rules for the URL helpers.
func (c Config) URLScope() urlutil.Scope {
	scope := make(urlutil.Scope, 0, len(c.Scope))
	for _, rule := range c.Scope {
		scope = append(scope, urlutil.ScopeRule{Domain: rule.Domain, PathPrefixes: rule.PathPrefixes})
	}
	return scope
}

// Resolver builds the URL canonicalizer with the configured host fallbacks.
func (c Config) Resolver() *urlutil.Resolver {
	fallbacks := make([]urlutil.HostFallback, 0, len(c.HostFallbacks))
	for _, fb := range c.HostFallbacks {
		fallbacks = append(fallbacks, urlutil.HostFallback{PathPrefix: fb.PathPrefix, Host: fb.Host})
	}
	return &urlutil.Resolver{Fallbacks: fallbacks}
}
