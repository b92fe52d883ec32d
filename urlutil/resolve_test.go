package urlutil

import "testing"

func TestResolverResolve(t *testing.T) {
	resolver := &Resolver{
		Fallbacks: []HostFallback{{PathPrefix: "/wiki", Host: "en.wikibooks.org"}},
	}

	tests := []struct {
		name      string
		base      string
		candidate string
		expected  string
		wantErr   bool
	}{
		{
			name:      "absolute URL returned as-is",
			base:      "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual",
			candidate: "https://www.openscad.org/news.html",
			expected:  "https://www.openscad.org/news.html",
		},
		{
			name:      "relative path resolved",
			base:      "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual/",
			candidate: "First_Steps",
			expected:  "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual/First_Steps",
		},
		{
			name:      "root-relative resolved",
			base:      "https://www.openscad.org/cheatsheet/index",
			candidate: "/wiki/OpenSCAD_User_Manual/The_OpenSCAD_Language#cube",
			expected:  "https://www.openscad.org/wiki/OpenSCAD_User_Manual/The_OpenSCAD_Language#cube",
		},
		{
			name:      "dot segments collapse",
			base:      "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual/Print_version",
			candidate: "../OpenSCAD_User_Manual/Mirror",
			expected:  "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual/Mirror",
		},
		{
			name:      "query preserved",
			base:      "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual",
			candidate: "/w/load.php?lang=en&modules=site&only=styles",
			expected:  "https://en.wikibooks.org/w/load.php?lang=en&modules=site&only=styles",
		},
		{
			name:      "protocol-relative gets https",
			base:      "http://en.wikibooks.org/wiki/OpenSCAD_User_Manual",
			candidate: "//upload.wikimedia.org/wikipedia/commons/a/ab/Cube.png",
			expected:  "https://upload.wikimedia.org/wikipedia/commons/a/ab/Cube.png",
		},
		{
			name:      "host-less base uses wiki fallback",
			base:      "",
			candidate: "/wiki/OpenSCAD_User_Manual/First_Steps",
			expected:  "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual/First_Steps",
		},
		{
			name:      "host-less base without matching fallback stays host-less",
			base:      "",
			candidate: "/static/images/icon.png",
			expected:  "https:///static/images/icon.png",
		},
		{
			name:      "unparseable candidate",
			base:      "https://en.wikibooks.org/",
			candidate: "http://[::1",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(tt.base, tt.candidate)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.base, tt.candidate, got, tt.expected)
			}
		})
	}
}

func TestZeroResolverHasNoFallback(t *testing.T) {
	var resolver Resolver
	got, err := resolver.Resolve("", "/wiki/Main_Page")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got != "https:///wiki/Main_Page" {
		t.Errorf("Resolve() = %q, want host-less https URL", got)
	}
}

func TestResolverResolvePage(t *testing.T) {
	resolver := &Resolver{
		Fallbacks: []HostFallback{{PathPrefix: "/wiki", Host: "en.wikibooks.org"}},
	}

	tests := []struct {
		name      string
		base      string
		candidate string
		expected  string
	}{
		{
			name:      "wiki link on homepage moves to fallback host",
			base:      "https://www.openscad.org/cheatsheet/index.html",
			candidate: "/wiki/OpenSCAD_User_Manual/The_OpenSCAD_Language#cube",
			expected:  "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual/The_OpenSCAD_Language#cube",
		},
		{
			name:      "non-matching root-relative link stays on base host",
			base:      "https://www.openscad.org/cheatsheet/index.html",
			candidate: "/documentation.html",
			expected:  "https://www.openscad.org/documentation.html",
		},
		{
			name:      "document-relative link ignores fallback",
			base:      "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual/",
			candidate: "First_Steps",
			expected:  "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual/First_Steps",
		},
		{
			name:      "absolute link untouched",
			base:      "https://www.openscad.org/",
			candidate: "https://files.openscad.org/wiki/x",
			expected:  "https://files.openscad.org/wiki/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.ResolvePage(tt.base, tt.candidate)
			if err != nil {
				t.Fatalf("ResolvePage() error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("ResolvePage(%q, %q) = %q, want %q", tt.base, tt.candidate, got, tt.expected)
			}
		})
	}
}
