package urlutil

import "testing"

func TestScopeContains(t *testing.T) {
	scope := Scope{
		{Domain: "en.wikibooks.org", PathPrefixes: []string{"/wiki/OpenSCAD_User_Manual"}},
		{Domain: "www.openscad.org"},
	}

	tests := []struct {
		name      string
		targetURL string
		expected  bool
	}{
		{
			name:      "manual page",
			targetURL: "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual/First_Steps",
			expected:  true,
		},
		{
			name:      "manual root",
			targetURL: "https://en.wikibooks.org/wiki/OpenSCAD_User_Manual",
			expected:  true,
		},
		{
			name:      "other wikibook on same domain",
			targetURL: "https://en.wikibooks.org/wiki/Blender_3D",
			expected:  false,
		},
		{
			name:      "primary domain any path",
			targetURL: "https://www.openscad.org/documentation.html",
			expected:  true,
		},
		{
			name:      "host match is case-insensitive",
			targetURL: "https://WWW.OpenSCAD.org/news",
			expected:  true,
		},
		{
			name:      "subdomain is not same-site",
			targetURL: "https://files.openscad.org/release.zip",
			expected:  false,
		},
		{
			name:      "third-party domain",
			targetURL: "https://github.com/openscad/openscad",
			expected:  false,
		},
		{
			name:      "non-http scheme",
			targetURL: "mailto:someone@openscad.org",
			expected:  false,
		},
		{
			name:      "relative reference",
			targetURL: "/wiki/OpenSCAD_User_Manual/First_Steps",
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scope.Contains(tt.targetURL)
			if got != tt.expected {
				t.Errorf("Contains(%q) = %v, want %v", tt.targetURL, got, tt.expected)
			}
		})
	}
}

func TestIsHTTPScheme(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{
			name:     "https scheme",
			input:    "https://example.com",
			expected: true,
		},
		{
			name:     "http scheme",
			input:    "http://example.com",
			expected: true,
		},
		{
			name:     "mailto scheme",
			input:    "mailto:user@example.com",
			expected: false,
		},
		{
			name:     "javascript scheme",
			input:    "javascript:void(0)",
			expected: false,
		},
		{
			name:     "ftp scheme",
			input:    "ftp://files.example.com",
			expected: false,
		},
		{
			name:     "empty string",
			input:    "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsHTTPScheme(tt.input)
			if got != tt.expected {
				t.Errorf("IsHTTPScheme(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestReferenceShapes(t *testing.T) {
	if !IsFragmentOnly("#Cube") {
		t.Error("IsFragmentOnly(#Cube) = false, want true")
	}
	if IsFragmentOnly("First_Steps#Cube") {
		t.Error("IsFragmentOnly(First_Steps#Cube) = true, want false")
	}
	if !IsProtocolRelative("//upload.wikimedia.org/a.png") {
		t.Error("IsProtocolRelative(//upload...) = false, want true")
	}
	if IsProtocolRelative("/wiki/Main_Page") {
		t.Error("IsProtocolRelative(/wiki/Main_Page) = true, want false")
	}
}
