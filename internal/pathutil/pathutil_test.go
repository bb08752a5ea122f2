package pathutil

import "testing"

func TestKindOf(t *testing.T) {
	tests := []struct {
		path     string
		expected Kind
	}{
		{"src/app.js", KindRelative},
		{"./src", KindRelative},
		{"../up", KindRelative},
		{"/usr/local", KindAbsolute},
		{"C:/Users/dev", KindAbsolute},
		{"C:\\Users\\dev", KindAbsolute},
		{"\\\\server\\share", KindAbsolute},
		{"", KindRelative},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := KindOf(tc.path); got != tc.expected {
				t.Errorf("KindOf(%q) = %v, want %v", tc.path, got, tc.expected)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"", "."},
		{".", "."},
		{"a/b/../c", "a/c"},
		{"a//b/", "a/b"},
		{"packages\\core\\src", "packages/core/src"},
	}

	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.expected {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.expected)
		}
	}
}

func TestUnder(t *testing.T) {
	tests := []struct {
		dir      string
		path     string
		expected bool
	}{
		{"packages/core", "packages/core/src/index.js", true},
		{"packages/core", "packages/core", true},
		{"packages/core", "packages/core-utils/src/a.js", false},
		{"packages/core", "README.md", false},
		{".", "anything/at/all.txt", true},
		{"packages/core/", "packages/core/a.js", true},
	}

	for _, tc := range tests {
		if got := Under(tc.dir, tc.path); got != tc.expected {
			t.Errorf("Under(%q, %q) = %v, want %v", tc.dir, tc.path, got, tc.expected)
		}
	}
}

func TestRel(t *testing.T) {
	rel, ok := Rel("/repo", "/repo/packages/core/index.js")
	if !ok || rel != "packages/core/index.js" {
		t.Errorf("Rel = %q, %v", rel, ok)
	}

	if _, ok := Rel("/repo", "/other/file.js"); ok {
		t.Error("Rel should reject paths outside root")
	}
}
