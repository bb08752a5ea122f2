package manifest

import "testing"

func TestRangeSatisfied(t *testing.T) {
	tests := []struct {
		rng      string
		version  string
		expected bool
	}{
		{"^1.2.0", "1.2.3", true},
		{"^1.2.0", "1.9.9", true},
		{"^1.2.0", "2.0.0", false},
		{"^1.2.0", "1.1.0", false},
		{"^0.4.0", "0.4.9", true},
		{"^0.4.0", "0.5.0", false},
		{"~1.2.0", "1.2.9", true},
		{"~1.2.0", "1.3.0", false},
		{"1.2.3", "1.2.3", true},
		{"1.2.3", "1.2.4", false},
		{">=1.0.0", "2.0.0", true},
		{">=1.0.0", "0.9.0", false},
		{"<2.0.0", "1.9.9", true},
		{"<2.0.0", "2.0.0", false},
		{"*", "9.9.9", true},
		{"workspace:*", "1.0.0", true},
		{"workspace:^", "1.0.0", true},
		{"", "1.0.0", true},
		{"1.x", "1.5.0", true},            // not evaluated
		{">=1.0.0 <2.0.0", "5.0.0", true}, // compound: not evaluated
		{"^1.0.0", "not-a-version", false},
	}

	for _, tc := range tests {
		t.Run(tc.rng+"/"+tc.version, func(t *testing.T) {
			if got := RangeSatisfied(tc.rng, tc.version); got != tc.expected {
				t.Errorf("RangeSatisfied(%q, %q) = %v, want %v", tc.rng, tc.version, got, tc.expected)
			}
		})
	}
}
