package store

import "testing"

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", defaultRecent},
		{"abc", defaultRecent},
		{"0", defaultRecent},
		{"-3", defaultRecent},
		{"20", 20},
		{"100000", maxRecent},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.raw); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
