// SPDX-License-Identifier: MPL-2.0

package resolve

import "testing"

func TestPatternKeyCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "./feat/*", 1},
		{"./feat/*", "./feat/internal/*", 1},
		{"./feat/internal/*", "./feat/*", -1},
		{"./a/*.js", "./a/*", -1},
		{"./a/*", "./a/*.js", 1},
		{"./a/*", "./a/*", 0},
		{"./a/b", "./a/*", -1},
	}

	for _, tt := range tests {
		if got := patternKeyCompare(tt.a, tt.b); got != tt.want {
			t.Errorf("patternKeyCompare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestHasInvalidSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{"lib/index.js", false},
		{"lib//index.js", false},
		{"lib/./index.js", true},
		{"lib/../index.js", true},
		{"node_modules/x.js", true},
		{"Node_Modules/x.js", true},
		{"lib/%2e%2e/x.js", true},
		{`lib\..\x.js`, true},
		{"...js", false},
	}

	for _, tt := range tests {
		if got := hasInvalidSegment(tt.path); got != tt.want {
			t.Errorf("hasInvalidSegment(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
