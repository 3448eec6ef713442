package match

import (
	"testing"
)

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"", "a", 1},
		{"abc", "abc", 0},
		{"abc", "ab", 1},  // deletion
		{"ab", "abc", 1},  // insertion
		{"abc", "adc", 1}, // substitution
		{"abc", "acb", 1}, // transposition (Damerau)
		{"abc", "def", 3}, // all different
		{"kitten", "sitting", 3},
		{"ca", "abc", 3}, // non-adjacent rearrangement stays three edits
	}

	for _, tt := range tests {
		got := EditDistance(tt.a, tt.b, 10)
		if got != tt.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEditDistanceEarlyExit(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		maxDist int
	}{
		{
			name:    "distance exceeds max",
			a:       "abc",
			b:       "xyz",
			maxDist: 1,
		},
		{
			name:    "length gap exceeds max",
			a:       "a",
			b:       "abcde",
			maxDist: 2,
		},
		{
			name:    "negative max",
			a:       "abc",
			b:       "abc",
			maxDist: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EditDistance(tt.a, tt.b, tt.maxDist)
			if got != -1 {
				t.Errorf("EditDistance(%q, %q, %d) = %d, want -1", tt.a, tt.b, tt.maxDist, got)
			}
		})
	}
}

func TestEditSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"abcd", "abcx", 0.75},
		{"main", "mian", 0.75}, // transposition
		{"abc", "xyz", 0},
	}

	for _, tt := range tests {
		got := EditSimilarity(tt.a, tt.b)
		if got != tt.want {
			t.Errorf("EditSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func BenchmarkEditDistance(b *testing.B) {
	for i := 0; i < b.N; i++ {
		EditDistance("waterlooville", "waterloville", 2)
	}
}
