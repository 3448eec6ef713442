package match

import (
	"testing"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{NonDupe, "non_dupe"},
		{NeedsReview, "needs_review"},
		{LikelyDupe, "likely_dupe"},
		{ExactDupe, "exact_dupe"},
		{Status(9), "status(9)"},
	}

	for _, tt := range tests {
		got := tt.status.String()
		if got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int(tt.status), got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{NonDupe, NeedsReview, LikelyDupe, ExactDupe} {
		got, err := ParseStatus(s.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q) returned error: %v", s.String(), err)
		}
		if got != s {
			t.Errorf("ParseStatus(%q) = %v, want %v", s.String(), got, s)
		}
	}

	if _, err := ParseStatus("bogus"); err == nil {
		t.Error("ParseStatus should reject an unknown name")
	}
}

func TestStatusIsDupe(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{NonDupe, false},
		{NeedsReview, false},
		{LikelyDupe, true},
		{ExactDupe, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsDupe(); got != tt.want {
			t.Errorf("%s.IsDupe() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestClassificationBetter(t *testing.T) {
	tests := []struct {
		name  string
		c     Classification
		other Classification
		want  bool
	}{
		{
			name:  "higher status wins",
			c:     Classification{Status: LikelyDupe, Score: 0.5},
			other: Classification{Status: NeedsReview, Score: 0.99},
			want:  true,
		},
		{
			name:  "lower status loses",
			c:     Classification{Status: NeedsReview, Score: 0.99},
			other: Classification{Status: LikelyDupe, Score: 0.5},
			want:  false,
		},
		{
			name:  "same status higher score wins",
			c:     Classification{Status: LikelyDupe, Score: 0.95},
			other: Classification{Status: LikelyDupe, Score: 0.91},
			want:  true,
		},
		{
			name:  "equal evidence is not better",
			c:     Classification{Status: LikelyDupe, Score: 0.95},
			other: Classification{Status: LikelyDupe, Score: 0.95},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Better(tt.other); got != tt.want {
				t.Errorf("Better() = %v, want %v", got, tt.want)
			}
		})
	}
}
