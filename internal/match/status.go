// Package match classifies pairs of records as duplicates or not.
package match

import "fmt"

// Status orders match outcomes from weakest to strongest evidence.
type Status int

const (
	NonDupe Status = iota
	NeedsReview
	LikelyDupe
	ExactDupe
)

var statusNames = [...]string{"non_dupe", "needs_review", "likely_dupe", "exact_dupe"}

func (s Status) String() string {
	if s < NonDupe || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus maps a wire name back to its Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return NonDupe, fmt.Errorf("unknown match status %q", name)
}

// IsDupe reports whether the status is strong enough to merge records.
func (s Status) IsDupe() bool {
	return s >= LikelyDupe
}

// Classification is the outcome of comparing two records.
type Classification struct {
	Status Status
	Score  float64
}

// Better reports whether c is stronger evidence than other: a strictly
// higher status, or the same status with a higher score.
func (c Classification) Better(other Classification) bool {
	if c.Status != other.Status {
		return c.Status > other.Status
	}
	return c.Score > other.Score
}
