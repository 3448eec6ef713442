// Package audit keeps an append-only trail of human review decisions on
// duplicate relationships.
package audit

import (
	"fmt"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Decision outcomes accepted by the tracker.
const (
	DecisionConfirmed = "confirmed"
	DecisionRejected  = "rejected"
	DecisionUnsure    = "unsure"
)

// Decision records one reviewer's verdict on a possible duplicate.
type Decision struct {
	GUID      string    `json:"guid"`
	Decision  string    `json:"decision"`
	Reviewer  string    `json:"reviewer,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// ValidDecision reports whether a verdict string is one the trail
// accepts.
func ValidDecision(d string) bool {
	switch d {
	case DecisionConfirmed, DecisionRejected, DecisionUnsure:
		return true
	}
	return false
}

// Tracker appends decisions to a JSON-lines file. Safe for concurrent
// use.
type Tracker struct {
	mu sync.Mutex
	f  *os.File
}

// NewTracker opens or creates the trail file for appending.
func NewTracker(path string) (*Tracker, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail %s: %w", path, err)
	}
	return &Tracker{f: f}, nil
}

// Record appends one decision. A zero DecidedAt is stamped with the
// current time.
func (t *Tracker) Record(d Decision) error {
	if !ValidDecision(d.Decision) {
		return fmt.Errorf("invalid audit decision %q", d.Decision)
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	line, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode audit decision: %w", err)
	}
	line = append(line, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.f.Write(line); err != nil {
		return fmt.Errorf("failed to append audit decision: %w", err)
	}
	return nil
}

// Close closes the trail file.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Close()
}
