// Package dedupe runs the blocking and resolution pipeline that turns raw
// records into duplicate-annotated responses.
package dedupe

import (
	"bufio"
	"fmt"
	"os"
)

// Spill accumulates (key, id) lines destined for the external sort.
type Spill struct {
	f     *os.File
	w     *bufio.Writer
	lines uint64
}

// NewSpill creates a spill file inside dir.
func NewSpill(dir string) (*Spill, error) {
	f, err := os.CreateTemp(dir, "candidates-*.tsv")
	if err != nil {
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}
	return &Spill{f: f, w: bufio.NewWriterSize(f, 256<<10)}, nil
}

// Append writes one blocking key and record ID as a tab-separated line.
func (s *Spill) Append(key string, id uint64) error {
	if _, err := fmt.Fprintf(s.w, "%s\t%d\n", key, id); err != nil {
		return fmt.Errorf("failed to write spill line: %w", err)
	}
	s.lines++
	return nil
}

// Lines returns how many lines have been appended.
func (s *Spill) Lines() uint64 { return s.lines }

// Path returns the spill file's location for the sorter.
func (s *Spill) Path() string { return s.f.Name() }

// Close flushes buffered lines and closes the file. Must run before the
// file is sorted.
func (s *Spill) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("failed to flush spill file: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("failed to close spill file: %w", err)
	}
	return nil
}
