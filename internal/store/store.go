// Package store persists records in an ordered key-value database keyed
// by zero-padded ID, so scans come back in ingestion order.
package store

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/pebble"
)

// DefaultFlushEvery is how many staged writes accumulate before a batch
// commits.
const DefaultFlushEvery = 1000

// Store wraps the database with batched writes. Not safe for concurrent
// writers.
type Store struct {
	db         *pebble.DB
	batch      *pebble.Batch
	pending    int
	flushEvery int
}

// Open opens or creates the store directory.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", dir, err)
	}
	return &Store{db: db, flushEvery: DefaultFlushEvery}, nil
}

// SetFlushEvery overrides the batch size. Values below one are ignored.
func (s *Store) SetFlushEvery(n int) {
	if n > 0 {
		s.flushEvery = n
	}
}

// Key renders an ID as a fixed-width key so lexicographic and numeric
// order agree.
func Key(id uint64) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}

// ParseKey recovers the ID from a store key.
func ParseKey(key []byte) (uint64, error) {
	id, err := strconv.ParseUint(string(key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse store key %q: %w", key, err)
	}
	return id, nil
}

// Put stages one record, committing automatically once the batch fills.
func (s *Store) Put(id uint64, payload []byte) error {
	if s.batch == nil {
		s.batch = s.db.NewBatch()
	}
	if err := s.batch.Set(Key(id), payload, nil); err != nil {
		return fmt.Errorf("failed to stage record %d: %w", id, err)
	}
	s.pending++
	if s.pending >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

// Flush commits any staged records. Safe to call with nothing pending.
func (s *Store) Flush() error {
	if s.batch == nil {
		return nil
	}
	commitErr := s.batch.Commit(pebble.Sync)
	closeErr := s.batch.Close()
	s.batch = nil
	s.pending = 0
	if commitErr != nil {
		return fmt.Errorf("failed to flush records: %w", commitErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close batch: %w", closeErr)
	}
	return nil
}

// Get returns a record's payload. The second result is false when the ID
// was never written. Staged but unflushed records are not visible.
func (s *Store) Get(id uint64) ([]byte, bool, error) {
	value, closer, err := s.db.Get(Key(id))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read record %d: %w", id, err)
	}
	payload := make([]byte, len(value))
	copy(payload, value)
	if err := closer.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to release record %d: %w", id, err)
	}
	return payload, true, nil
}

// Scan opens a fresh ascending pass over every record. Each call starts
// from the lowest ID again.
func (s *Store) Scan() (*Scanner, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open scan: %w", err)
	}
	return &Scanner{iter: iter}, nil
}

// Scanner walks records in ID order.
type Scanner struct {
	iter    *pebble.Iterator
	started bool
	err     error
}

// Next returns the next record, or false once the scan is done or broken.
func (sc *Scanner) Next() (uint64, []byte, bool) {
	var ok bool
	if !sc.started {
		sc.started = true
		ok = sc.iter.First()
	} else {
		ok = sc.iter.Next()
	}
	if !ok {
		return 0, nil, false
	}
	id, err := ParseKey(sc.iter.Key())
	if err != nil {
		sc.err = err
		return 0, nil, false
	}
	value := sc.iter.Value()
	payload := make([]byte, len(value))
	copy(payload, value)
	return id, payload, true
}

// Err reports what stopped the scan, if anything did.
func (sc *Scanner) Err() error {
	if sc.err != nil {
		return sc.err
	}
	return sc.iter.Error()
}

// Close releases the scan's iterator.
func (sc *Scanner) Close() error {
	return sc.iter.Close()
}

// Compact reorganizes the whole key range before the read-heavy
// resolution phase.
func (s *Store) Compact() error {
	if err := s.db.Compact(Key(0), Key(math.MaxUint64), true); err != nil {
		return fmt.Errorf("failed to compact store: %w", err)
	}
	return nil
}

// Count scans the store and returns how many records it holds.
func (s *Store) Count() (uint64, error) {
	sc, err := s.Scan()
	if err != nil {
		return 0, err
	}
	defer sc.Close()
	var n uint64
	for {
		if _, _, ok := sc.Next(); !ok {
			break
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		s.db.Close()
		return err
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
