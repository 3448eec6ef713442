package feature

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// maxLineBytes bounds one newline-delimited record.
const maxLineBytes = 16 << 20

// Reader streams features one at a time from a GeoJSON FeatureCollection
// or a newline-delimited feature file. The whole input is never held in
// memory.
type Reader struct {
	dec     *json.Decoder
	scan    *bufio.Scanner
	done    bool
	closers []io.Closer
}

// Open opens a record file for streaming. Files ending in .gz are
// decompressed transparently.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	var src io.Reader = f
	closers := []io.Closer{f}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		src = gz
		closers = []io.Closer{gz, f}
	}
	r, err := NewReader(src)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	r.closers = closers
	return r, nil
}

// NewReader wraps an uncompressed record stream, sniffing whether it is a
// FeatureCollection or newline-delimited features.
func NewReader(src io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(src, 64<<10)
	head, _ := br.Peek(4096)
	r := &Reader{}
	if bytes.Contains(head, []byte(`"FeatureCollection"`)) {
		r.dec = json.NewDecoder(br)
		if err := r.seekFeatures(); err != nil {
			return nil, err
		}
		return r, nil
	}
	r.scan = bufio.NewScanner(br)
	r.scan.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	return r, nil
}

// seekFeatures positions the decoder inside the collection's features array.
func (r *Reader) seekFeatures() error {
	tok, err := r.dec.Token()
	if err != nil {
		return fmt.Errorf("failed to parse collection: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("failed to parse collection: expected object, got %v", tok)
	}
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return fmt.Errorf("failed to parse collection: %w", err)
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			r.done = true
			return nil
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("failed to parse collection: unexpected token %v", tok)
		}
		if key == "features" {
			tok, err = r.dec.Token()
			if err != nil {
				return fmt.Errorf("failed to parse collection: %w", err)
			}
			if d, ok := tok.(json.Delim); !ok || d != '[' {
				return fmt.Errorf("failed to parse collection: features is not an array")
			}
			return nil
		}
		var skip json.RawMessage
		if err := r.dec.Decode(&skip); err != nil {
			return fmt.Errorf("failed to parse collection: %w", err)
		}
	}
}

// Next returns the next feature, or io.EOF once the stream is exhausted.
func (r *Reader) Next() (*Feature, error) {
	if r.scan != nil {
		return r.nextLine()
	}
	if r.done {
		return nil, io.EOF
	}
	if !r.dec.More() {
		if _, err := r.dec.Token(); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to parse collection: %w", err)
		}
		r.done = true
		return nil, io.EOF
	}
	var f Feature
	if err := r.dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode feature: %w", err)
	}
	return &f, nil
}

func (r *Reader) nextLine() (*Feature, error) {
	for r.scan.Scan() {
		line := bytes.TrimSpace(r.scan.Bytes())
		if len(line) == 0 {
			continue
		}
		var f Feature
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, fmt.Errorf("failed to decode feature line: %w", err)
		}
		return &f, nil
	}
	if err := r.scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read record stream: %w", err)
	}
	return nil, io.EOF
}

// Close releases the underlying file handles.
func (r *Reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
