// Package extsort orders candidate spill files that may be too large to
// sort in memory.
package extsort

import (
	"bufio"
	"container/heap"
	"fmt"
	"os"
	"os/exec"
	"sort"
)

// DefaultChunkLines is how many lines the merge sorter holds in memory
// per run.
const DefaultChunkLines = 1 << 19

// maxLineBytes matches the longest line the spill writer can emit.
const maxLineBytes = 1 << 20

// Sorter writes the lines of src to dst in ascending byte order.
type Sorter interface {
	Sort(src, dst string) error
}

// New selects a sorter by name. The default shells out to sort(1); the
// merge sorter runs fully in-process and needs no external binary.
func New(name, bufferSize, tempDir string) (Sorter, error) {
	switch name {
	case "", "command":
		return &CommandSorter{BufferSize: bufferSize, TempDir: tempDir}, nil
	case "merge":
		return &MergeSorter{}, nil
	default:
		return nil, fmt.Errorf("unknown sorter %q", name)
	}
}

// CommandSorter runs the system sort utility. LC_ALL=C forces byte
// ordering so its output matches the merge sorter's exactly.
type CommandSorter struct {
	BufferSize string
	TempDir    string
}

// Sort shells out to sort(1), keyed on the tab-separated first field.
func (s *CommandSorter) Sort(src, dst string) error {
	args := []string{"-t", "\t", "-k", "1,1", "-o", dst, src}
	if s.BufferSize != "" {
		args = append(args, "-S", s.BufferSize)
	}
	if s.TempDir != "" {
		args = append(args, "-T", s.TempDir)
	}
	cmd := exec.Command("sort", args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("external sort failed: %w (%s)", err, out)
	}
	return nil
}

// MergeSorter sorts in bounded memory: sorted runs spill to disk beside
// dst, then a heap merges them back into one file.
type MergeSorter struct {
	ChunkLines int
}

// Sort writes the sorted lines of src to dst.
func (s *MergeSorter) Sort(src, dst string) error {
	chunk := s.ChunkLines
	if chunk <= 0 {
		chunk = DefaultChunkLines
	}
	runs, err := writeRuns(src, dst, chunk)
	if err != nil {
		removeRuns(runs)
		return err
	}
	defer removeRuns(runs)
	return mergeRuns(runs, dst)
}

// writeRuns splits src into sorted run files of at most chunk lines.
func writeRuns(src, dst string, chunk int) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()

	var runs []string
	lines := make([]string, 0, chunk)
	flush := func() error {
		if len(lines) == 0 {
			return nil
		}
		sort.Strings(lines)
		path := fmt.Sprintf("%s.run%d", dst, len(runs))
		if err := writeRun(path, lines); err != nil {
			return err
		}
		runs = append(runs, path)
		lines = lines[:0]
		return nil
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) >= chunk {
			if err := flush(); err != nil {
				return runs, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return runs, fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := flush(); err != nil {
		return runs, err
	}
	return runs, nil
}

func writeRun(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write run %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close run %s: %w", path, err)
	}
	return nil
}

type mergeItem struct {
	line string
	src  int
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].line < h[j].line }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(mergeItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// mergeRuns streams the runs back together. Zero runs still produce an
// empty dst so downstream opens never fail.
func mergeRuns(runs []string, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	w := bufio.NewWriter(out)

	files := make([]*os.File, 0, len(runs))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	scanners := make([]*bufio.Scanner, len(runs))
	h := make(mergeHeap, 0, len(runs))
	for i, path := range runs {
		f, err := os.Open(path)
		if err != nil {
			out.Close()
			return fmt.Errorf("failed to open run %s: %w", path, err)
		}
		files = append(files, f)
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
		scanners[i] = sc
		if sc.Scan() {
			h = append(h, mergeItem{line: sc.Text(), src: i})
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		it := heap.Pop(&h).(mergeItem)
		w.WriteString(it.line)
		w.WriteByte('\n')
		if scanners[it.src].Scan() {
			heap.Push(&h, mergeItem{line: scanners[it.src].Text(), src: it.src})
		}
	}
	for _, sc := range scanners {
		if err := sc.Err(); err != nil {
			out.Close()
			return fmt.Errorf("failed to read run: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}

func removeRuns(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
