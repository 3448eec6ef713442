package dedupe

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeCandidates(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candidates.sorted.tsv")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("failed to write candidates: %v", err)
	}
	return path
}

func collectGroups(t *testing.T, path string) []Group {
	t.Helper()
	var groups []Group
	err := StreamGroups(path, func(g Group) error {
		ids := make([]uint64, len(g.IDs))
		copy(ids, g.IDs)
		groups = append(groups, Group{Key: g.Key, IDs: ids})
		return nil
	})
	if err != nil {
		t.Fatalf("StreamGroups returned error: %v", err)
	}
	return groups
}

func TestStreamGroups(t *testing.T) {
	path := writeCandidates(t, "a\t1\na\t2\na\t1\nb\t3\nc\t5\nc\t4\n")

	got := collectGroups(t, path)
	want := []Group{
		{Key: "a", IDs: []uint64{1, 2}},
		{Key: "b", IDs: []uint64{3}},
		{Key: "c", IDs: []uint64{5, 4}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("StreamGroups produced %v, want %v", got, want)
	}
}

func TestStreamGroupsEmptyFile(t *testing.T) {
	path := writeCandidates(t, "")
	if got := collectGroups(t, path); len(got) != 0 {
		t.Errorf("StreamGroups on empty input produced %v", got)
	}
}

func TestStreamGroupsMalformedLines(t *testing.T) {
	tests := []struct {
		name  string
		lines string
	}{
		{
			name:  "missing tab",
			lines: "a 1\n",
		},
		{
			name:  "bad id",
			lines: "a\tx\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCandidates(t, tt.lines)
			err := StreamGroups(path, func(Group) error { return nil })
			if err == nil {
				t.Error("StreamGroups should reject malformed input")
			}
		})
	}
}

func TestStreamGroupsCallbackError(t *testing.T) {
	path := writeCandidates(t, "a\t1\nb\t2\n")
	wantErr := os.ErrClosed
	err := StreamGroups(path, func(Group) error { return wantErr })
	if err != wantErr {
		t.Errorf("StreamGroups returned %v, want the callback error", err)
	}
}

func TestSpillRoundTrip(t *testing.T) {
	spill, err := NewSpill(t.TempDir())
	if err != nil {
		t.Fatalf("NewSpill returned error: %v", err)
	}

	// Appended in key order so the file streams as groups directly.
	appends := []struct {
		key string
		id  uint64
	}{
		{"nm|JS|hn|123", 0},
		{"nm|JS|hn|123", 1},
		{"nm|PZ|hn|123", 0},
		{"nm|PZ|hn|123", 1},
	}
	for _, a := range appends {
		if err := spill.Append(a.key, a.id); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}
	if spill.Lines() != 4 {
		t.Errorf("Lines() = %d, want 4", spill.Lines())
	}
	if err := spill.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	got := collectGroups(t, spill.Path())
	want := []Group{
		{Key: "nm|JS|hn|123", IDs: []uint64{0, 1}},
		{Key: "nm|PZ|hn|123", IDs: []uint64{0, 1}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("spill produced %v, want %v", got, want)
	}
}
