package dedupe

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// maxSpillLine bounds one key/ID line in the sorted spill file.
const maxSpillLine = 1 << 20

// Group is one maximal run of records sharing a blocking key. IDs are
// distinct and keep the order they first appeared in the run.
type Group struct {
	Key string
	IDs []uint64
}

// StreamGroups reads a key-sorted spill file and invokes fn once per key.
// Memory use is bounded by the largest single group.
func StreamGroups(path string, fn func(Group) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open sorted candidates: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxSpillLine)

	var cur Group
	var seen map[uint64]struct{}
	flush := func() error {
		if seen == nil {
			return nil
		}
		return fn(cur)
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return fmt.Errorf("malformed candidate line %d: %q", lineNo, line)
		}
		key := line[:tab]
		id, err := strconv.ParseUint(line[tab+1:], 10, 64)
		if err != nil {
			return fmt.Errorf("malformed candidate line %d: %w", lineNo, err)
		}

		if seen == nil || key != cur.Key {
			if err := flush(); err != nil {
				return err
			}
			cur = Group{Key: key}
			seen = make(map[uint64]struct{})
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		cur.IDs = append(cur.IDs, id)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read sorted candidates: %w", err)
	}
	return flush()
}
