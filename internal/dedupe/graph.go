package dedupe

import (
	"sort"

	"github.com/geo-dedupe/internal/match"
)

// Relationship is one retained edge pointing at a canonical record.
type Relationship struct {
	Other uint64
	Class match.Classification
}

// Graph accumulates pairwise evidence during resolution. Edges run from
// the duplicate record to its canonical. After Finalize it serves
// read-only lookups for the response builder.
type Graph struct {
	pairs       map[[2]uint64]match.Classification
	dupes       map[uint64]match.Status
	byCanonical map[uint64][]Relationship
	canonicals  map[uint64]struct{}
	finalized   bool
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		pairs: make(map[[2]uint64]match.Classification),
		dupes: make(map[uint64]match.Status),
	}
}

// Update records evidence for the directed pair. Existing evidence is
// only replaced by a strictly higher status, or the same status with a
// higher score, so the best evidence wins regardless of comparison
// order. Returns whether the edge was stored.
func (g *Graph) Update(canonical, other uint64, class match.Classification) bool {
	key := [2]uint64{canonical, other}
	if cur, ok := g.pairs[key]; ok && !class.Better(cur) {
		return false
	}
	g.pairs[key] = class
	if class.Status.IsDupe() {
		if cur, ok := g.dupes[other]; !ok || class.Status > cur {
			g.dupes[other] = class.Status
		}
	}
	return true
}

// Status returns a record's best duplicate status, if it has one.
func (g *Graph) Status(id uint64) (match.Status, bool) {
	s, ok := g.dupes[id]
	return s, ok
}

// IsDupe reports whether a record was classified a duplicate of anything.
func (g *Graph) IsDupe(id uint64) bool {
	s, ok := g.dupes[id]
	return ok && s.IsDupe()
}

// IsExact reports whether a record is an exact duplicate of anything.
func (g *Graph) IsExact(id uint64) bool {
	return g.dupes[id] == match.ExactDupe
}

// Finalize indexes the edges by canonical for output. The graph must not
// be updated afterwards.
func (g *Graph) Finalize() {
	if g.finalized {
		return
	}
	g.finalized = true
	g.byCanonical = make(map[uint64][]Relationship)
	g.canonicals = make(map[uint64]struct{})
	for key, class := range g.pairs {
		canonical, other := key[0], key[1]
		g.byCanonical[canonical] = append(g.byCanonical[canonical], Relationship{Other: other, Class: class})
		g.canonicals[canonical] = struct{}{}
	}
	for _, rels := range g.byCanonical {
		sort.Slice(rels, func(i, j int) bool { return rels[i].Other > rels[j].Other })
	}
}

// Related returns the relationships pointing at a canonical, sorted by
// other ID descending. Only valid after Finalize.
func (g *Graph) Related(id uint64) []Relationship {
	return g.byCanonical[id]
}

// IsCanonical reports whether any record points at id. Only valid after
// Finalize.
func (g *Graph) IsCanonical(id uint64) bool {
	_, ok := g.canonicals[id]
	return ok
}

// Members returns every record touching a retained relationship, either
// side, in ascending ID order.
func (g *Graph) Members() []uint64 {
	seen := make(map[uint64]struct{}, 2*len(g.pairs))
	for key := range g.pairs {
		seen[key[0]] = struct{}{}
		seen[key[1]] = struct{}{}
	}
	ids := make([]uint64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Pairs returns how many directed relationships are retained.
func (g *Graph) Pairs() int { return len(g.pairs) }

// Dupes returns how many records are classified duplicates.
func (g *Graph) Dupes() int { return len(g.dupes) }

// StatusCounts tallies retained relationships by status.
func (g *Graph) StatusCounts() map[match.Status]int {
	counts := make(map[match.Status]int)
	for _, class := range g.pairs {
		counts[class.Status]++
	}
	return counts
}
