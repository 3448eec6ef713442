package dedupe

import (
	"fmt"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/geo-dedupe/internal/debug"
	"github.com/geo-dedupe/internal/feature"
	"github.com/geo-dedupe/internal/match"
	"github.com/geo-dedupe/internal/store"
)

// Pair is an unordered candidate pair, stored low ID first.
type Pair struct {
	Low, High uint64
}

func pairOf(a, b uint64) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

// ResolverConfig wires the resolution phase. A non-nil Eligible set
// switches on geocode mode: group members in the set anchor comparisons
// as canonicals.
type ResolverConfig struct {
	Store    *store.Store
	Scorer   match.Scorer
	Graph    *Graph
	Eligible *roaring64.Bitmap
	Workers  int
	Verbose  bool
}

// Resolver consumes candidate groups and fills the duplicate graph.
// Outside geocode mode it queues distinct pairs and resolves them in one
// deterministic pass via ResolvePairs.
type Resolver struct {
	cfg         ResolverConfig
	pairs       []Pair
	pairSeen    map[Pair]struct{}
	groups      uint64
	comparisons uint64
	progress    rate.Sometimes
}

// NewResolver returns a resolver feeding the given graph.
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{
		cfg:      cfg,
		pairSeen: make(map[Pair]struct{}),
		progress: rate.Sometimes{Interval: 3 * time.Second},
	}
}

// AddGroup processes one candidate group. Single-member groups carry no
// pairs and are skipped.
func (r *Resolver) AddGroup(g Group) error {
	if len(g.IDs) < 2 {
		return nil
	}
	r.groups++
	if r.cfg.Eligible != nil {
		if err := r.resolveGeoGroup(g); err != nil {
			return err
		}
	} else {
		r.collectPairs(g)
	}
	r.progress.Do(func() {
		fmt.Printf("Processed %d groups (%d comparisons, %d pairs queued)\n", r.groups, r.comparisons, len(r.pairs))
	})
	return nil
}

// collectPairs queues every unordered pair in the group once. Pairs
// repeated across groups sharing several keys collapse here.
func (r *Resolver) collectPairs(g Group) {
	for i := 0; i < len(g.IDs); i++ {
		for j := i + 1; j < len(g.IDs); j++ {
			p := pairOf(g.IDs[i], g.IDs[j])
			if _, ok := r.pairSeen[p]; ok {
				continue
			}
			r.pairSeen[p] = struct{}{}
			r.pairs = append(r.pairs, p)
		}
	}
}

// resolveGeoGroup compares coordinate-less records against the group's
// coordinate-bearing canonicals, stopping at the first duplicate found
// for each. Records already exact duplicates of something are not
// re-anchored.
func (r *Resolver) resolveGeoGroup(g Group) error {
	var canonicals, others []uint64
	for _, id := range g.IDs {
		if r.cfg.Eligible.Contains(id) {
			canonicals = append(canonicals, id)
		} else if !r.cfg.Graph.IsExact(id) {
			others = append(others, id)
		}
	}
	if len(canonicals) == 0 || len(others) == 0 {
		return nil
	}
	for _, other := range others {
		for _, canonical := range canonicals {
			p := pairOf(canonical, other)
			if _, ok := r.pairSeen[p]; ok {
				continue
			}
			r.pairSeen[p] = struct{}{}
			isDupe, err := r.resolvePair(canonical, other)
			if err != nil {
				return err
			}
			if isDupe {
				break
			}
		}
	}
	return nil
}

// ResolvePairs resolves the queued non-geocode pairs, each exactly once.
// Pairs are sorted first so results do not depend on group arrival order,
// and classification can fan out across workers while graph updates stay
// sequential in pair order.
func (r *Resolver) ResolvePairs() error {
	if r.cfg.Eligible != nil || len(r.pairs) == 0 {
		return nil
	}
	sort.Slice(r.pairs, func(i, j int) bool {
		if r.pairs[i].Low != r.pairs[j].Low {
			return r.pairs[i].Low < r.pairs[j].Low
		}
		return r.pairs[i].High < r.pairs[j].High
	})

	classes := make([]match.Classification, len(r.pairs))
	if r.cfg.Workers > 1 {
		if err := r.classifyParallel(classes); err != nil {
			return err
		}
	} else {
		for i, p := range r.pairs {
			class, err := r.classify(p.Low, p.High)
			if err != nil {
				return err
			}
			classes[i] = class
			r.progress.Do(func() {
				fmt.Printf("Resolved %d/%d pairs\n", i+1, len(r.pairs))
			})
		}
	}

	for i, p := range r.pairs {
		canonical, other := p.Low, p.High
		if r.cfg.Graph.IsDupe(canonical) && !r.cfg.Graph.IsDupe(other) {
			canonical, other = other, canonical
		}
		r.apply(canonical, other, classes[i])
	}
	return nil
}

// classifyParallel splits the pair list into contiguous chunks, one per
// worker. Comparisons only read the store, so no locking is needed.
func (r *Resolver) classifyParallel(classes []match.Classification) error {
	chunk := (len(r.pairs) + r.cfg.Workers - 1) / r.cfg.Workers
	var g errgroup.Group
	for start := 0; start < len(r.pairs); start += chunk {
		end := start + chunk
		if end > len(r.pairs) {
			end = len(r.pairs)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				class, err := r.classify(r.pairs[i].Low, r.pairs[i].High)
				if err != nil {
					return err
				}
				classes[i] = class
			}
			return nil
		})
	}
	return g.Wait()
}

// resolvePair classifies one pair and applies the result. The returned
// bool reports whether the pair resolved as a duplicate.
func (r *Resolver) resolvePair(canonical, other uint64) (bool, error) {
	class, err := r.classify(canonical, other)
	if err != nil {
		return false, err
	}
	return r.apply(canonical, other, class), nil
}

func (r *Resolver) classify(a, b uint64) (match.Classification, error) {
	fa, err := r.load(a)
	if err != nil {
		return match.Classification{}, err
	}
	fb, err := r.load(b)
	if err != nil {
		return match.Classification{}, err
	}
	class := r.cfg.Scorer.Compare(fa, fb)
	debug.Output(r.cfg.Verbose, "compared %d vs %d: %s (%.3f)", a, b, class.Status, class.Score)
	return class, nil
}

func (r *Resolver) load(id uint64) (*feature.Feature, error) {
	payload, ok, err := r.cfg.Store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("record %d missing from store", id)
	}
	return feature.Unmarshal(payload)
}

// apply stores evidence of at least needs-review strength and reports
// whether the pair is a duplicate.
func (r *Resolver) apply(canonical, other uint64, class match.Classification) bool {
	r.comparisons++
	if class.Status >= match.NeedsReview {
		r.cfg.Graph.Update(canonical, other, class)
	}
	return class.Status.IsDupe()
}

// Groups returns how many multi-member groups were seen.
func (r *Resolver) Groups() uint64 { return r.groups }

// Comparisons returns how many pairs were actually compared.
func (r *Resolver) Comparisons() uint64 { return r.comparisons }
