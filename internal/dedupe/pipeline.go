package dedupe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/geo-dedupe/internal/blocking"
	"github.com/geo-dedupe/internal/debug"
	"github.com/geo-dedupe/internal/extsort"
	"github.com/geo-dedupe/internal/match"
	"github.com/geo-dedupe/internal/relevance"
	"github.com/geo-dedupe/internal/store"
)

// Options configure a full pipeline run.
type Options struct {
	AddressOnly      bool
	Geocode          bool
	MatchUnits       bool
	CheckPhones      bool
	FuzzyStreets     bool
	RelevanceModel   string
	LikelyThreshold  float64
	ReviewThreshold  float64
	DupesOnly        bool
	DBPath           string
	TempDir          string
	ModelOut         string
	FlushEvery       int
	Workers          int
	Sorter           string
	SortBuffer       string
	Verbose          bool
	GeohashPrecision int
}

// DefaultOptions returns the standard pipeline configuration.
func DefaultOptions() Options {
	return Options{
		RelevanceModel:  relevance.KindTFIDF,
		LikelyThreshold: 0.9,
		ReviewThreshold: 0.7,
		DBPath:          "dedupe.db",
		FlushEvery:      store.DefaultFlushEvery,
		Workers:         1,
		Sorter:          "command",
	}
}

// Pipeline owns the store, model, and graph for one deduplication run.
// Phases run strictly in sequence: ingest, sort, resolve, respond.
type Pipeline struct {
	opts   Options
	store  *store.Store
	model  relevance.Model
	graph  *Graph
	sorter extsort.Sorter

	records     uint64
	groups      uint64
	comparisons uint64
	responses   uint64
}

// NewPipeline validates options and opens the record store.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.ReviewThreshold > opts.LikelyThreshold {
		return nil, fmt.Errorf("review threshold %.2f must not exceed likely threshold %.2f",
			opts.ReviewThreshold, opts.LikelyThreshold)
	}
	var model relevance.Model
	if !opts.AddressOnly {
		var err error
		model, err = relevance.New(opts.RelevanceModel)
		if err != nil {
			return nil, err
		}
	}
	sorter, err := extsort.New(opts.Sorter, opts.SortBuffer, opts.TempDir)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, err
	}
	st.SetFlushEvery(opts.FlushEvery)
	return &Pipeline{
		opts:   opts,
		store:  st,
		model:  model,
		graph:  NewGraph(),
		sorter: sorter,
	}, nil
}

// Close releases the record store.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// Run deduplicates the input files and writes responses to w.
func (p *Pipeline) Run(inputs []string, w io.Writer) error {
	tempDir, err := os.MkdirTemp(p.opts.TempDir, "dedupe-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	spill, err := NewSpill(tempDir)
	if err != nil {
		return err
	}
	keygen := blocking.NewGenerator(blocking.Options{
		AddressOnly:      p.opts.AddressOnly,
		Geo:              true,
		GeohashPrecision: p.opts.GeohashPrecision,
	})
	ing := NewIngestor(IngestorConfig{
		Store:       p.store,
		Keys:        keygen,
		Spill:       spill,
		Model:       p.model,
		AddressOnly: p.opts.AddressOnly,
		Geocode:     p.opts.Geocode,
	})
	for _, input := range inputs {
		if err := ing.IngestFile(input); err != nil {
			return err
		}
	}
	if err := spill.Close(); err != nil {
		return err
	}
	p.records = ing.Count()
	fmt.Printf("Ingested %d records (%d blocking keys)\n", ing.Count(), spill.Lines())

	// The model freezes here so resolution scores reproducibly.
	if p.model != nil {
		p.model.Finalize()
		if p.opts.ModelOut != "" {
			if err := p.model.Save(p.opts.ModelOut); err != nil {
				return err
			}
		}
	}

	if err := p.store.Flush(); err != nil {
		return err
	}
	if err := p.store.Compact(); err != nil {
		return err
	}
	if err := p.store.Flush(); err != nil {
		return err
	}

	sorted := filepath.Join(tempDir, "candidates.sorted.tsv")
	done := debug.Timing(p.opts.Verbose, "sort candidates")
	if err := p.sorter.Sort(spill.Path(), sorted); err != nil {
		return err
	}
	done()

	scorer := match.NewScorer(p.opts.AddressOnly, p.model, p.matchOptions())
	resolver := NewResolver(ResolverConfig{
		Store:    p.store,
		Scorer:   scorer,
		Graph:    p.graph,
		Eligible: ing.Eligible(),
		Workers:  p.opts.Workers,
		Verbose:  p.opts.Verbose,
	})
	done = debug.Timing(p.opts.Verbose, "resolve candidates")
	if err := StreamGroups(sorted, resolver.AddGroup); err != nil {
		return err
	}
	if err := resolver.ResolvePairs(); err != nil {
		return err
	}
	done()
	p.graph.Finalize()
	p.groups = resolver.Groups()
	p.comparisons = resolver.Comparisons()

	builder := NewBuilder(BuilderConfig{
		Store:     p.store,
		Graph:     p.graph,
		Options:   p.matchOptions(),
		DupesOnly: p.opts.DupesOnly,
	})
	n, err := builder.WriteAll(w)
	if err != nil {
		return err
	}
	p.responses = n
	return nil
}

func (p *Pipeline) matchOptions() match.Options {
	return match.Options{
		MatchUnits:      p.opts.MatchUnits,
		CheckPhones:     p.opts.CheckPhones,
		FuzzyStreets:    p.opts.FuzzyStreets,
		LikelyThreshold: p.opts.LikelyThreshold,
		ReviewThreshold: p.opts.ReviewThreshold,
	}
}

// Graph exposes the duplicate graph, finalized once Run returns.
func (p *Pipeline) Graph() *Graph { return p.graph }

// PrintSummary reports the run's counters.
func (p *Pipeline) PrintSummary() {
	counts := p.graph.StatusCounts()
	fmt.Printf("\n=== Deduplication Results ===\n")
	fmt.Printf("Records ingested:  %d\n", p.records)
	fmt.Printf("Candidate groups:  %d\n", p.groups)
	fmt.Printf("Comparisons:       %d\n", p.comparisons)
	fmt.Printf("Responses written: %d\n", p.responses)
	fmt.Printf("Exact dupes:       %d\n", counts[match.ExactDupe])
	fmt.Printf("Likely dupes:      %d\n", counts[match.LikelyDupe])
	fmt.Printf("Needs review:      %d\n", counts[match.NeedsReview])
}
