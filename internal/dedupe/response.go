package dedupe

import (
	"bufio"
	"fmt"
	"io"

	json "github.com/goccy/go-json"

	"github.com/geo-dedupe/internal/feature"
	"github.com/geo-dedupe/internal/match"
	"github.com/geo-dedupe/internal/store"
)

// Response is one output line: the original record annotated with its
// duplicate relationships.
type Response struct {
	IsDupe        bool             `json:"is_dupe"`
	GUID          string           `json:"guid,omitempty"`
	Object        *feature.Feature `json:"object"`
	PossibleDupes []PossibleDupe   `json:"possible_dupes,omitempty"`
	Explain       *Explain         `json:"explain,omitempty"`
}

// PossibleDupe describes one record pointing at this canonical. The GUID
// is only attached when the listed record is not itself a canonical, so
// consumers can trace multi-hop chains.
type PossibleDupe struct {
	Classification string           `json:"classification"`
	Similarity     float64          `json:"similarity"`
	IsCanonical    bool             `json:"is_canonical"`
	GUID           string           `json:"guid,omitempty"`
	Object         *feature.Feature `json:"object"`
}

// Explain documents the parameters a run classified with.
type Explain struct {
	LikelyThreshold float64 `json:"likely_dupe_threshold"`
	ReviewThreshold float64 `json:"needs_review_threshold"`
	WithUnit        bool    `json:"with_unit"`
}

// BuilderConfig wires the response builder.
type BuilderConfig struct {
	Store     *store.Store
	Graph     *Graph
	Options   match.Options
	DupesOnly bool
}

// Builder emits one annotated response per record. The graph must be
// finalized first.
type Builder struct {
	cfg     BuilderConfig
	explain *Explain
}

// NewBuilder returns a builder sharing one explain payload across all
// responses.
func NewBuilder(cfg BuilderConfig) *Builder {
	return &Builder{
		cfg: cfg,
		explain: &Explain{
			LikelyThreshold: cfg.Options.LikelyThreshold,
			ReviewThreshold: cfg.Options.ReviewThreshold,
			WithUnit:        cfg.Options.MatchUnits,
		},
	}
}

// WriteAll streams responses to w as JSON lines in ascending ID order and
// returns how many were written. Dupes-only mode restricts the pass to
// records touching a retained relationship.
func (b *Builder) WriteAll(w io.Writer) (uint64, error) {
	bw := bufio.NewWriterSize(w, 256<<10)
	var count uint64
	emit := func(id uint64, payload []byte) error {
		resp, err := b.Build(id, payload)
		if err != nil {
			return err
		}
		line, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to encode response %d: %w", id, err)
		}
		if _, err := bw.Write(line); err != nil {
			return fmt.Errorf("failed to write response %d: %w", id, err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write response %d: %w", id, err)
		}
		count++
		return nil
	}

	if b.cfg.DupesOnly {
		for _, id := range b.cfg.Graph.Members() {
			payload, ok, err := b.cfg.Store.Get(id)
			if err != nil {
				return count, err
			}
			if !ok {
				return count, fmt.Errorf("record %d missing from store", id)
			}
			if err := emit(id, payload); err != nil {
				return count, err
			}
		}
	} else {
		sc, err := b.cfg.Store.Scan()
		if err != nil {
			return count, err
		}
		defer sc.Close()
		for {
			id, payload, ok := sc.Next()
			if !ok {
				break
			}
			if err := emit(id, payload); err != nil {
				return count, err
			}
		}
		if err := sc.Err(); err != nil {
			return count, err
		}
	}

	if err := bw.Flush(); err != nil {
		return count, fmt.Errorf("failed to flush responses: %w", err)
	}
	return count, nil
}

// Build assembles the response for one stored record. Non-duplicates
// surface their GUID; duplicates inherit their canonical's downstream.
func (b *Builder) Build(id uint64, payload []byte) (*Response, error) {
	f, err := feature.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %d: %w", id, err)
	}
	resp := &Response{
		IsDupe: b.cfg.Graph.IsDupe(id),
		Object: f,
	}
	if !resp.IsDupe {
		resp.GUID = f.GUID()
	}

	for _, rel := range b.cfg.Graph.Related(id) {
		otherPayload, ok, err := b.cfg.Store.Get(rel.Other)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("record %d missing from store", rel.Other)
		}
		other, err := feature.Unmarshal(otherPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", rel.Other, err)
		}
		pd := PossibleDupe{
			Classification: rel.Class.Status.String(),
			Similarity:     rel.Class.Score,
			IsCanonical:    b.cfg.Graph.IsCanonical(rel.Other),
			Object:         other,
		}
		if !pd.IsCanonical {
			pd.GUID = other.GUID()
		}
		resp.PossibleDupes = append(resp.PossibleDupes, pd)
	}

	if resp.IsDupe || len(resp.PossibleDupes) > 0 {
		resp.Explain = b.explain
	}
	return resp, nil
}
