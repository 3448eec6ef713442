package dedupe

import (
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"

	"github.com/geo-dedupe/internal/blocking"
	"github.com/geo-dedupe/internal/feature"
	"github.com/geo-dedupe/internal/normalize"
	"github.com/geo-dedupe/internal/relevance"
	"github.com/geo-dedupe/internal/store"
)

// IngestorConfig wires the ingestion pass.
type IngestorConfig struct {
	Store       *store.Store
	Keys        *blocking.Generator
	Spill       *Spill
	Model       relevance.Model
	AddressOnly bool
	Geocode     bool
}

// Ingestor assigns sequential IDs, persists records, and spills their
// blocking keys. One global counter spans all input files.
type Ingestor struct {
	cfg      IngestorConfig
	next     uint64
	eligible *roaring64.Bitmap
	nameless uint64
}

// NewIngestor returns an ingestor starting at ID zero.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	ing := &Ingestor{cfg: cfg}
	if cfg.Geocode {
		ing.eligible = roaring64.New()
	}
	return ing
}

// IngestFile streams one input file through Ingest.
func (ing *Ingestor) IngestFile(path string) error {
	r, err := feature.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		f, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := ing.Ingest(f); err != nil {
			return err
		}
		if ing.next%1000 == 0 {
			fmt.Printf("Ingested %d records\n", ing.next)
		}
	}
}

// Ingest persists one record under the next ID and spills its blocking
// keys. In name mode a nameless record is persisted but contributes no
// keys and no model update.
func (ing *Ingestor) Ingest(f *feature.Feature) error {
	id := ing.next
	ing.next++

	normalize.BackfillAddress(f)
	if f.GUID() == "" {
		f.SetGUID(uuid.NewString())
	}
	payload, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode record %d: %w", id, err)
	}
	if err := ing.cfg.Store.Put(id, payload); err != nil {
		return err
	}

	if ing.eligible != nil {
		if lng, lat, ok := f.Coordinates(); ok && feature.ValidCoordinates(lat, lng) {
			ing.eligible.Add(id)
		}
	}

	if !ing.cfg.AddressOnly {
		tokens := normalize.Tokens(f.Name())
		if len(tokens) == 0 {
			ing.nameless++
			return nil
		}
		if ing.cfg.Model != nil {
			if err := ing.cfg.Model.Update(tokens); err != nil {
				return fmt.Errorf("failed to update relevance model: %w", err)
			}
		}
	}

	for _, key := range ing.cfg.Keys.Keys(f) {
		if err := ing.cfg.Spill.Append(key, id); err != nil {
			return err
		}
	}
	return nil
}

// Count returns how many records have been ingested.
func (ing *Ingestor) Count() uint64 { return ing.next }

// Eligible returns the geocode-eligible ID set, nil outside geocode mode.
func (ing *Ingestor) Eligible() *roaring64.Bitmap { return ing.eligible }

// Nameless returns how many records were skipped for blocking in name
// mode.
func (ing *Ingestor) Nameless() uint64 { return ing.nameless }
