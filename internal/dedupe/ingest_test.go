package dedupe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/geo-dedupe/internal/blocking"
	"github.com/geo-dedupe/internal/feature"
	"github.com/geo-dedupe/internal/relevance"
	"github.com/geo-dedupe/internal/store"
)

func newTestIngestor(t *testing.T, geocode bool) (*Ingestor, *store.Store, *Spill) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	spill, err := NewSpill(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create spill: %v", err)
	}

	ing := NewIngestor(IngestorConfig{
		Store:   st,
		Keys:    blocking.NewGenerator(blocking.Options{Geo: true}),
		Spill:   spill,
		Model:   relevance.NewTFIDF(),
		Geocode: geocode,
	})
	return ing, st, spill
}

func placeFeature(name, houseNumber string, coords []float64) *feature.Feature {
	f := &feature.Feature{Type: "Feature"}
	if name != "" {
		f.SetProp(feature.PropName, name)
	}
	if houseNumber != "" {
		f.SetProp(feature.PropHouseNumber, houseNumber)
	}
	if coords != nil {
		f.Geometry = &feature.Geometry{Type: "Point", Coordinates: coords}
	}
	return f
}

func TestIngestAssignsSequentialIDs(t *testing.T) {
	ing, st, _ := newTestIngestor(t, false)

	for i := 0; i < 3; i++ {
		if err := ing.Ingest(placeFeature("Luna Cafe", "9", nil)); err != nil {
			t.Fatalf("Ingest returned error: %v", err)
		}
	}
	if ing.Count() != 3 {
		t.Errorf("Count() = %d, want 3", ing.Count())
	}
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	for id := uint64(0); id < 3; id++ {
		payload, ok, err := st.Get(id)
		if err != nil || !ok {
			t.Fatalf("Get(%d) = (ok=%v, err=%v)", id, ok, err)
		}
		f, err := feature.Unmarshal(payload)
		if err != nil {
			t.Fatalf("failed to decode record %d: %v", id, err)
		}
		if f.GUID() == "" {
			t.Errorf("record %d should have been assigned a guid", id)
		}
	}
}

func TestIngestKeepsExistingGUID(t *testing.T) {
	ing, st, _ := newTestIngestor(t, false)

	f := placeFeature("Luna Cafe", "9", nil)
	f.SetGUID("keep-me")
	if err := ing.Ingest(f); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	payload, _, err := st.Get(0)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	stored, err := feature.Unmarshal(payload)
	if err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if stored.GUID() != "keep-me" {
		t.Errorf("guid = %q, want the ingested one", stored.GUID())
	}
}

func TestIngestNamelessRecord(t *testing.T) {
	ing, st, spill := newTestIngestor(t, false)

	if err := ing.Ingest(placeFeature("", "12", nil)); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if ing.Count() != 1 {
		t.Errorf("Count() = %d, want 1", ing.Count())
	}
	if ing.Nameless() != 1 {
		t.Errorf("Nameless() = %d, want 1", ing.Nameless())
	}
	if spill.Lines() != 0 {
		t.Errorf("a nameless record should spill no keys, got %d", spill.Lines())
	}

	// Persisted regardless, so it still appears in the output.
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if _, ok, _ := st.Get(0); !ok {
		t.Error("nameless record should be stored")
	}
}

func TestIngestEligibleBitmap(t *testing.T) {
	ing, _, _ := newTestIngestor(t, true)

	records := []*feature.Feature{
		placeFeature("Luna Cafe", "9", []float64{-122.4194, 37.7749}),
		placeFeature("Luna Cafe", "9", nil),
		placeFeature("Luna Cafe", "9", []float64{0, 0}),
	}
	for _, f := range records {
		if err := ing.Ingest(f); err != nil {
			t.Fatalf("Ingest returned error: %v", err)
		}
	}

	eligible := ing.Eligible()
	if eligible == nil {
		t.Fatal("geocode mode should track eligible records")
	}
	if !eligible.Contains(0) {
		t.Error("record 0 has coordinates and should be eligible")
	}
	if eligible.Contains(1) {
		t.Error("record 1 has no coordinates")
	}
	if eligible.Contains(2) {
		t.Error("record 2 sits on null island and is unresolved")
	}
}

func TestIngestFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    uint64
	}{
		{
			name: "newline delimited",
			content: `{"type":"Feature","properties":{"name":"Luna Cafe","addr:housenumber":"9"}}
{"type":"Feature","properties":{"name":"Harbor Grill","addr:housenumber":"12"}}
`,
			want: 2,
		},
		{
			name: "feature collection",
			content: `{"type":"FeatureCollection","features":[` +
				`{"type":"Feature","properties":{"name":"Luna Cafe","addr:housenumber":"9"}},` +
				`{"type":"Feature","properties":{"name":"Harbor Grill","addr:housenumber":"12"}}]}`,
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing, _, _ := newTestIngestor(t, false)
			path := filepath.Join(t.TempDir(), "records.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("failed to write input: %v", err)
			}
			if err := ing.IngestFile(path); err != nil {
				t.Fatalf("IngestFile returned error: %v", err)
			}
			if ing.Count() != tt.want {
				t.Errorf("Count() = %d, want %d", ing.Count(), tt.want)
			}
		})
	}
}
