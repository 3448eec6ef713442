package dedupe

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.DBPath = filepath.Join(t.TempDir(), "db")
	opts.TempDir = t.TempDir()
	// The in-process sorter keeps the tests off the host's sort binary.
	opts.Sorter = "merge"
	return opts
}

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.ndjson")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	return path
}

func runPipeline(t *testing.T, opts Options, inputs ...string) (*Pipeline, []Response, *bytes.Buffer) {
	t.Helper()
	p, err := NewPipeline(opts)
	if err != nil {
		t.Fatalf("NewPipeline returned error: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	var buf bytes.Buffer
	if err := p.Run(inputs, &buf); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return p, parseResponses(t, buf.Bytes()), &buf
}

func parseResponses(t *testing.T, data []byte) []Response {
	t.Helper()
	var responses []Response
	for i, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			t.Fatalf("failed to decode response line %d: %v", i, err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func TestPipelineDuplicatePair(t *testing.T) {
	input := writeInput(t,
		`{"type":"Feature","properties":{"name":"Joe's Pizza","addr:housenumber":"120"}}`,
		`{"type":"Feature","properties":{"name":"Joes Pizza","addr:housenumber":"120"}}`,
	)

	p, responses, _ := runPipeline(t, testOptions(t), input)
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	// Two shared keys, one comparison.
	if p.comparisons != 1 {
		t.Errorf("comparisons = %d, want 1", p.comparisons)
	}

	canonical := responses[0]
	if canonical.IsDupe {
		t.Error("the first record should stay canonical")
	}
	if canonical.GUID == "" {
		t.Error("a canonical record should carry its guid")
	}
	if len(canonical.PossibleDupes) != 1 {
		t.Fatalf("canonical has %d possible dupes, want 1", len(canonical.PossibleDupes))
	}
	pd := canonical.PossibleDupes[0]
	if pd.Classification != "likely_dupe" {
		t.Errorf("classification = %q, want likely_dupe", pd.Classification)
	}
	if pd.Similarity != 1 {
		t.Errorf("similarity = %v, want 1", pd.Similarity)
	}
	if pd.IsCanonical {
		t.Error("the duplicate is not itself canonical")
	}
	if pd.GUID == "" {
		t.Error("a non-canonical possible dupe should carry its guid")
	}
	if got := pd.Object.Name(); got != "Joes Pizza" {
		t.Errorf("possible dupe name = %q, want the duplicate record", got)
	}
	if canonical.Explain == nil {
		t.Fatal("a record with relationships should carry an explain block")
	}
	if canonical.Explain.LikelyThreshold != 0.9 || canonical.Explain.ReviewThreshold != 0.7 {
		t.Errorf("explain thresholds = %v/%v, want 0.9/0.7",
			canonical.Explain.LikelyThreshold, canonical.Explain.ReviewThreshold)
	}

	dupe := responses[1]
	if !dupe.IsDupe {
		t.Error("the second record should be a duplicate")
	}
	if dupe.GUID != "" {
		t.Error("a duplicate should not carry a top-level guid")
	}
	if len(dupe.PossibleDupes) != 0 {
		t.Errorf("the duplicate lists %d possible dupes, want none", len(dupe.PossibleDupes))
	}
	if dupe.Explain == nil {
		t.Error("a duplicate should carry an explain block")
	}
}

func TestPipelineExactDuplicates(t *testing.T) {
	input := writeInput(t,
		`{"type":"Feature","properties":{"name":"Joe's Pizza","addr:street":"Main Street","addr:housenumber":"120"}}`,
		`{"type":"Feature","properties":{"name":"Joes Pizza","addr:street":"Main Street","addr:housenumber":"120"}}`,
	)

	p, responses, _ := runPipeline(t, testOptions(t), input)
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	if !p.graph.IsExact(1) {
		t.Error("record 1 should be an exact duplicate")
	}
	pd := responses[0].PossibleDupes
	if len(pd) != 1 || pd[0].Classification != "exact_dupe" || pd[0].Similarity != 1 {
		t.Errorf("possible dupes = %+v, want one exact match at similarity 1", pd)
	}
}

func TestPipelineGeocodeMode(t *testing.T) {
	input := writeInput(t,
		`{"type":"Feature","geometry":{"type":"Point","coordinates":[-122.4194,37.7749]},"properties":{"name":"Luna Cafe","addr:housenumber":"9"}}`,
		`{"type":"Feature","properties":{"name":"Luna Cafe","addr:housenumber":"9"}}`,
	)

	opts := testOptions(t)
	opts.Geocode = true
	p, responses, _ := runPipeline(t, opts, input)

	// One comparison despite two shared name keys.
	if p.comparisons != 1 {
		t.Errorf("comparisons = %d, want 1", p.comparisons)
	}
	if responses[0].IsDupe {
		t.Error("the coordinate-bearing record anchors the group")
	}
	if len(responses[0].PossibleDupes) != 1 {
		t.Fatalf("anchor lists %d possible dupes, want 1", len(responses[0].PossibleDupes))
	}
	if !responses[1].IsDupe {
		t.Error("the coordinate-less record should fold into its anchor")
	}
}

func TestPipelineChainedDuplicates(t *testing.T) {
	// B shares an address key with A and a location key with C; A and C
	// never meet. B folds into A first, then anchors the B/C pair the
	// other way, so both A and C end up listing B.
	input := writeInput(t,
		`{"type":"Feature","properties":{"name":"Luna Cafe","addr:housenumber":"12"}}`,
		`{"type":"Feature","geometry":{"type":"Point","coordinates":[-122.4194,37.7749]},"properties":{"name":"Luna Cafe","addr:housenumber":"12"}}`,
		`{"type":"Feature","geometry":{"type":"Point","coordinates":[-122.4194,37.7749]},"properties":{"name":"Luna Cafe","addr:postcode":"94103"}}`,
	)

	p, responses, _ := runPipeline(t, testOptions(t), input)
	if len(responses) != 3 {
		t.Fatalf("got %d responses, want 3", len(responses))
	}
	if p.comparisons != 2 {
		t.Errorf("comparisons = %d, want 2", p.comparisons)
	}

	a, b, c := responses[0], responses[1], responses[2]
	if a.IsDupe || c.IsDupe {
		t.Error("the chain ends should stay canonical")
	}
	if !b.IsDupe {
		t.Error("the middle record should be the duplicate")
	}
	if len(a.PossibleDupes) != 1 || len(c.PossibleDupes) != 1 {
		t.Fatalf("both ends should list the middle record: %d and %d",
			len(a.PossibleDupes), len(c.PossibleDupes))
	}
	if len(b.PossibleDupes) != 0 {
		t.Errorf("the middle record lists %d possible dupes, want none", len(b.PossibleDupes))
	}
	// Both ends point at the same stored record.
	if a.PossibleDupes[0].GUID != c.PossibleDupes[0].GUID {
		t.Error("both ends should reference the same duplicate guid")
	}
}

func TestPipelineUniqueRecords(t *testing.T) {
	input := writeInput(t,
		`{"type":"Feature","properties":{"name":"Alpha Books","addr:housenumber":"1","dedupe:guid":"fixed-guid"}}`,
		`{"type":"Feature","properties":{"name":"Zebra Tools","addr:housenumber":"2"}}`,
	)

	p, responses, _ := runPipeline(t, testOptions(t), input)
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	if p.comparisons != 0 {
		t.Errorf("comparisons = %d, want 0", p.comparisons)
	}
	for i, resp := range responses {
		if resp.IsDupe {
			t.Errorf("response %d should not be a duplicate", i)
		}
		if resp.GUID == "" {
			t.Errorf("response %d should carry a guid", i)
		}
		if len(resp.PossibleDupes) != 0 {
			t.Errorf("response %d lists %d possible dupes", i, len(resp.PossibleDupes))
		}
		if resp.Explain != nil {
			t.Errorf("response %d without relationships should omit explain", i)
		}
	}
	// A guid supplied on input survives the run.
	if responses[0].GUID != "fixed-guid" {
		t.Errorf("guid = %q, want the ingested one", responses[0].GUID)
	}
}

func TestPipelineNamelessRecord(t *testing.T) {
	input := writeInput(t,
		`{"type":"Feature","properties":{"name":"Luna Cafe","addr:housenumber":"9"}}`,
		`{"type":"Feature","properties":{"addr:housenumber":"9"}}`,
	)

	p, responses, _ := runPipeline(t, testOptions(t), input)
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2 (nameless records still respond)", len(responses))
	}
	if p.comparisons != 0 {
		t.Errorf("comparisons = %d, want 0", p.comparisons)
	}
	if responses[1].GUID == "" {
		t.Error("the nameless record should still carry a guid")
	}
}

func TestPipelineDupesOnly(t *testing.T) {
	input := writeInput(t,
		`{"type":"Feature","properties":{"name":"Luna Cafe","addr:housenumber":"9"}}`,
		`{"type":"Feature","properties":{"name":"Luna Cafe","addr:housenumber":"9"}}`,
		`{"type":"Feature","properties":{"name":"Zebra Tools","addr:housenumber":"2"}}`,
	)

	opts := testOptions(t)
	opts.DupesOnly = true
	_, responses, _ := runPipeline(t, opts, input)

	if len(responses) != 2 {
		t.Fatalf("got %d responses, want only the related pair", len(responses))
	}
	if responses[0].IsDupe || len(responses[0].PossibleDupes) != 1 {
		t.Error("the first response should be the canonical with one relationship")
	}
	if !responses[1].IsDupe {
		t.Error("the second response should be the duplicate")
	}
}

func TestPipelineDeterministicOutput(t *testing.T) {
	input := writeInput(t,
		`{"type":"Feature","properties":{"name":"Joe's Pizza","addr:housenumber":"120"}}`,
		`{"type":"Feature","properties":{"name":"Joes Pizza","addr:housenumber":"120"}}`,
		`{"type":"Feature","properties":{"name":"Zebra Tools","addr:housenumber":"2"}}`,
	)

	p, _, first := runPipeline(t, testOptions(t), input)

	builder := NewBuilder(BuilderConfig{
		Store:   p.store,
		Graph:   p.graph,
		Options: p.matchOptions(),
	})
	var second bytes.Buffer
	n, err := builder.WriteAll(&second)
	if err != nil {
		t.Fatalf("WriteAll returned error: %v", err)
	}
	if n != 3 {
		t.Errorf("WriteAll wrote %d responses, want 3", n)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("rebuilding responses should reproduce the output byte for byte")
	}
}

func TestNewPipelineValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{
			name:   "review above likely",
			mutate: func(o *Options) { o.ReviewThreshold = 0.95 },
		},
		{
			name:   "unknown relevance model",
			mutate: func(o *Options) { o.RelevanceModel = "bogus" },
		},
		{
			name:   "unknown sorter",
			mutate: func(o *Options) { o.Sorter = "bogus" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			tt.mutate(&opts)
			p, err := NewPipeline(opts)
			if err == nil {
				p.Close()
				t.Fatal("NewPipeline should reject the options")
			}
		})
	}
}
