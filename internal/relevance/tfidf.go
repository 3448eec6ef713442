package relevance

import (
	"fmt"
	"math"
	"os"

	json "github.com/goccy/go-json"
)

// TFIDF weights tokens by inverse document frequency over the ingested
// names. Duplicate tokens within one name count once.
type TFIDF struct {
	docs      uint64
	docFreq   map[string]uint64
	idf       map[string]float64
	finalized bool
}

// NewTFIDF returns an empty TF-IDF model.
func NewTFIDF() *TFIDF {
	return &TFIDF{docFreq: make(map[string]uint64)}
}

// Update counts each distinct token of one record's name.
func (m *TFIDF) Update(tokens []string) error {
	if m.finalized {
		return ErrFinalized
	}
	if len(tokens) == 0 {
		return nil
	}
	m.docs++
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		m.docFreq[t]++
	}
	return nil
}

// Finalize caches per-token weights. After this the model is read-only.
func (m *TFIDF) Finalize() {
	if m.finalized {
		return
	}
	m.finalized = true
	m.idf = make(map[string]float64, len(m.docFreq))
	for t, df := range m.docFreq {
		m.idf[t] = idf(float64(m.docs), float64(df))
	}
}

// Weight returns a token's informativeness. Unseen tokens get the weight
// of a token appearing in zero records, the highest possible.
func (m *TFIDF) Weight(token string) float64 {
	if w, ok := m.idf[token]; ok {
		return w
	}
	return idf(float64(m.docs), 0)
}

// Save writes the accumulated counts as JSON for inspection or reuse.
func (m *TFIDF) Save(path string) error {
	snapshot := struct {
		Kind    string            `json:"kind"`
		Docs    uint64            `json:"docs"`
		DocFreq map[string]uint64 `json:"doc_freq"`
	}{Kind: KindTFIDF, Docs: m.docs, DocFreq: m.docFreq}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode relevance model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write relevance model: %w", err)
	}
	return nil
}

// idf is the smoothed BM25-style inverse document frequency.
func idf(docs, df float64) float64 {
	return math.Log(1 + (docs-df+0.5)/(df+0.5))
}
