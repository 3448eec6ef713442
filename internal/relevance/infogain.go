package relevance

import (
	"fmt"
	"math"
	"os"

	json "github.com/goccy/go-json"
)

// InfoGain weights tokens by surprisal: the rarer a token, the more a
// shared occurrence tells us two names refer to the same entity.
type InfoGain struct {
	docs      uint64
	docFreq   map[string]uint64
	gain      map[string]float64
	finalized bool
}

// NewInfoGain returns an empty information-gain model.
func NewInfoGain() *InfoGain {
	return &InfoGain{docFreq: make(map[string]uint64)}
}

// Update counts each distinct token of one record's name.
func (m *InfoGain) Update(tokens []string) error {
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
func (m *InfoGain) Finalize() {
	if m.finalized {
		return
	}
	m.finalized = true
	m.gain = make(map[string]float64, len(m.docFreq))
	for t, df := range m.docFreq {
		m.gain[t] = surprisal(float64(m.docs), float64(df))
	}
}

// Weight returns a token's surprisal. Unseen tokens score as if they
// occurred in no record.
func (m *InfoGain) Weight(token string) float64 {
	if w, ok := m.gain[token]; ok {
		return w
	}
	return surprisal(float64(m.docs), 0)
}

// Save writes the accumulated counts as JSON for inspection or reuse.
func (m *InfoGain) Save(path string) error {
	snapshot := struct {
		Kind    string            `json:"kind"`
		Docs    uint64            `json:"docs"`
		DocFreq map[string]uint64 `json:"doc_freq"`
	}{Kind: KindInfoGain, Docs: m.docs, DocFreq: m.docFreq}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode relevance model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write relevance model: %w", err)
	}
	return nil
}

// surprisal is the negative log probability of seeing the token, smoothed
// so unseen tokens stay finite.
func surprisal(docs, df float64) float64 {
	return -math.Log((df + 0.5) / (docs + 1))
}
