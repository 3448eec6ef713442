// Package relevance weights name tokens by how informative they are across
// the whole input, so shared words like "restaurant" count for less than
// distinctive ones when names are compared.
package relevance

import (
	"errors"
	"fmt"
)

// Model kinds accepted by New.
const (
	KindTFIDF    = "tfidf"
	KindInfoGain = "infogain"
)

// ErrFinalized is returned when a model is updated after Finalize.
var ErrFinalized = errors.New("relevance model already finalized")

// Model accumulates token statistics during ingestion and serves per-token
// weights afterwards. Update must not be called after Finalize.
type Model interface {
	Update(tokens []string) error
	Finalize()
	Weight(token string) float64
	Save(path string) error
}

// New returns a model of the named kind. An empty kind selects TF-IDF.
func New(kind string) (Model, error) {
	switch kind {
	case "", KindTFIDF:
		return NewTFIDF(), nil
	case KindInfoGain:
		return NewInfoGain(), nil
	default:
		return nil, fmt.Errorf("unknown relevance model %q", kind)
	}
}
