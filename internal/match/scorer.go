package match

import (
	"github.com/geo-dedupe/internal/feature"
	"github.com/geo-dedupe/internal/normalize"
	"github.com/geo-dedupe/internal/phonetics"
	"github.com/geo-dedupe/internal/relevance"
)

// phoneticTokenScore is the credit a token gets when it only matches
// another token phonetically.
const phoneticTokenScore = 0.7

// Options control how strictly pairs are compared.
type Options struct {
	MatchUnits      bool
	CheckPhones     bool
	FuzzyStreets    bool
	LikelyThreshold float64
	ReviewThreshold float64
}

// DefaultOptions returns the standard classification thresholds.
func DefaultOptions() Options {
	return Options{
		LikelyThreshold: 0.9,
		ReviewThreshold: 0.7,
	}
}

// Scorer classifies a pair of records.
type Scorer interface {
	Compare(a, b *feature.Feature) Classification
}

// NewScorer selects the comparison strategy: address fields only, or
// names weighted by a relevance model with addresses as a gate.
func NewScorer(addressOnly bool, model relevance.Model, opts Options) Scorer {
	if addressOnly {
		return &AddressScorer{opts: opts}
	}
	return &NameAddressScorer{opts: opts, model: model}
}

// gateResult carries the address evidence shared by both scorers.
type gateResult struct {
	ok        bool
	exact     bool
	score     float64
	capReview bool
}

// addressGate rejects pairs whose addresses conflict and measures street
// agreement for the rest. exact is only set when street and house number
// are canonically identical.
func addressGate(a, b *feature.Feature, opts Options) gateResult {
	numA := normalize.HouseNumber(a.HouseNumber())
	numB := normalize.HouseNumber(b.HouseNumber())
	if numA != "" && numB != "" && numA != numB {
		return gateResult{}
	}

	res := gateResult{ok: true}
	stA, stB := a.Street(), b.Street()
	if stA != "" && stB != "" {
		canA, canB := normalize.Canonical(stA), normalize.Canonical(stB)
		switch {
		case canA != "" && canA == canB:
			res.score = 1
			res.exact = numA != "" && numA == numB
		case normalize.StreetMatch(stA, stB):
			res.score = 1
		case opts.FuzzyStreets:
			sim := EditSimilarity(canA, canB)
			if sim < opts.ReviewThreshold {
				return gateResult{score: sim}
			}
			res.score = sim
		default:
			return gateResult{}
		}
	}

	if opts.MatchUnits {
		if normalize.Unit(a.Unit()) != normalize.Unit(b.Unit()) {
			res.exact = false
			res.capReview = true
		}
	}
	if opts.CheckPhones {
		phA, phB := normalize.Phone(a.Phone()), normalize.Phone(b.Phone())
		if phA != "" && phB != "" && phA != phB {
			res.exact = false
			res.capReview = true
		}
	}
	return res
}

// statusFor maps a similarity score onto a status via the thresholds.
func statusFor(score float64, opts Options) Status {
	switch {
	case score >= opts.LikelyThreshold:
		return LikelyDupe
	case score >= opts.ReviewThreshold:
		return NeedsReview
	default:
		return NonDupe
	}
}

// AddressScorer classifies pairs on address evidence alone.
type AddressScorer struct {
	opts Options
}

// Compare scores two address records. Without street agreement there is
// no evidence, so the pair stays a non-dupe.
func (s *AddressScorer) Compare(a, b *feature.Feature) Classification {
	gate := addressGate(a, b, s.opts)
	if !gate.ok {
		return Classification{Status: NonDupe, Score: gate.score}
	}
	if gate.exact {
		return Classification{Status: ExactDupe, Score: 1}
	}
	status := statusFor(gate.score, s.opts)
	if gate.capReview && status > NeedsReview {
		status = NeedsReview
	}
	return Classification{Status: status, Score: gate.score}
}

// NameAddressScorer classifies pairs on weighted name similarity, with
// the address gate screening out records that cannot be the same place.
type NameAddressScorer struct {
	opts  Options
	model relevance.Model
}

// Compare scores two named records.
func (s *NameAddressScorer) Compare(a, b *feature.Feature) Classification {
	nameA, nameB := a.Name(), b.Name()
	if normalize.Canonical(nameA) == "" || normalize.Canonical(nameB) == "" {
		return Classification{}
	}

	gate := addressGate(a, b, s.opts)
	if !gate.ok {
		return Classification{Status: NonDupe, Score: gate.score}
	}

	score := s.nameSimilarity(nameA, nameB)
	if gate.exact && normalize.Canonical(nameA) == normalize.Canonical(nameB) {
		return Classification{Status: ExactDupe, Score: 1}
	}
	status := statusFor(score, s.opts)
	if gate.capReview && status > NeedsReview {
		status = NeedsReview
	}
	return Classification{Status: status, Score: score}
}

// nameSimilarity averages the weighted match ratio in both directions so
// a name that is a strict subset of another does not score a full match.
func (s *NameAddressScorer) nameSimilarity(a, b string) float64 {
	ta, tb := normalize.Tokens(a), normalize.Tokens(b)
	return (s.directional(ta, tb) + s.directional(tb, ta)) / 2
}

func (s *NameAddressScorer) directional(from, to []string) float64 {
	var total, matched float64
	for _, t := range from {
		w := s.weight(t)
		total += w
		matched += w * bestTokenMatch(t, to)
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

func (s *NameAddressScorer) weight(token string) float64 {
	if s.model == nil {
		return 1
	}
	return s.model.Weight(token)
}

// bestTokenMatch finds the strongest counterpart for a token: exact, then
// near-spelled, then phonetic. Short tokens only match exactly since one
// edit rewrites most of them.
func bestTokenMatch(token string, candidates []string) float64 {
	var best float64
	for _, c := range candidates {
		if token == c {
			return 1
		}
		if len(token) <= 3 || len(c) <= 3 {
			continue
		}
		if d := EditDistance(token, c, 2); d >= 0 {
			longest := len(token)
			if len(c) > longest {
				longest = len(c)
			}
			if sim := 1 - float64(d)/float64(longest); sim > best {
				best = sim
			}
			continue
		}
		if phonetics.Match(token, c) && phoneticTokenScore > best {
			best = phoneticTokenScore
		}
	}
	return best
}
