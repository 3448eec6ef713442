// Package blocking derives candidate-pair keys from records. Two records
// can only ever be compared if they share at least one key.
package blocking

import (
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"

	"github.com/geo-dedupe/internal/feature"
	"github.com/geo-dedupe/internal/normalize"
	"github.com/geo-dedupe/internal/phonetics"
)

// DefaultGeohashPrecision gives cells of roughly 1.2km x 0.6km, wide
// enough that the adjacent ring absorbs GPS noise.
const DefaultGeohashPrecision = 6

// Options select which key schemes a Generator emits.
type Options struct {
	AddressOnly      bool
	Geo              bool
	GeohashPrecision int
}

// Generator turns one record into its blocking keys.
type Generator struct {
	opts Options
}

// NewGenerator returns a key generator for the given schemes.
func NewGenerator(opts Options) *Generator {
	if opts.GeohashPrecision <= 0 {
		opts.GeohashPrecision = DefaultGeohashPrecision
	}
	return &Generator{opts: opts}
}

// Keys returns the deduplicated blocking keys for a record, in a stable
// order. Records without enough fields to anchor a key return none and
// are simply never candidates.
func (g *Generator) Keys(f *feature.Feature) []string {
	var anchors []string
	var geoAnchor string
	if g.opts.AddressOnly {
		anchors, geoAnchor = streetAnchors(f)
	} else {
		anchors, geoAnchor = nameAnchors(f)
	}

	keys := make([]string, 0, len(anchors))
	keys = append(keys, anchors...)

	if g.opts.Geo && geoAnchor != "" {
		if lng, lat, ok := f.Coordinates(); ok && feature.ValidCoordinates(lat, lng) {
			cell := geohash.EncodeWithPrecision(lat, lng, g.opts.GeohashPrecision)
			for _, c := range append([]string{cell}, geohash.CalculateAllAdjacent(cell)...) {
				keys = append(keys, "gh|"+c+"|"+geoAnchor)
			}
		}
	}

	return dedupKeys(keys)
}

// nameAnchors keys a record on each phonetic name token paired with its
// house number, falling back to the postcode. The geo anchor uses only
// the leading token so nearby spelling variants still collide.
func nameAnchors(f *feature.Feature) ([]string, string) {
	tokens := normalize.Tokens(f.Name())
	if len(tokens) == 0 {
		return nil, ""
	}
	geoAnchor := "nm|" + phonetics.Metaphone(tokens[0])

	num := normalize.HouseNumber(f.HouseNumber())
	pc := normalize.Canonical(f.Postcode())
	var suffix string
	switch {
	case num != "":
		suffix = "|hn|" + num
	case pc != "":
		suffix = "|pc|" + pc
	default:
		return nil, geoAnchor
	}

	anchors := make([]string, 0, len(tokens))
	for _, t := range tokens {
		anchors = append(anchors, "nm|"+phonetics.Metaphone(t)+suffix)
	}
	return anchors, geoAnchor
}

// streetAnchors keys a record on each expansion of its street name paired
// with the house number. The number stays in the key even when empty so
// number-less records on one street still group together.
func streetAnchors(f *feature.Feature) ([]string, string) {
	expansions := normalize.ExpandStreet(f.Street())
	if len(expansions) == 0 {
		return nil, ""
	}
	num := normalize.HouseNumber(f.HouseNumber())
	anchors := make([]string, 0, len(expansions))
	for _, e := range expansions {
		anchors = append(anchors, "st|"+e+"|hn|"+num)
	}
	return anchors, "st|" + expansions[0]
}

var keySanitizer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// dedupKeys sanitizes keys for the tab-separated spill format and drops
// repeats while preserving first-appearance order.
func dedupKeys(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		k = keySanitizer.Replace(k)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
