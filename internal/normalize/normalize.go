package normalize

import (
	"strings"
	"unicode"

	expand "github.com/openvenues/gopostal/expand"
	postal "github.com/openvenues/gopostal/parser"

	"github.com/geo-dedupe/internal/feature"
)

// Tokens lowercases a string and splits it into alphanumeric tokens.
// Apostrophes are dropped rather than split so "o'brien" stays one token.
func Tokens(s string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// drop
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// Canonical returns the token-normalized form of a string.
func Canonical(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Phone reduces a phone number to its last ten digits so formatting and
// country prefixes do not block a match.
func Phone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

var unitPrefixes = []string{"apartment", "apt.", "apt", "suite", "ste.", "ste", "unit", "#"}

// Unit strips unit designators so "Apt 7" and "#7" compare equal.
func Unit(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	for _, p := range unitPrefixes {
		if strings.HasPrefix(t, p) {
			t = strings.TrimSpace(t[len(p):])
			break
		}
	}
	return strings.Join(Tokens(t), "")
}

// HouseNumber normalizes a house number for exact comparison.
func HouseNumber(s string) string {
	return strings.Join(Tokens(s), "")
}

// ExpandStreet returns the normalized expansions of a street name, so
// "Main St" and "Main Street" share at least one form.
func ExpandStreet(street string) []string {
	if strings.TrimSpace(street) == "" {
		return nil
	}
	return expand.ExpandAddress(street)
}

// ParseComponents labels the parts of a free-form address string. Only the
// first value per label is kept.
func ParseComponents(address string) map[string]string {
	parsed := postal.ParseAddress(address)
	components := make(map[string]string, len(parsed))
	for _, c := range parsed {
		if _, ok := components[c.Label]; !ok {
			components[c.Label] = c.Value
		}
	}
	return components
}

// StreetMatch reports whether two street names refer to the same street.
// Canonically equal names match without consulting the expander.
func StreetMatch(a, b string) bool {
	ca, cb := Canonical(a), Canonical(b)
	if ca == "" || cb == "" {
		return false
	}
	if ca == cb {
		return true
	}
	seen := make(map[string]struct{})
	for _, e := range ExpandStreet(a) {
		seen[e] = struct{}{}
	}
	for _, e := range ExpandStreet(b) {
		if _, ok := seen[e]; ok {
			return true
		}
	}
	return false
}

// BackfillAddress fills missing structured address fields from a record's
// free-form address line. Existing fields are never overwritten.
func BackfillAddress(f *feature.Feature) {
	full := f.Prop(feature.PropFull)
	if full == "" {
		return
	}
	if f.Street() != "" && f.HouseNumber() != "" && f.Postcode() != "" {
		return
	}
	components := ParseComponents(full)
	if f.Street() == "" {
		if v, ok := components["road"]; ok {
			f.SetProp(feature.PropStreet, v)
		}
	}
	if f.HouseNumber() == "" {
		if v, ok := components["house_number"]; ok {
			f.SetProp(feature.PropHouseNumber, v)
		}
	}
	if f.Postcode() == "" {
		if v, ok := components["postcode"]; ok {
			f.SetProp(feature.PropPostcode, v)
		}
	}
	if f.Unit() == "" {
		if v, ok := components["unit"]; ok {
			f.SetProp(feature.PropUnit, v)
		}
	}
}
