package phonetics

import "strings"

// digraphs are applied in order so the same word always yields the same
// code regardless of map iteration.
var digraphs = [...][2]string{
	{"PH", "F"},
	{"GH", "F"},
	{"CK", "K"},
	{"QU", "KW"},
	{"TH", "0"},
	{"SH", "X"},
	{"CH", "X"},
	{"WH", "W"},
	{"KN", "N"},
	{"WR", "R"},
}

// Metaphone produces a simplified phonetic code for a word, used to block
// together tokens that sound alike despite spelling differences.
func Metaphone(word string) string {
	word = strings.ToUpper(strings.TrimSpace(word))
	if word == "" {
		return ""
	}

	for _, d := range digraphs {
		word = strings.ReplaceAll(word, d[0], d[1])
	}

	// Vowels only carry signal in the leading position.
	var b strings.Builder
	for i, ch := range word {
		if i == 0 {
			b.WriteRune(ch)
			continue
		}
		switch ch {
		case 'A', 'E', 'I', 'O', 'U', 'Y':
			continue
		}
		b.WriteRune(ch)
	}
	code := b.String()

	// Collapse runs of the same consonant.
	var out strings.Builder
	var prev rune
	for i, ch := range code {
		if i > 0 && ch == prev {
			continue
		}
		out.WriteRune(ch)
		prev = ch
	}
	code = out.String()

	if len(code) > 4 {
		code = code[:4]
	}
	return code
}

// Match reports whether two words share a phonetic code.
func Match(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return Metaphone(a) == Metaphone(b)
}
