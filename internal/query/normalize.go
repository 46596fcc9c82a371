package query

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize puts query text into the form the term table is keyed by:
// NFC-composed (so decomposed Hangul jamo match), case-folded and with
// runs of whitespace collapsed.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

func isHangul(s string) bool {
	for _, r := range s {
		if isHangulRune(r) {
			return true
		}
	}
	return false
}

func isHangulRune(r rune) bool {
	return unicode.Is(unicode.Hangul, r)
}

// token is a word of normalized text with its byte offsets.
type token struct {
	text       string
	start, end int
}

// tokenize splits on anything that is not a letter, digit, hyphen or
// apostrophe.
func tokenize(s string) []token {
	var toks []token
	start := -1
	for i, r := range s {
		word := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\''
		switch {
		case word && start < 0:
			start = i
		case !word && start >= 0:
			toks = append(toks, token{text: s[start:i], start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		toks = append(toks, token{text: s[start:], start: start, end: len(s)})
	}
	return toks
}

// singular strips a plain English plural ending.
func singular(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 3 && strings.HasSuffix(w, "es") && strings.ContainsAny(w[len(w)-3:len(w)-2], "sxh"):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}

var koreanParticles = []string{"에서", "으로", "까지", "부터", "은", "는", "이", "가", "을", "를", "에", "의", "도", "와", "과", "로"}

// termSuffixes may follow a Korean term inside one word: particles plus the
// plural marker and a few common endings.
var termSuffixes = append([]string{"들", "에게", "한테", "이랑", "랑", "처럼", "만"}, koreanParticles...)

// stripParticle removes one trailing Korean particle from a word of three or
// more syllables.
func stripParticle(w string) string {
	if len([]rune(w)) < 3 {
		return w
	}
	for _, p := range koreanParticles {
		if strings.HasSuffix(w, p) {
			return strings.TrimSuffix(w, p)
		}
	}
	return w
}
