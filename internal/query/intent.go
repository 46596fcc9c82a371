package query

import (
	"sort"
	"strings"

	"github.com/kdimtricp/vsearch/internal/models"
)

type Intent string

const (
	IntentSummary  Intent = "summary"
	IntentColor    Intent = "color"
	IntentObject   Intent = "object"
	IntentPerson   Intent = "person"
	IntentTemporal Intent = "temporal"
)

var summaryKeywords = []string{"요약", "정리", "하이라이트", "전체", "summary", "summarize", "summarise", "highlight", "highlights", "overview"}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "in": true, "on": true, "at": true, "of": true,
	"with": true, "and": true, "or": true, "is": true, "are": true, "was": true, "who": true,
	"where": true, "when": true, "which": true, "that": true, "show": true, "me": true,
	"find": true, "frame": true, "frames": true, "scene": true, "scenes": true, "video": true,
	"wearing": true, "wears": true, "clothes": true, "clothing": true, "outfit": true,
	"any": true, "some": true, "there": true, "during": true, "for": true, "to": true,
	"옷": true, "옷을": true, "입은": true, "입고": true, "있는": true, "있는지": true, "나오는": true,
	"장면": true, "영상": true, "찾아줘": true, "찾아": true, "보여줘": true, "보여": true, "알려줘": true,
	"동안": true, "어디": true, "언제": true, "누가": true, "모든": true, "중에": true,
}

// ColorTerm is a palette label, optionally restricted to one garment region.
type ColorTerm struct {
	Source string
	Label  string
	Region models.ColorRegion
}

// KeywordGroup is a set of interchangeable words; a caption matching any
// of them scores once.
type KeywordGroup struct {
	Name  string
	Words []string
}

// ParsedQuery is the classified form of a query. It is all Score needs.
type ParsedQuery struct {
	Text      string
	Intent    Intent
	Intents   []Intent
	TimeRange *TimeRange
	Objects   []TermMatch
	People    []TermMatch
	Colors    []ColorTerm
	Keywords  []KeywordGroup
}

// HasScoringTerms reports whether anything besides a time window can score.
func (q ParsedQuery) HasScoringTerms() bool {
	return len(q.Objects) > 0 || len(q.People) > 0 || len(q.Colors) > 0 || len(q.Keywords) > 0
}

func (q ParsedQuery) Has(intent Intent) bool {
	for _, i := range q.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

// Parse classifies text. duration anchors "last N seconds" windows.
func Parse(text string, terms *Terms, duration float64) ParsedQuery {
	q := ParsedQuery{Text: Normalize(text)}
	rest := q.Text

	if tr, sp, ok := parseTimeRange(rest, duration); ok {
		q.TimeRange = tr
		rest = blank(rest, sp)
	}

	rest, summary := stripSummaryKeywords(rest)

	matches := terms.Find(rest)
	var regions []TermMatch
	for _, m := range matches {
		switch {
		case m.Kind == KindRegion:
			regions = append(regions, m)
		case m.Kind == KindObject:
			q.Objects = appendMatch(q.Objects, m)
		case m.Kind.IsPersonAttribute():
			q.People = appendMatch(q.People, m)
		}
	}
	q.Colors = colorTerms(matches, regions)
	q.Keywords = keywordGroups(rest, matches, terms)

	// Appended in precedence order, so the first one is primary.
	if summary {
		q.Intents = append(q.Intents, IntentSummary)
	}
	if len(q.Colors) > 0 {
		q.Intents = append(q.Intents, IntentColor)
	}
	if len(q.Objects) > 0 {
		q.Intents = append(q.Intents, IntentObject)
	}
	if len(q.People) > 0 {
		q.Intents = append(q.Intents, IntentPerson)
	}
	if q.TimeRange != nil {
		q.Intents = append(q.Intents, IntentTemporal)
	}
	if len(q.Intents) == 0 {
		q.Intents = []Intent{IntentObject}
	}
	q.Intent = q.Intents[0]
	return q
}

func blank(s string, sp span) string {
	return s[:sp.start] + strings.Repeat(" ", sp.end-sp.start) + s[sp.end:]
}

func stripSummaryKeywords(s string) (string, bool) {
	found := false
	for _, kw := range summaryKeywords {
		if isHangul(kw) {
			for i := strings.Index(s, kw); i >= 0; i = strings.Index(s, kw) {
				s = blank(s, span{i, i + len(kw)})
				found = true
			}
			continue
		}
		for _, tk := range tokenize(s) {
			if tk.text == kw {
				s = blank(s, span{tk.start, tk.end})
				found = true
			}
		}
	}
	return s, found
}

func appendMatch(dst []TermMatch, m TermMatch) []TermMatch {
	for _, d := range dst {
		if d.Kind == m.Kind && sameLabels(d.Labels, m.Labels) {
			return dst
		}
	}
	return append(dst, m)
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// colorTerms pairs each color with the garment it describes: the first
// region hint after it and before the next color ("빨간 상의", "red shirt").
// Without one, a query naming a single region applies it to every color.
func colorTerms(matches, regions []TermMatch) []ColorTerm {
	var colors []TermMatch
	for _, m := range matches {
		if m.Kind == KindColor {
			colors = append(colors, m)
		}
	}

	var only models.ColorRegion
	for _, r := range regions {
		reg := models.ColorRegion(r.Labels[0])
		if only == "" {
			only = reg
		} else if only != reg {
			only = ""
			break
		}
	}

	var out []ColorTerm
	seen := map[string]bool{}
	for i, c := range colors {
		limit := -1
		if i+1 < len(colors) {
			limit = colors[i+1].Start
		}
		region := only
		for _, r := range regions {
			if r.Start >= c.End && (limit < 0 || r.Start < limit) {
				region = models.ColorRegion(r.Labels[0])
				break
			}
		}
		for _, label := range c.Labels {
			key := label + "/" + string(region)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ColorTerm{Source: c.Source, Label: label, Region: region})
		}
	}
	return out
}

// keywordGroups builds the caption side of scoring. Every matched term
// contributes its synonyms; leftover words contribute themselves.
func keywordGroups(text string, matches []TermMatch, terms *Terms) []KeywordGroup {
	var groups []KeywordGroup
	seen := map[string]bool{}
	add := func(name string, words []string) {
		if seen[name] || len(words) == 0 {
			return
		}
		seen[name] = true
		groups = append(groups, KeywordGroup{Name: name, Words: words})
	}

	for _, m := range matches {
		if m.Kind == KindRegion {
			continue
		}
		words := []string{m.Source}
		for _, label := range m.Labels {
			words = appendUnique(words, label)
			words = appendUnique(words, terms.Sources(label)...)
		}
		sort.Strings(words[1:])
		add(string(m.Kind)+":"+strings.Join(m.Labels, ","), words)
	}

	covered := make([]bool, len(text))
	for _, m := range matches {
		markTaken(covered, m.Start, m.End)
	}
	for _, tk := range tokenize(text) {
		if anyTaken(covered, tk.start, tk.end) {
			continue
		}
		w := tk.text
		if isHangul(w) {
			w = stripParticle(w)
		}
		if stopwords[w] || stopwords[tk.text] || len([]rune(w)) < 2 || isNumber(w) {
			continue
		}
		words := []string{w}
		if !isHangul(w) {
			words = appendUnique(words, singular(w))
		}
		add("word:"+w, words)
	}
	return groups
}

func isNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
