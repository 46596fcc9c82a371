package query

import (
	"sort"
	"strings"

	"github.com/kdimtricp/vsearch/internal/index"
	"github.com/kdimtricp/vsearch/internal/models"
)

const (
	weightTerm    = 3
	weightCaption = 2
	weightColor   = 1
)

const SignalTimeWindow = "time_window"

// ScoredFrame is one frame with a positive score.
type ScoredFrame struct {
	ImageID   string
	Timestamp float64
	ImageURL  string
	Score     int
	Signals   []string
}

// Score ranks frames against q. It is pure: the same query and frames
// always give the same slice. Frames outside q's time window are dropped
// before scoring. Ties break by earlier timestamp, then image id.
func Score(q ParsedQuery, frames []index.MetadataFrame) []ScoredFrame {
	out := []ScoredFrame{}
	for i := range frames {
		f := &frames[i]
		if q.TimeRange != nil && !q.TimeRange.Contains(f.Timestamp) {
			continue
		}
		score, signals := scoreFrame(q, f)
		if score <= 0 {
			continue
		}
		out = append(out, ScoredFrame{
			ImageID:   f.ImageID,
			Timestamp: f.Timestamp,
			ImageURL:  f.ImageURL,
			Score:     score,
			Signals:   signals,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.ImageID < b.ImageID
	})
	return out
}

func scoreFrame(q ParsedQuery, f *index.MetadataFrame) (int, []string) {
	if !q.HasScoringTerms() {
		if q.TimeRange != nil {
			return 1, []string{SignalTimeWindow}
		}
		return 0, nil
	}

	score := 0
	signals := []string{}

	for _, term := range q.Objects {
		if frameHasObject(f, term.Labels) {
			score += weightTerm
			signals = append(signals, "object:"+strings.Join(term.Labels, "|"))
		}
	}
	for _, term := range q.People {
		if frameHasPersonAttribute(f, term) {
			score += weightTerm
			signals = append(signals, string(term.Kind)+":"+strings.Join(term.Labels, "|"))
		}
	}

	colorsSeen := map[string]bool{}
	for _, c := range q.Colors {
		if colorsSeen[c.Label] {
			continue
		}
		if frameHasColor(f, c) {
			colorsSeen[c.Label] = true
			score += weightColor
			signals = append(signals, "color:"+c.Label)
		}
	}

	if len(q.Keywords) > 0 && f.Caption != "" {
		caption := Normalize(f.Caption)
		words := captionWords(caption)
		for _, g := range q.Keywords {
			if captionMatches(caption, words, g.Words) {
				score += weightCaption
				signals = append(signals, "caption:"+g.Words[0])
			}
		}
	}
	return score, signals
}

func frameHasObject(f *index.MetadataFrame, labels []string) bool {
	for _, o := range f.Objects {
		for _, l := range labels {
			if o.Label == l {
				return true
			}
		}
	}
	return false
}

func frameHasPersonAttribute(f *index.MetadataFrame, term TermMatch) bool {
	if term.Kind == KindPerson {
		return len(f.Persons) > 0
	}
	for _, p := range f.Persons {
		var value string
		switch term.Kind {
		case KindGender:
			value = p.Gender
		case KindAge:
			value = p.AgeGroup
		case KindEmotion:
			value = p.Emotion
		}
		for _, l := range term.Labels {
			if value == l {
				return true
			}
		}
	}
	return false
}

func frameHasColor(f *index.MetadataFrame, c ColorTerm) bool {
	for _, p := range f.Persons {
		upper, lower := p.ClothingColors.Upper == c.Label, p.ClothingColors.Lower == c.Label
		switch c.Region {
		case models.RegionUpper:
			if upper {
				return true
			}
		case models.RegionLower:
			if lower {
				return true
			}
		default:
			if upper || lower {
				return true
			}
		}
	}
	return false
}

func captionWords(caption string) map[string]bool {
	words := map[string]bool{}
	for _, tk := range tokenize(caption) {
		words[tk.text] = true
		words[singular(tk.text)] = true
	}
	return words
}

// captionMatches checks Korean words as substrings and other words as
// whole words, since Korean particles attach without a space.
func captionMatches(caption string, words map[string]bool, group []string) bool {
	for _, w := range group {
		if isHangul(w) {
			if strings.Contains(caption, w) {
				return true
			}
			continue
		}
		if strings.Contains(w, " ") {
			if strings.Contains(" "+caption+" ", " "+w+" ") {
				return true
			}
			continue
		}
		if words[w] {
			return true
		}
	}
	return false
}
