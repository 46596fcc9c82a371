package query

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
)

// TimeRange is an inclusive window in seconds. End may be +Inf.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r TimeRange) Contains(ts float64) bool {
	return ts >= r.Start && ts <= r.End
}

// MarshalJSON writes an open-ended window with a null end.
func (r TimeRange) MarshalJSON() ([]byte, error) {
	out := struct {
		Start float64  `json:"start"`
		End   *float64 `json:"end"`
	}{Start: r.Start}
	if !math.IsInf(r.End, 1) {
		end := r.End
		out.End = &end
	}
	return json.Marshal(out)
}

type span struct{ start, end int }

type timePattern struct {
	re    *regexp.Regexp
	build func(m []string, duration float64) TimeRange
}

const unitGroup = `(초|분|seconds?\b|secs?\b|minutes?\b|mins?\b|s\b|m\b)`

// Patterns run in order and the first match wins. Input is normalized text.
var timePatterns = []timePattern{
	{
		re: regexp.MustCompile(`(\d{1,3}):(\d{2})\s*[~\-]\s*(\d{1,3}):(\d{2})`),
		build: func(m []string, _ float64) TimeRange {
			return TimeRange{Start: clock(m[1], m[2]), End: clock(m[3], m[4])}
		},
	},
	{
		re: regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(분|초)?\s*[~\-]\s*(\d+(?:\.\d+)?)\s*(분|초)`),
		build: func(m []string, _ float64) TimeRange {
			scale := unitScale(m[4])
			if m[2] != "" {
				return TimeRange{Start: num(m[1]) * unitScale(m[2]), End: num(m[3]) * scale}
			}
			return TimeRange{Start: num(m[1]) * scale, End: num(m[3]) * scale}
		},
	},
	{
		re: regexp.MustCompile(`(?:from|between)\s+(\d+(?:\.\d+)?)\s*(?:to|and|-)\s*(\d+(?:\.\d+)?)\s*` + unitGroup),
		build: func(m []string, _ float64) TimeRange {
			s := unitScale(m[3])
			return TimeRange{Start: num(m[1]) * s, End: num(m[2]) * s}
		},
	},
	{
		re: regexp.MustCompile(`(?:처음|초반|first)\s*(\d+(?:\.\d+)?)\s*` + unitGroup),
		build: func(m []string, _ float64) TimeRange {
			return TimeRange{Start: 0, End: num(m[1]) * unitScale(m[2])}
		},
	},
	{
		re: regexp.MustCompile(`(?:마지막|끝|last|final)\s*(\d+(?:\.\d+)?)\s*` + unitGroup),
		build: func(m []string, duration float64) TimeRange {
			n := num(m[1]) * unitScale(m[2])
			return TimeRange{Start: math.Max(0, duration-n), End: math.Max(duration, 0)}
		},
	},
	{
		re: regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(초|분)\s*(?:부터|에서)\s*(\d+(?:\.\d+)?)\s*(초|분)`),
		build: func(m []string, _ float64) TimeRange {
			return TimeRange{Start: num(m[1]) * unitScale(m[2]), End: num(m[3]) * unitScale(m[4])}
		},
	},
	{
		re: regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(초|분)\s*(?:이후|후|부터|뒤)`),
		build: func(m []string, _ float64) TimeRange {
			return TimeRange{Start: num(m[1]) * unitScale(m[2]), End: math.Inf(1)}
		},
	},
	{
		re: regexp.MustCompile(`(?:after|from)\s+(\d+(?:\.\d+)?)\s*` + unitGroup),
		build: func(m []string, _ float64) TimeRange {
			return TimeRange{Start: num(m[1]) * unitScale(m[2]), End: math.Inf(1)}
		},
	},
}

// parseTimeRange finds the first time expression in text. duration anchors
// "last N" windows.
func parseTimeRange(text string, duration float64) (*TimeRange, span, bool) {
	for _, p := range timePatterns {
		loc := p.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = text[loc[2*i]:loc[2*i+1]]
			}
		}
		r := p.build(m, duration)
		if r.End < r.Start {
			r.Start, r.End = r.End, r.Start
		}
		return &r, span{loc[0], loc[1]}, true
	}
	return nil, span{}, false
}

func clock(min, sec string) float64 {
	return num(min)*60 + num(sec)
}

func num(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func unitScale(unit string) float64 {
	switch unit {
	case "분", "m", "min", "mins", "minute", "minutes":
		return 60
	default:
		return 1
	}
}
