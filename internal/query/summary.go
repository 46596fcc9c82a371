package query

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kdimtricp/vsearch/internal/index"
	"github.com/kdimtricp/vsearch/internal/models"
)

const maxDominantColors = 3

// Digest renders the summary answer: a header with people and clothing
// statistics, then one "[MM:SS] caption" line per frame in time order.
// Consecutive identical captions are collapsed and empty ones skipped.
func Digest(frames []index.MetadataFrame, window *TimeRange) string {
	inWindow := framesInWindow(frames, window)

	var b strings.Builder
	b.WriteString(digestHeader(inWindow))

	last := ""
	for _, f := range inWindow {
		caption := strings.TrimSpace(f.Caption)
		if caption == "" || caption == last {
			continue
		}
		last = caption
		fmt.Fprintf(&b, "\n[%s] %s", formatClock(f.Timestamp), caption)
	}
	return b.String()
}

func framesInWindow(frames []index.MetadataFrame, window *TimeRange) []index.MetadataFrame {
	if window == nil {
		return frames
	}
	var out []index.MetadataFrame
	for _, f := range frames {
		if window.Contains(f.Timestamp) {
			out = append(out, f)
		}
	}
	return out
}

func digestHeader(frames []index.MetadataFrame) string {
	persons := 0
	genders := map[string]int{}
	colors := map[string]int{}
	for _, f := range frames {
		for _, p := range f.Persons {
			persons++
			genders[p.Gender]++
			if p.ClothingColors.Upper != "" {
				colors[p.ClothingColors.Upper]++
			}
			if p.ClothingColors.Lower != "" {
				colors[p.ClothingColors.Lower]++
			}
		}
	}

	header := fmt.Sprintf("%d frames, %d persons", len(frames), persons)
	if persons > 0 {
		header += fmt.Sprintf(" (female %d, male %d, unknown %d)",
			genders[string(models.GenderFemale)],
			genders[string(models.GenderMale)],
			persons-genders[string(models.GenderFemale)]-genders[string(models.GenderMale)])
	}
	if dominant := dominantColors(colors); len(dominant) > 0 {
		header += ". Dominant clothing colors: " + strings.Join(dominant, ", ")
	}
	return header + "."
}

// dominantColors returns the most frequent labels, ties in palette order.
func dominantColors(counts map[string]int) []string {
	rank := map[string]int{}
	for i, p := range models.Palette {
		rank[p] = i
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		if rank[labels[i]] != rank[labels[j]] {
			return rank[labels[i]] < rank[labels[j]]
		}
		return labels[i] < labels[j]
	})
	if len(labels) > maxDominantColors {
		labels = labels[:maxDominantColors]
	}
	return labels
}

func formatClock(ts float64) string {
	total := int(math.Floor(ts))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
