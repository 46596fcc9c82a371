package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kdimtricp/vsearch/internal/index"
)

func TestDigest(t *testing.T) {
	frames := []index.MetadataFrame{
		{ImageID: "f1", Timestamp: 0, Caption: "A woman sitting",
			Persons: []index.PersonRecord{person("female", "young_adult", "happy", "pink", "blue")}},
		{ImageID: "f2", Timestamp: 2, Caption: "A woman sitting",
			Persons: []index.PersonRecord{person("male", "young_adult", "happy", "red", "blue")}},
		{ImageID: "f3", Timestamp: 65, Caption: "A car parked"},
		{ImageID: "f4", Timestamp: 70, Caption: "  "},
	}

	want := "4 frames, 2 persons (female 1, male 1, unknown 0). Dominant clothing colors: blue, red, pink." +
		"\n[00:00] A woman sitting" +
		"\n[01:05] A car parked"
	assert.Equal(t, want, Digest(frames, nil))
}

func TestDigestWindow(t *testing.T) {
	frames := []index.MetadataFrame{
		{ImageID: "f1", Timestamp: 1, Caption: "opening"},
		{ImageID: "f2", Timestamp: 30, Caption: "middle"},
	}
	assert.Equal(t, "1 frames, 0 persons.\n[00:30] middle", Digest(frames, &TimeRange{Start: 10, End: 40}))
	assert.Equal(t, "0 frames, 0 persons.", Digest(frames, &TimeRange{Start: 100, End: 200}))
}

func TestDominantColorsTieBreak(t *testing.T) {
	got := dominantColors(map[string]int{"pink": 1, "black": 1, "white": 3, "green": 1})
	assert.Equal(t, []string{"white", "black", "green"}, got)
}
