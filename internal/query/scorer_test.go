package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/vsearch/internal/index"
)

func person(gender, ageGroup, emotion, upper, lower string) index.PersonRecord {
	return index.PersonRecord{
		Gender:         gender,
		AgeGroup:       ageGroup,
		Emotion:        emotion,
		Decision:       "primary",
		ClothingColors: index.ClothingColorsRecord{Upper: upper, Lower: lower},
	}
}

func object(label string) index.ObjectRecord {
	return index.ObjectRecord{Label: label, Confidence: 0.9}
}

func fixtureFrames() []index.MetadataFrame {
	return []index.MetadataFrame{
		{
			ImageID:   "frame_0001",
			Timestamp: 1.0,
			Persons:   []index.PersonRecord{person("female", "young_adult", "happy", "pink", "blue")},
			Objects:   []index.ObjectRecord{object("handbag")},
			Caption:   "A woman sitting on a bench",
		},
		{
			ImageID:   "frame_0002",
			Timestamp: 6.5,
			Persons:   []index.PersonRecord{person("male", "middle_aged", "neutral", "red", "black")},
			Objects:   []index.ObjectRecord{},
			Caption:   "A man walking",
		},
		{
			ImageID:   "frame_0003",
			Timestamp: 12,
			Persons:   []index.PersonRecord{},
			Objects:   []index.ObjectRecord{object("car")},
			Caption:   "A car parked on the street",
		},
	}
}

func scoreText(text string, frames []index.MetadataFrame) []ScoredFrame {
	return Score(Parse(text, DefaultTerms(), 20), frames)
}

func imageIDs(scored []ScoredFrame) []string {
	ids := []string{}
	for _, s := range scored {
		ids = append(ids, s.ImageID)
	}
	return ids
}

func TestScorePinkOutfit(t *testing.T) {
	frames := []index.MetadataFrame{{
		ImageID:   "frame_0001",
		Timestamp: 6.5,
		Persons:   []index.PersonRecord{person("female", "young_adult", "neutral", "pink", "gray")},
		Caption:   "sitting",
	}}

	q := Parse("분홍색 옷", DefaultTerms(), 10)
	assert.Equal(t, IntentColor, q.Intent)

	scored := Score(q, frames)
	require.Len(t, scored, 1)
	assert.GreaterOrEqual(t, scored[0].Score, 1)
	assert.Contains(t, scored[0].Signals, "color:pink")
}

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		ids     []string
		score   int
		signals []string
	}{
		{
			name:    "object person and caption",
			query:   "가방 든 여자",
			ids:     []string{"frame_0001"},
			score:   3 + 3 + 2,
			signals: []string{"object:handbag|backpack|suitcase|purse", "gender:female", "caption:여자"},
		},
		{
			name:    "object and caption",
			query:   "car",
			ids:     []string{"frame_0003"},
			score:   3 + 2,
			signals: []string{"object:car", "caption:car"},
		},
		{
			name:    "upper color only",
			query:   "빨간 상의",
			ids:     []string{"frame_0002"},
			score:   1,
			signals: []string{"color:red"},
		},
		{
			name:    "lower color",
			query:   "검은 바지",
			ids:     []string{"frame_0002"},
			score:   1,
			signals: []string{"color:black"},
		},
		{
			name:    "age group",
			query:   "중년",
			ids:     []string{"frame_0002"},
			score:   3,
			signals: []string{"age:middle_aged"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scored := scoreText(tt.query, fixtureFrames())
			require.Equal(t, tt.ids, imageIDs(scored))
			assert.Equal(t, tt.score, scored[0].Score)
			assert.Equal(t, tt.signals, scored[0].Signals)
		})
	}
}

func TestScoreRegionMismatch(t *testing.T) {
	assert.Empty(t, scoreText("빨간 바지", fixtureFrames()))
}

func TestScoreTimeWindowFiltersFirst(t *testing.T) {
	scored := scoreText("처음 5초 사람", fixtureFrames())
	assert.Equal(t, []string{"frame_0001"}, imageIDs(scored))

	scored = scoreText("처음 5초", []index.MetadataFrame{fixtureFrames()[1]})
	assert.Empty(t, scored, "frame at 6.5s is outside the window")
}

func TestScoreTimeOnly(t *testing.T) {
	scored := scoreText("처음 10초", fixtureFrames())
	require.Equal(t, []string{"frame_0001", "frame_0002"}, imageIDs(scored))
	for _, s := range scored {
		assert.Equal(t, 1, s.Score)
		assert.Equal(t, []string{SignalTimeWindow}, s.Signals)
	}
}

func TestScoreTieBreak(t *testing.T) {
	frames := []index.MetadataFrame{
		{ImageID: "b", Timestamp: 2, Objects: []index.ObjectRecord{object("dog")}},
		{ImageID: "a", Timestamp: 2, Objects: []index.ObjectRecord{object("dog")}},
		{ImageID: "c", Timestamp: 1, Objects: []index.ObjectRecord{object("dog")}},
		{ImageID: "d", Timestamp: 9, Objects: []index.ObjectRecord{object("dog")}, Caption: "a dog"},
	}
	scored := scoreText("강아지", frames)
	assert.Equal(t, []string{"d", "c", "a", "b"}, imageIDs(scored))
}

func TestScoreDeterministic(t *testing.T) {
	frames := fixtureFrames()
	reversed := make([]index.MetadataFrame, len(frames))
	for i, f := range frames {
		reversed[len(frames)-1-i] = f
	}

	q := Parse("사람 car", DefaultTerms(), 20)
	first := Score(q, frames)
	assert.Equal(t, first, Score(q, frames))
	assert.Equal(t, first, Score(q, reversed))
}

func TestScoreNoMatch(t *testing.T) {
	assert.Empty(t, scoreText("unicorn", fixtureFrames()))
	assert.Empty(t, scoreText("자전거", fixtureFrames()))
}
