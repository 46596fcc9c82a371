package query

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRange(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		text     string
		duration float64
		want     *TimeRange
	}{
		{"0:05~0:10 사이", 60, &TimeRange{5, 10}},
		{"1:00-1:30", 120, &TimeRange{60, 90}},
		{"1분~2분", 300, &TimeRange{60, 120}},
		{"10초~20초", 60, &TimeRange{10, 20}},
		{"5-10초 구간", 60, &TimeRange{5, 10}},
		{"5초부터 10초까지", 60, &TimeRange{5, 10}},
		{"처음 5초", 60, &TimeRange{0, 5}},
		{"처음 2분 동안", 600, &TimeRange{0, 120}},
		{"first 10 seconds", 60, &TimeRange{0, 10}},
		{"first 2 minutes", 600, &TimeRange{0, 120}},
		{"마지막 10초", 60, &TimeRange{50, 60}},
		{"last 5 seconds", 30, &TimeRange{25, 30}},
		{"last 90 seconds", 30, &TimeRange{0, 30}},
		{"30초 이후", 60, &TimeRange{30, inf}},
		{"after 45 seconds", 60, &TimeRange{45, inf}},
		{"between 5 and 10 seconds", 60, &TimeRange{5, 10}},
		{"20초~10초", 60, &TimeRange{10, 20}},
		{"red car", 60, nil},
		{"first 5 men", 60, nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, _, ok := parseTimeRange(Normalize(tt.text), tt.duration)
			if tt.want == nil {
				assert.False(t, ok)
				assert.Nil(t, got)
				return
			}
			require.True(t, ok)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestTimeRangeContainsIsInclusive(t *testing.T) {
	r := TimeRange{Start: 0, End: 5}
	assert.True(t, r.Contains(0))
	assert.True(t, r.Contains(5))
	assert.False(t, r.Contains(5.01))
	assert.False(t, r.Contains(-0.1))
}

func TestTimeRangeJSON(t *testing.T) {
	data, err := json.Marshal(TimeRange{Start: 30, End: math.Inf(1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":30,"end":null}`, string(data))

	data, err = json.Marshal(TimeRange{Start: 0, End: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":0,"end":5}`, string(data))
}
