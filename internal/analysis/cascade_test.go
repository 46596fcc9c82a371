package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/vsearch/internal/ai"
	"github.com/kdimtricp/vsearch/internal/metrics"
	"github.com/kdimtricp/vsearch/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockAttributeModel struct {
	name   string
	result *ai.AttributeResult
	err    error
	calls  atomic.Int32
}

func (m *mockAttributeModel) Name() string { return m.name }

func (m *mockAttributeModel) Analyze(ctx context.Context, crop []byte) (*ai.AttributeResult, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	res := *m.result
	return &res, nil
}

func attrs(g, a, e float64) *ai.AttributeResult {
	return &ai.AttributeResult{
		Gender: "Woman", GenderConfidence: g,
		Age: 27, AgeConfidence: a,
		Emotion: "happy", EmotionConfidence: e,
	}
}

func testAnalyzer(t *testing.T, primary, fallback ai.AttributeModel) (*Analyzer, *metrics.Metrics) {
	t.Helper()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	a := NewAnalyzer(primary, fallback, AnalyzerConfig{
		Retry: ai.RetryPolicy{Attempts: 1},
	}, m, discardLogger())
	return a, m
}

func TestThresholdAndAggregationArePinned(t *testing.T) {
	assert.Equal(t, 0.70, ConfidenceThreshold)

	a, _ := testAnalyzer(t, nil, nil)
	assert.Equal(t, AggregateMin, a.cfg.Aggregation)

	res := attrs(0.9, 0.5, 0.8)
	assert.InDelta(t, 0.5, Aggregate(res, AggregateMin), 1e-9)
	assert.InDelta(t, 0.7333, Aggregate(res, AggregateMean), 1e-3)
	assert.Equal(t, 0.0, Aggregate(nil, AggregateMin))
}

func TestParseAggregation(t *testing.T) {
	agg, err := ParseAggregation("")
	require.NoError(t, err)
	assert.Equal(t, AggregateMin, agg)

	agg, err = ParseAggregation("mean")
	require.NoError(t, err)
	assert.Equal(t, AggregateMean, agg)

	_, err = ParseAggregation("max")
	assert.Error(t, err)
}

func TestRoute(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		primary  Outcome
		fallback *Outcome
		want     models.Decision
	}{
		{"confident primary", Outcome{Result: attrs(0.9, 0.8, 0.75)}, nil, models.DecisionPrimary},
		{"exactly at threshold", Outcome{Result: attrs(0.7, 0.7, 0.7)}, nil, models.DecisionPrimary},
		{"low primary, fallback untried", Outcome{Result: attrs(0.9, 0.4, 0.9)}, nil, models.DecisionFallback},
		{"primary error counts as zero", Outcome{Err: boom}, nil, models.DecisionFallback},
		{"fallback succeeded", Outcome{Result: attrs(0.9, 0.4, 0.9)}, &Outcome{Result: attrs(0.8, 0.8, 0.8)}, models.DecisionFallback},
		{"fallback failed", Outcome{Result: attrs(0.9, 0.4, 0.9)}, &Outcome{Err: boom}, models.DecisionFlaggedLowConfidence},
		{"both failed", Outcome{Err: boom}, &Outcome{Err: boom}, models.DecisionFlaggedLowConfidence},
		{"confident primary ignores fallback", Outcome{Result: attrs(0.9, 0.9, 0.9)}, &Outcome{Err: boom}, models.DecisionPrimary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.primary, tt.fallback, AggregateMin))
		})
	}
}

func TestRouteAcceptsPrimaryIffAggregateMeetsThreshold(t *testing.T) {
	steps := []float64{0, 0.3, 0.69, 0.6999, 0.7, 0.71, 0.85, 1}
	for _, g := range steps {
		for _, a := range steps {
			for _, e := range steps {
				res := attrs(g, a, e)
				accepted := Route(Outcome{Result: res}, nil, AggregateMin) == models.DecisionPrimary
				assert.Equal(t, Aggregate(res, AggregateMin) >= ConfidenceThreshold, accepted,
					"g=%v a=%v e=%v", g, a, e)
			}
		}
	}
}

func TestAnalyzeAcceptsConfidentPrimary(t *testing.T) {
	primary := &mockAttributeModel{name: "deepface", result: attrs(0.95, 0.8, 0.9)}
	fallback := &mockAttributeModel{name: "openai", result: attrs(0.9, 0.9, 0.9)}
	a, m := testAnalyzer(t, primary, fallback)
	tracker := NewCostTracker(DefaultMaxFallbackCalls)

	got := a.Analyze(context.Background(), []byte("crop"), tracker)

	assert.Equal(t, models.DecisionPrimary, got.Decision)
	assert.Equal(t, models.SourcePrimary, got.Source)
	assert.Equal(t, models.GenderFemale, got.Gender)
	assert.Equal(t, models.AgeYoungAdult, got.AgeGroup)
	assert.Equal(t, 0.0, got.Cost)
	assert.Equal(t, int32(0), fallback.calls.Load())
	assert.Equal(t, 0.0, tracker.Total())
	assert.InDelta(t, 1, testutil.ToFloat64(m.AttributeDecisions.WithLabelValues("primary")), 1e-9)
}

func TestAnalyzeEscalatesLowConfidenceAndRecordsCost(t *testing.T) {
	primary := &mockAttributeModel{name: "deepface", result: attrs(0.95, 0.40, 0.9)}
	fb := attrs(0.9, 0.85, 0.8)
	fb.Gender = "male"
	fb.Tokens = 210
	fallback := &mockAttributeModel{name: "openai", result: fb}
	a, m := testAnalyzer(t, primary, fallback)
	tracker := NewCostTracker(DefaultMaxFallbackCalls)

	got := a.Analyze(context.Background(), []byte("crop"), tracker)

	assert.Equal(t, models.DecisionFallback, got.Decision)
	assert.Equal(t, models.SourceFallback, got.Source)
	assert.Equal(t, models.GenderMale, got.Gender)
	assert.False(t, got.LowConfidence)
	assert.InDelta(t, 0.015, got.Cost, 1e-9)
	assert.InDelta(t, 0.015, tracker.Total(), 1e-9)
	assert.Equal(t, 1, tracker.FallbackCalls())
	assert.InDelta(t, 0.015, testutil.ToFloat64(m.FallbackCost), 1e-9)
	assert.InDelta(t, 210, testutil.ToFloat64(m.FallbackTokens), 1e-9)
}

func TestAnalyzeChargesModelReportedCost(t *testing.T) {
	primary := &mockAttributeModel{name: "deepface", result: attrs(0.95, 0.40, 0.9)}
	fb := attrs(0.9, 0.85, 0.8)
	fb.Cost = 0.042
	fallback := &mockAttributeModel{name: "openai", result: fb}
	a, m := testAnalyzer(t, primary, fallback)
	tracker := NewCostTracker(DefaultMaxFallbackCalls)

	got := a.Analyze(context.Background(), []byte("crop"), tracker)
	got2 := a.Analyze(context.Background(), []byte("crop"), tracker)

	assert.Equal(t, models.DecisionFallback, got.Decision)
	assert.InDelta(t, 0.042, got.Cost, 1e-9)
	assert.InDelta(t, 0.042, got2.Cost, 1e-9)
	assert.InDelta(t, 0.084, tracker.Total(), 1e-9)
	assert.InDelta(t, 0.084, testutil.ToFloat64(m.FallbackCost), 1e-9)
}

func TestAnalyzeFlagsWhenFallbackFails(t *testing.T) {
	primary := &mockAttributeModel{name: "deepface", result: attrs(0.95, 0.40, 0.9)}
	fallback := &mockAttributeModel{name: "openai", err: errors.New("invalid api key")}
	a, m := testAnalyzer(t, primary, fallback)
	tracker := NewCostTracker(DefaultMaxFallbackCalls)

	got := a.Analyze(context.Background(), []byte("crop"), tracker)

	assert.Equal(t, models.DecisionFlaggedLowConfidence, got.Decision)
	assert.Equal(t, models.SourcePrimary, got.Source)
	assert.True(t, got.LowConfidence)
	assert.Equal(t, models.GenderFemale, got.Gender, "primary attributes are kept")
	assert.InDelta(t, 0.40, got.Confidence, 1e-9)
	assert.Equal(t, 0.0, tracker.Total())
	assert.InDelta(t, 1, testutil.ToFloat64(m.AttributeDecisions.WithLabelValues("flagged_low_confidence")), 1e-9)
}

func TestAnalyzePrimaryErrorGoesToFallback(t *testing.T) {
	primary := &mockAttributeModel{name: "deepface", err: errors.New("no face")}
	fallback := &mockAttributeModel{name: "openai", result: attrs(0.8, 0.8, 0.8)}
	a, _ := testAnalyzer(t, primary, fallback)

	got := a.Analyze(context.Background(), []byte("crop"), NewCostTracker(0))

	assert.Equal(t, models.DecisionFallback, got.Decision)
	assert.Equal(t, int32(1), fallback.calls.Load())
}

func TestAnalyzeBothFailedYieldsUnknowns(t *testing.T) {
	primary := &mockAttributeModel{name: "deepface", err: errors.New("no face")}
	a, _ := testAnalyzer(t, primary, nil)

	got := a.Analyze(context.Background(), []byte("crop"), NewCostTracker(0))

	assert.Equal(t, models.DecisionFlaggedLowConfidence, got.Decision)
	assert.Equal(t, models.GenderUnknown, got.Gender)
	assert.Equal(t, models.EmotionUnknown, got.Emotion)
	assert.Equal(t, models.AgeUnknown, got.AgeGroup)
	assert.True(t, got.LowConfidence)
}

func TestAnalyzeRespectsFallbackBudget(t *testing.T) {
	primary := &mockAttributeModel{name: "deepface", result: attrs(0.5, 0.5, 0.5)}
	fallback := &mockAttributeModel{name: "openai", result: attrs(0.9, 0.9, 0.9)}
	a, _ := testAnalyzer(t, primary, fallback)
	tracker := NewCostTracker(2)

	var decisions []models.Decision
	for i := 0; i < 4; i++ {
		decisions = append(decisions, a.Analyze(context.Background(), []byte("crop"), tracker).Decision)
	}

	assert.Equal(t, []models.Decision{
		models.DecisionFallback,
		models.DecisionFallback,
		models.DecisionFlaggedLowConfidence,
		models.DecisionFlaggedLowConfidence,
	}, decisions)
	assert.Equal(t, int32(2), fallback.calls.Load())
	assert.InDelta(t, 0.030, tracker.Total(), 1e-9)
}
