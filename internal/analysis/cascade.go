package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/kdimtricp/vsearch/internal/ai"
	"github.com/kdimtricp/vsearch/internal/metrics"
	"github.com/kdimtricp/vsearch/internal/models"
)

// ConfidenceThreshold is the aggregate confidence at or above which the
// primary model's attributes are accepted without a fallback call.
const ConfidenceThreshold = 0.70

const DefaultFallbackCostPerCall = 0.015

const DefaultMaxFallbackCalls = 10

var (
	ErrFallbackBudget        = errors.New("fallback budget exhausted")
	ErrFallbackNotConfigured = errors.New("no fallback attribute model configured")
)

// Aggregation folds the three attribute confidences into one score.
type Aggregation string

const (
	AggregateMin  Aggregation = "min"
	AggregateMean Aggregation = "mean"
)

func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(s) {
	case "", AggregateMin:
		return AggregateMin, nil
	case AggregateMean:
		return AggregateMean, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

// Aggregate returns 0 for a nil result.
func Aggregate(res *ai.AttributeResult, agg Aggregation) float64 {
	if res == nil {
		return 0
	}
	g, a, e := unit(res.GenderConfidence), unit(res.AgeConfidence), unit(res.EmotionConfidence)
	if agg == AggregateMean {
		return (g + a + e) / 3
	}
	return math.Min(g, math.Min(a, e))
}

func unit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Outcome is the result of one model invocation.
type Outcome struct {
	Result *ai.AttributeResult
	Err    error
}

func (o Outcome) ok() bool { return o.Err == nil && o.Result != nil }

// Route decides what to do with a primary outcome. A nil fallback means the
// fallback has not been tried yet, and a DecisionFallback answer asks the
// caller to try it.
func Route(primary Outcome, fallback *Outcome, agg Aggregation) models.Decision {
	if primary.ok() && Aggregate(primary.Result, agg) >= ConfidenceThreshold {
		return models.DecisionPrimary
	}
	if fallback == nil || fallback.ok() {
		return models.DecisionFallback
	}
	return models.DecisionFlaggedLowConfidence
}

// CostTracker accumulates fallback spend for one analysis job and enforces
// its fallback call budget.
type CostTracker struct {
	mu       sync.Mutex
	maxCalls int
	calls    int
	cost     float64
}

// NewCostTracker returns a tracker allowing maxCalls fallback calls. A
// non-positive maxCalls means no limit.
func NewCostTracker(maxCalls int) *CostTracker {
	return &CostTracker{maxCalls: maxCalls}
}

// reserve claims one fallback call from the budget.
func (t *CostTracker) reserve() bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxCalls > 0 && t.calls >= t.maxCalls {
		return false
	}
	t.calls++
	return true
}

func (t *CostTracker) add(cost float64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.cost += cost
	t.mu.Unlock()
}

func (t *CostTracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cost
}

func (t *CostTracker) FallbackCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

type AnalyzerConfig struct {
	Aggregation         Aggregation
	FallbackCostPerCall float64
	// FallbackRate limits fallback calls per second. Zero means unlimited.
	FallbackRate float64
	Retry        ai.RetryPolicy
}

// Analyzer runs the two-tier person attribute cascade.
type Analyzer struct {
	primary  ai.AttributeModel
	fallback ai.AttributeModel
	cfg      AnalyzerConfig
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewAnalyzer wires the cascade. fallback may be nil, in which case every
// low-confidence primary result is flagged.
func NewAnalyzer(primary, fallback ai.AttributeModel, cfg AnalyzerConfig, m *metrics.Metrics, logger *slog.Logger) *Analyzer {
	if cfg.Aggregation == "" {
		cfg.Aggregation = AggregateMin
	}
	if cfg.FallbackCostPerCall <= 0 {
		cfg.FallbackCostPerCall = DefaultFallbackCostPerCall
	}
	limit := rate.Inf
	if cfg.FallbackRate > 0 {
		limit = rate.Limit(cfg.FallbackRate)
	}
	return &Analyzer{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  m,
		logger:   logger.With("component", "attribute_analyzer"),
	}
}

// Analyze returns normalized attributes for one person crop. It never fails:
// model errors end up as a flagged low-confidence result.
func (a *Analyzer) Analyze(ctx context.Context, crop []byte, tracker *CostTracker) models.PersonAttributes {
	primary := a.callPrimary(ctx, crop)

	decision := Route(primary, nil, a.cfg.Aggregation)
	if decision == models.DecisionPrimary {
		a.metrics.RecordDecision(string(decision))
		return a.normalize(primary.Result, models.SourcePrimary, decision, 0)
	}

	fallback := a.callFallback(ctx, crop, tracker)
	decision = Route(primary, &fallback, a.cfg.Aggregation)
	a.metrics.RecordDecision(string(decision))

	if decision == models.DecisionFallback {
		cost := fallback.Result.Cost
		if cost <= 0 {
			cost = a.cfg.FallbackCostPerCall
		}
		tracker.add(cost)
		a.metrics.RecordFallbackSpend(cost, fallback.Result.Tokens)
		return a.normalize(fallback.Result, models.SourceFallback, decision, cost)
	}

	a.logger.Warn("Attribute fallback failed, keeping primary result",
		"primary_confidence", Aggregate(primary.Result, a.cfg.Aggregation),
		"error", fallback.Err)
	attrs := a.normalize(primary.Result, models.SourcePrimary, decision, 0)
	attrs.LowConfidence = true
	return attrs
}

func (a *Analyzer) callPrimary(ctx context.Context, crop []byte) Outcome {
	if a.primary == nil {
		return Outcome{Err: ai.ErrNotConfigured}
	}
	res, err := ai.Retry(ctx, a.cfg.Retry, func(ctx context.Context) (*ai.AttributeResult, error) {
		return a.primary.Analyze(ctx, crop)
	})
	a.metrics.RecordModelCall(a.primary.Name(), err)
	if err != nil {
		a.logger.Warn("Primary attribute model failed", "model", a.primary.Name(), "error", err)
	}
	return Outcome{Result: res, Err: err}
}

func (a *Analyzer) callFallback(ctx context.Context, crop []byte, tracker *CostTracker) Outcome {
	if a.fallback == nil {
		return Outcome{Err: ErrFallbackNotConfigured}
	}
	if !tracker.reserve() {
		return Outcome{Err: ErrFallbackBudget}
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return Outcome{Err: fmt.Errorf("wait for fallback slot: %w", err)}
	}
	res, err := ai.Retry(ctx, a.cfg.Retry, func(ctx context.Context) (*ai.AttributeResult, error) {
		return a.fallback.Analyze(ctx, crop)
	})
	a.metrics.RecordModelCall(a.fallback.Name(), err)
	if err == nil && res == nil {
		err = errors.New("empty fallback response")
	}
	return Outcome{Result: res, Err: err}
}

func (a *Analyzer) normalize(res *ai.AttributeResult, source models.AttributeSource, decision models.Decision, cost float64) models.PersonAttributes {
	attrs := models.PersonAttributes{
		Gender:   models.GenderUnknown,
		AgeGroup: models.AgeUnknown,
		Emotion:  models.EmotionUnknown,
		Source:   source,
		Decision: decision,
		Cost:     cost,
	}
	if res == nil {
		return attrs
	}
	attrs.Gender = models.NormalizeGender(string(res.Gender))
	attrs.GenderConfidence = unit(res.GenderConfidence)
	attrs.Age = res.Age
	attrs.AgeConfidence = unit(res.AgeConfidence)
	attrs.AgeGroup = models.AgeGroupFor(res.Age)
	attrs.Emotion = models.NormalizeEmotion(string(res.Emotion))
	attrs.EmotionConfidence = unit(res.EmotionConfidence)
	attrs.Confidence = Aggregate(res, a.cfg.Aggregation)
	return attrs
}
