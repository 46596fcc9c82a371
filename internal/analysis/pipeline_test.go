package analysis

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/vsearch/internal/ai"
	"github.com/kdimtricp/vsearch/internal/models"
)

type mockDetector struct {
	detections []models.Detection
	err        error
}

func (m *mockDetector) Name() string { return "yolo" }

func (m *mockDetector) Detect(ctx context.Context, frame []byte) ([]models.Detection, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]models.Detection(nil), m.detections...), nil
}

type mockCaptioner struct {
	caption *ai.Caption
	err     error
}

func (m *mockCaptioner) Caption(ctx context.Context, frame []byte) (*ai.Caption, error) {
	if m.err != nil {
		return nil, m.err
	}
	c := *m.caption
	return &c, nil
}

func sampledOutfit() ai.SampledFrame {
	img := outfit(200, 400, color.RGBA{255, 182, 193, 255}, color.RGBA{30, 60, 200, 255})
	return ai.SampledFrame{Index: 3, Timestamp: 1.5, JPEG: []byte("jpeg"), Image: img}
}

func testFrame() models.Frame {
	return models.Frame{VideoID: "v1", RunID: "r1", Index: 3, Timestamp: 1.5, ImageID: "frame_0003"}
}

func newProcessor(t *testing.T, det ai.Detector, capt ai.Captioner, primary ai.AttributeModel) *FrameProcessor {
	t.Helper()
	analyzer, m := testAnalyzer(t, primary, nil)
	return NewFrameProcessor(det, analyzer, capt, PipelineConfig{
		PersonWorkers: 2,
		Retry:         ai.RetryPolicy{Attempts: 1},
	}, m, discardLogger())
}

func TestProcessFrame(t *testing.T) {
	det := &mockDetector{detections: []models.Detection{
		{Label: "Person", BBox: fullFrame, Confidence: 0.91},
		{Label: "handbag", BBox: models.BBox{X: 0.6, Y: 0.5, Width: 0.2, Height: 0.1}, Confidence: 0.6},
		{Label: "person", BBox: models.BBox{X: 0.1, Y: 0.1, Width: 0.05, Height: 0.05}, Confidence: 0.4},
		{Label: "chair", BBox: models.BBox{}, Confidence: 0.7},
	}}
	capt := &mockCaptioner{caption: &ai.Caption{Text: " A woman in a pink top walks past. ", SceneType: "outdoor"}}
	primary := &mockAttributeModel{name: "deepface", result: attrs(0.95, 0.8, 0.9)}
	p := newProcessor(t, det, capt, primary)

	got := p.Process(context.Background(), sampledOutfit(), testFrame(), NewCostTracker(10))

	require.Len(t, got.Detections, 3, "invalid boxes are dropped")
	for _, d := range got.Detections {
		assert.Equal(t, "frame_0003", d.ImageID)
	}
	assert.Equal(t, "person", got.Detections[0].Label)

	require.Len(t, got.Persons, 2)
	assert.Equal(t, "pink", got.Persons[0].Colors.Upper.Label)
	assert.Equal(t, "blue", got.Persons[0].Colors.Lower.Label)
	assert.Equal(t, models.DecisionPrimary, got.Persons[0].Attributes.Decision)
	assert.Equal(t, models.GenderFemale, got.Persons[0].Attributes.Gender)

	small := got.Persons[1].Attributes
	assert.True(t, small.LowConfidence, "small boxes skip attribute models")
	assert.Equal(t, models.GenderUnknown, small.Gender)
	assert.Equal(t, int32(1), primary.calls.Load())

	assert.Equal(t, "A woman in a pink top walks past.", got.Caption.Caption)
	assert.Equal(t, "outdoor", got.Caption.SceneType)
	assert.NotEmpty(t, got.Caption.Lighting, "missing tags come from the brightness heuristic")
}

func TestProcessFrameDetectorFailure(t *testing.T) {
	det := &mockDetector{err: errors.New("connection refused")}
	capt := &mockCaptioner{caption: &ai.Caption{Text: "An empty hallway."}}
	p := newProcessor(t, det, capt, nil)

	got := p.Process(context.Background(), sampledOutfit(), testFrame(), NewCostTracker(10))

	assert.Empty(t, got.Detections)
	assert.Empty(t, got.Persons)
	assert.Equal(t, "An empty hallway.", got.Caption.Caption)
	assert.Equal(t, testFrame(), got.Frame)
}

func TestProcessFrameCaptionerFailure(t *testing.T) {
	det := &mockDetector{}
	capt := &mockCaptioner{err: errors.New("rate limited")}
	p := newProcessor(t, det, capt, nil)

	got := p.Process(context.Background(), sampledOutfit(), testFrame(), NewCostTracker(10))

	assert.Empty(t, got.Caption.Caption)
	assert.Contains(t, []string{"indoor", "outdoor"}, got.Caption.SceneType)
	assert.Contains(t, []string{"bright", "normal", "dark"}, got.Caption.Lighting)
}
