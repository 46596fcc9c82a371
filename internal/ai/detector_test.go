package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockClient(t *testing.T) (*http.Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	return &http.Client{Transport: transport}, transport
}

func TestHTTPDetectorDetect(t *testing.T) {
	client, transport := mockClient(t)
	transport.RegisterResponder(http.MethodPost, "http://detector.test/detect",
		httpmock.NewStringResponder(http.StatusOK, `{
			"image_width": 200, "image_height": 100,
			"detections": [
				{"class": "person", "confidence": 0.91, "bbox": [20, 10, 60, 90]},
				{"class": "Handbag", "confidence": 0.55, "bbox": [100, 50, 120, 70]},
				{"class": "cup", "confidence": 0.40, "bbox": [1, 2]},
				{"class": "tv", "confidence": 0.40, "bbox": [10, 10, 10, 10]}
			]
		}`))

	detector := NewHTTPDetector("http://detector.test/", 0.25, client)
	detections, err := detector.Detect(context.Background(), []byte("jpeg"))
	require.NoError(t, err)
	require.Len(t, detections, 2)

	person := detections[0]
	assert.Equal(t, "person", person.Label)
	assert.True(t, person.IsPerson())
	assert.InDelta(t, 0.1, person.BBox.X, 1e-9)
	assert.InDelta(t, 0.1, person.BBox.Y, 1e-9)
	assert.InDelta(t, 0.2, person.BBox.Width, 1e-9)
	assert.InDelta(t, 0.8, person.BBox.Height, 1e-9)
	assert.InDelta(t, 0.91, person.Confidence, 1e-9)

	assert.Equal(t, "handbag", detections[1].Label)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestHTTPDetectorRelativeBoxes(t *testing.T) {
	client, transport := mockClient(t)
	transport.RegisterResponder(http.MethodPost, "http://detector.test/detect",
		httpmock.NewStringResponder(http.StatusOK, `{"detections": [{"class": "dog", "confidence": 0.8, "bbox": [0.5, 0.5, 0.75, 1.0]}]}`))

	detections, err := NewHTTPDetector("http://detector.test", 0, client).Detect(context.Background(), []byte("jpeg"))
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.InDelta(t, 0.25, detections[0].BBox.Width, 1e-9)
}

func TestHTTPDetectorStatusErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"unavailable", http.StatusServiceUnavailable, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := mockClient(t)
			transport.RegisterResponder(http.MethodPost, "http://detector.test/detect",
				httpmock.NewStringResponder(tt.status, `{"error": "nope"}`))

			_, err := NewHTTPDetector("http://detector.test", 0.25, client).Detect(context.Background(), []byte("jpeg"))
			require.Error(t, err)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.Code)
			assert.Equal(t, tt.wantTransient, IsTransient(err))
		})
	}
}

func TestHTTPAttributeModelAnalyze(t *testing.T) {
	client, transport := mockClient(t)
	transport.RegisterResponder(http.MethodPost, "http://faces.test/analyze",
		httpmock.NewStringResponder(http.StatusOK, `{
			"gender": "Woman", "gender_confidence": 97.5,
			"age": 27.6, "age_confidence": 0.8,
			"emotion": "happiness", "emotion_confidence": 0.66
		}`))

	model := NewHTTPAttributeModel("http://faces.test", client)
	res, err := model.Analyze(context.Background(), []byte("crop"))
	require.NoError(t, err)

	assert.Equal(t, "female", string(res.Gender))
	assert.InDelta(t, 0.975, res.GenderConfidence, 1e-9)
	assert.Equal(t, 28, res.Age)
	assert.Equal(t, "happy", string(res.Emotion))
	assert.InDelta(t, 0.66, res.EmotionConfidence, 1e-9)
	assert.Zero(t, res.Cost)
}

func TestHealthChecks(t *testing.T) {
	client, transport := mockClient(t)
	transport.RegisterResponder(http.MethodGet, "http://detector.test/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))
	transport.RegisterResponder(http.MethodGet, "http://faces.test/health",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, ``))

	assert.NoError(t, NewHTTPDetector("http://detector.test", 0, client).Health(context.Background()))
	assert.Error(t, NewHTTPAttributeModel("http://faces.test", client).Health(context.Background()))
}
