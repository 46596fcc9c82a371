package ai

import (
	"context"
	"image"

	"github.com/kdimtricp/vsearch/internal/models"
)

// VideoInfo is what the sampler needs to know about a source file.
type VideoInfo struct {
	Duration  float64
	FrameRate float64
	Width     int
	Height    int
}

// SampledFrame is one decoded still at a planned timestamp.
type SampledFrame struct {
	Index     int
	Timestamp float64
	JPEG      []byte
	Image     image.Image
}

// Detector finds labelled boxes in a frame. Boxes come back frame-relative.
type Detector interface {
	Name() string
	Detect(ctx context.Context, frame []byte) ([]models.Detection, error)
}

// AttributeResult is the normalized output of any person attribute model.
// Confidences are in [0,1].
type AttributeResult struct {
	Gender            models.Gender
	GenderConfidence  float64
	Age               int
	AgeConfidence     float64
	Emotion           models.Emotion
	EmotionConfidence float64
	// Cost is the incremental spend of the call in USD.
	Cost   float64
	Tokens int
}

type AttributeModel interface {
	Name() string
	Analyze(ctx context.Context, crop []byte) (*AttributeResult, error)
}

type Caption struct {
	Text      string `json:"caption"`
	SceneType string `json:"scene_type"`
	Lighting  string `json:"lighting"`
}

type Captioner interface {
	Caption(ctx context.Context, frame []byte) (*Caption, error)
}
