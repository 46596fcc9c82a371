package ai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kdimtricp/vsearch/internal/models"
)

// HTTPAttributeModel is the free primary attribute model, served by a
// DeepFace-style sidecar.
type HTTPAttributeModel struct {
	endpoint string
	client   *http.Client
}

type faceAttributesResponse struct {
	Gender            string  `json:"gender"`
	GenderConfidence  float64 `json:"gender_confidence"`
	Age               float64 `json:"age"`
	AgeConfidence     float64 `json:"age_confidence"`
	Emotion           string  `json:"emotion"`
	EmotionConfidence float64 `json:"emotion_confidence"`
}

func NewHTTPAttributeModel(endpoint string, client *http.Client) *HTTPAttributeModel {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTTPAttributeModel{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}
}

func (m *HTTPAttributeModel) Name() string { return "deepface" }

func (m *HTTPAttributeModel) Analyze(ctx context.Context, crop []byte) (*AttributeResult, error) {
	body, contentType, err := multipartImage("person.jpg", crop, nil)
	if err != nil {
		return nil, err
	}

	var resp faceAttributesResponse
	if err := postJSON(ctx, m.client, "attribute model", m.endpoint+"/analyze", body, contentType, &resp); err != nil {
		return nil, err
	}

	return &AttributeResult{
		Gender:            models.NormalizeGender(resp.Gender),
		GenderConfidence:  unitConfidence(resp.GenderConfidence),
		Age:               int(resp.Age + 0.5),
		AgeConfidence:     unitConfidence(resp.AgeConfidence),
		Emotion:           models.NormalizeEmotion(resp.Emotion),
		EmotionConfidence: unitConfidence(resp.EmotionConfidence),
	}, nil
}

func (m *HTTPAttributeModel) Health(ctx context.Context) error {
	return getHealth(ctx, m.client, "attribute model", m.endpoint+"/health")
}

// unitConfidence accepts both 0-1 and 0-100 scales.
func unitConfidence(v float64) float64 {
	if v > 1 {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
