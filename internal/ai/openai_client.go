package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/kdimtricp/vsearch/internal/models"
)

const (
	defaultFallbackModel = "gpt-4o-mini"
	defaultCaptionModel  = "gpt-4o-mini"
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func newChatClient(cfg OpenAIConfig) chatCompleter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// visionJSON sends one image with a prompt and decodes the JSON reply into out.
func visionJSON(ctx context.Context, api chatCompleter, model, prompt string, image []byte, out any) (openai.Usage, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens:   300,
		Temperature: 0,
	})
	if err != nil {
		return openai.Usage{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return resp.Usage, fmt.Errorf("no response from OpenAI")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), out); err != nil {
		return resp.Usage, fmt.Errorf("failed to parse model reply: %w", err)
	}
	return resp.Usage, nil
}

const attributePrompt = `Analyze the single person in this image.
Reply with JSON only, using exactly these keys:
{"gender": "male|female|unknown", "gender_confidence": 0.0-1.0,
 "age": integer years, "age_confidence": 0.0-1.0,
 "emotion": "happy|sad|angry|surprise|fear|disgust|neutral",
 "emotion_confidence": 0.0-1.0}`

// OpenAIAttributeModel is the paid fallback for ambiguous person crops.
type OpenAIAttributeModel struct {
	api         chatCompleter
	model       string
	costPerCall float64
}

func NewOpenAIAttributeModel(cfg OpenAIConfig, costPerCall float64) *OpenAIAttributeModel {
	if cfg.Model == "" {
		cfg.Model = defaultFallbackModel
	}
	return &OpenAIAttributeModel{
		api:         newChatClient(cfg),
		model:       cfg.Model,
		costPerCall: costPerCall,
	}
}

func (m *OpenAIAttributeModel) Name() string { return m.model }

func (m *OpenAIAttributeModel) Analyze(ctx context.Context, crop []byte) (*AttributeResult, error) {
	var reply faceAttributesResponse
	usage, err := visionJSON(ctx, m.api, m.model, attributePrompt, crop, &reply)
	if err != nil {
		return nil, err
	}

	return &AttributeResult{
		Gender:            models.NormalizeGender(reply.Gender),
		GenderConfidence:  unitConfidence(reply.GenderConfidence),
		Age:               int(reply.Age + 0.5),
		AgeConfidence:     unitConfidence(reply.AgeConfidence),
		Emotion:           models.NormalizeEmotion(reply.Emotion),
		EmotionConfidence: unitConfidence(reply.EmotionConfidence),
		Cost:              m.costPerCall,
		Tokens:            usage.TotalTokens,
	}, nil
}

const captionPrompt = `Describe this video frame in one or two English sentences:
mention the people (count, apparent gender and age, clothing colors), notable
objects, and what is happening. Reply with JSON only:
{"caption": "...", "scene_type": "indoor|outdoor", "lighting": "bright|normal|dark"}`

type OpenAICaptioner struct {
	api   chatCompleter
	model string
}

func NewOpenAICaptioner(cfg OpenAIConfig) *OpenAICaptioner {
	if cfg.Model == "" {
		cfg.Model = defaultCaptionModel
	}
	return &OpenAICaptioner{
		api:   newChatClient(cfg),
		model: cfg.Model,
	}
}

func (c *OpenAICaptioner) Caption(ctx context.Context, frame []byte) (*Caption, error) {
	var caption Caption
	if _, err := visionJSON(ctx, c.api, c.model, captionPrompt, frame, &caption); err != nil {
		return nil, err
	}
	caption.Text = strings.TrimSpace(caption.Text)
	caption.SceneType = normalizeTag(caption.SceneType, "indoor", "outdoor")
	caption.Lighting = normalizeTag(caption.Lighting, "bright", "normal", "dark")
	return &caption, nil
}

// normalizeTag keeps v only when it is one of the allowed values.
func normalizeTag(v string, allowed ...string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return ""
}
