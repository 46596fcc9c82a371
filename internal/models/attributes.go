package models

import "strings"

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

type Emotion string

const (
	EmotionHappy    Emotion = "happy"
	EmotionSad      Emotion = "sad"
	EmotionAngry    Emotion = "angry"
	EmotionSurprise Emotion = "surprise"
	EmotionFear     Emotion = "fear"
	EmotionDisgust  Emotion = "disgust"
	EmotionNeutral  Emotion = "neutral"
	EmotionUnknown  Emotion = "unknown"
)

type AgeGroup string

const (
	AgeChild      AgeGroup = "child"
	AgeTeenager   AgeGroup = "teenager"
	AgeYoungAdult AgeGroup = "young_adult"
	AgeMiddleAged AgeGroup = "middle_aged"
	AgeElderly    AgeGroup = "elderly"
	AgeUnknown    AgeGroup = "unknown"
)

// AttributeSource names the model whose output was persisted.
type AttributeSource string

const (
	SourcePrimary  AttributeSource = "primary"
	SourceFallback AttributeSource = "fallback"
)

// Decision is the tagged outcome of the attribute cascade.
type Decision string

const (
	DecisionPrimary              Decision = "primary"
	DecisionFallback             Decision = "fallback"
	DecisionFlaggedLowConfidence Decision = "flagged_low_confidence"
)

type PersonAttributes struct {
	Gender            Gender
	GenderConfidence  float64
	Age               int
	AgeConfidence     float64
	AgeGroup          AgeGroup
	Emotion           Emotion
	EmotionConfidence float64
	Confidence        float64
	Source            AttributeSource
	Decision          Decision
	LowConfidence     bool
	Cost              float64
}

type ColorRegion string

const (
	RegionUpper ColorRegion = "upper"
	RegionLower ColorRegion = "lower"
)

// Palette is the fixed set of clothing color labels.
var Palette = []string{
	"black", "white", "gray", "red", "orange",
	"yellow", "green", "blue", "purple", "pink",
}

func InPalette(label string) bool {
	for _, p := range Palette {
		if p == label {
			return true
		}
	}
	return false
}

type ClothingColor struct {
	Region     ColorRegion
	Label      string
	Hue        float64
	Saturation float64
	Value      float64
}

type ClothingColors struct {
	Upper ClothingColor
	Lower ClothingColor
}

func AgeGroupFor(age int) AgeGroup {
	switch {
	case age <= 0:
		return AgeUnknown
	case age < 13:
		return AgeChild
	case age < 20:
		return AgeTeenager
	case age < 35:
		return AgeYoungAdult
	case age < 60:
		return AgeMiddleAged
	default:
		return AgeElderly
	}
}

// NormalizeGender maps model vocabularies ("Man", "woman", "M", ...) onto Gender.
func NormalizeGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "man", "m", "boy":
		return GenderMale
	case "female", "woman", "f", "girl":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

func NormalizeEmotion(s string) Emotion {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "happy", "happiness", "joy", "smiling":
		return EmotionHappy
	case "sad", "sadness":
		return EmotionSad
	case "angry", "anger":
		return EmotionAngry
	case "surprise", "surprised":
		return EmotionSurprise
	case "fear", "afraid", "scared":
		return EmotionFear
	case "disgust", "disgusted":
		return EmotionDisgust
	case "neutral", "calm":
		return EmotionNeutral
	default:
		return EmotionUnknown
	}
}
