package analysis

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSceneTags(t *testing.T) {
	tests := []struct {
		name         string
		gray         uint8
		wantScene    string
		wantLighting string
	}{
		{"bright daylight", 220, "outdoor", "bright"},
		{"overcast", 130, "outdoor", "normal"},
		{"office", 110, "indoor", "normal"},
		{"night", 30, "indoor", "dark"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := color.RGBA{tt.gray, tt.gray, tt.gray, 255}
			img := outfit(320, 240, c, c)
			scene, lighting := SceneTags(img)
			assert.Equal(t, tt.wantScene, scene)
			assert.Equal(t, tt.wantLighting, lighting)
		})
	}

	scene, lighting := SceneTags(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.Equal(t, "indoor", scene)
	assert.Equal(t, "dark", lighting)
}
