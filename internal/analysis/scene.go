package analysis

import (
	"image"
	"math"
)

// SceneTags derives coarse scene tags from mean luma when the captioner
// does not supply them.
func SceneTags(img image.Image) (sceneType, lighting string) {
	b := img.Bounds()
	if b.Empty() {
		return "indoor", "dark"
	}

	step := 1
	if area := b.Dx() * b.Dy(); area > maxRegionSamples*4 {
		step = int(math.Sqrt(float64(area) / (maxRegionSamples * 4)))
	}

	var sum, n float64
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl := rgb8(img.At(x, y))
			sum += 0.299*r + 0.587*g + 0.114*bl
			n++
		}
	}
	luma := sum / n

	sceneType = "indoor"
	if luma > 120 {
		sceneType = "outdoor"
	}
	switch {
	case luma > 150:
		lighting = "bright"
	case luma > 100:
		lighting = "normal"
	default:
		lighting = "dark"
	}
	return sceneType, lighting
}
