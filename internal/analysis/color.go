package analysis

import (
	"image"
	"image/color"
	"math"

	"github.com/kdimtricp/vsearch/internal/models"
)

const (
	achromaticSaturation = 0.14
	whiteValue           = 0.78
	blackValue           = 0.20
	maxRegionSamples     = 4096
)

// paletteAnchors are the RGB points used when no pixel casts a usable vote.
var paletteAnchors = []struct {
	label   string
	r, g, b float64
}{
	{"black", 20, 20, 20},
	{"white", 240, 240, 240},
	{"gray", 128, 128, 128},
	{"red", 200, 30, 30},
	{"orange", 220, 120, 40},
	{"yellow", 230, 210, 40},
	{"green", 40, 160, 60},
	{"blue", 40, 80, 200},
	{"purple", 130, 50, 160},
	{"pink", 240, 140, 180},
}

// ColorExtractor classifies the dominant garment colors of a person box.
type ColorExtractor struct{}

// Extract always returns exactly one palette label per region.
func (ColorExtractor) Extract(img image.Image, box models.BBox) models.ClothingColors {
	upper, lower := clothingRegions(box.Pixels(img.Bounds()), img.Bounds())
	up := classifyRegion(img, upper)
	up.Region = models.RegionUpper
	low := classifyRegion(img, lower)
	low.Region = models.RegionLower
	return models.ClothingColors{Upper: up, Lower: low}
}

// clothingRegions trims 20% off each side to cut background bleed, then
// takes 20-50% of the height as the upper body and 50-85% as the lower body.
func clothingRegions(r, bounds image.Rectangle) (image.Rectangle, image.Rectangle) {
	if r.Empty() {
		r = centreFallback(r, bounds)
	}
	w, h := r.Dx(), r.Dy()
	x0, x1 := r.Min.X+w*20/100, r.Min.X+w*80/100

	upper := image.Rect(x0, r.Min.Y+h*20/100, x1, r.Min.Y+h*50/100)
	lower := image.Rect(x0, r.Min.Y+h*50/100, x1, r.Min.Y+h*85/100)

	if upper.Dx() < 2 || upper.Dy() < 2 {
		upper = image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+(h+1)/2)
	}
	if lower.Dx() < 2 || lower.Dy() < 2 {
		lower = image.Rect(r.Min.X, r.Min.Y+h/2, r.Max.X, r.Max.Y)
	}
	return upper.Intersect(bounds), lower.Intersect(bounds)
}

// centreFallback turns a zero-area box into a single pixel inside bounds.
func centreFallback(r, bounds image.Rectangle) image.Rectangle {
	p := r.Min
	if p.X >= bounds.Max.X {
		p.X = bounds.Max.X - 1
	}
	if p.Y >= bounds.Max.Y {
		p.Y = bounds.Max.Y - 1
	}
	if p.X < bounds.Min.X {
		p.X = bounds.Min.X
	}
	if p.Y < bounds.Min.Y {
		p.Y = bounds.Min.Y
	}
	return image.Rect(p.X, p.Y, p.X+1, p.Y+1)
}

type colorVote struct {
	weight   float64
	hx, hy   float64 // hue as a unit vector, for a circular mean
	sat, val float64
	samples  float64
}

func classifyRegion(img image.Image, r image.Rectangle) models.ClothingColor {
	if r.Empty() {
		return models.ClothingColor{Label: "gray", Value: 0.5}
	}

	step := 1
	if area := r.Dx() * r.Dy(); area > maxRegionSamples {
		step = int(math.Sqrt(float64(area) / maxRegionSamples))
	}

	votes := make(map[string]*colorVote)
	var sumR, sumG, sumB, n float64

	for y := r.Min.Y; y < r.Max.Y; y += step {
		for x := r.Min.X; x < r.Max.X; x += step {
			cr, cg, cb := rgb8(img.At(x, y))
			sumR, sumG, sumB, n = sumR+cr, sumG+cg, sumB+cb, n+1

			h, s, v := rgbToHSV(cr, cg, cb)
			label, weight, ok := pixelVote(h, s, v)
			if !ok {
				continue
			}
			vote := votes[label]
			if vote == nil {
				vote = &colorVote{}
				votes[label] = vote
			}
			rad := h * math.Pi / 180
			vote.weight += weight
			vote.hx += math.Cos(rad)
			vote.hy += math.Sin(rad)
			vote.sat += s
			vote.val += v
			vote.samples++
		}
	}

	best, bestVote := "", (*colorVote)(nil)
	for _, label := range models.Palette {
		vote := votes[label]
		if vote == nil {
			continue
		}
		if bestVote == nil || vote.weight > bestVote.weight {
			best, bestVote = label, vote
		}
	}

	if bestVote == nil {
		mr, mg, mb := sumR/n, sumG/n, sumB/n
		h, s, v := rgbToHSV(mr, mg, mb)
		return models.ClothingColor{Label: nearestPalette(mr, mg, mb), Hue: h, Saturation: s, Value: v}
	}

	hue := math.Atan2(bestVote.hy, bestVote.hx) * 180 / math.Pi
	if hue < 0 {
		hue += 360
	}
	return models.ClothingColor{
		Label:      best,
		Hue:        hue,
		Saturation: bestVote.sat / bestVote.samples,
		Value:      bestVote.val / bestVote.samples,
	}
}

// pixelVote labels one pixel. Achromatic pixels vote with weight 1,
// chromatic ones with s*v so that vivid colors outweigh dull ones. Skin
// tones abstain.
func pixelVote(h, s, v float64) (string, float64, bool) {
	if s < achromaticSaturation || v < blackValue {
		switch {
		case v > whiteValue:
			return "white", 1, true
		case v < blackValue:
			return "black", 1, true
		default:
			return "gray", 1, true
		}
	}
	if h <= 50 && s >= 0.23 && s <= 0.68 && v > 0.35 {
		return "", 0, false
	}
	return hueLabel(h, s, v), s * v, true
}

// hueLabel bins a chromatic pixel. Pale reds read as pink.
func hueLabel(h, s, v float64) string {
	switch {
	case h < 15 || h >= 345:
		if s < 0.45 && v > 0.7 {
			return "pink"
		}
		return "red"
	case h < 45:
		return "orange"
	case h < 70:
		return "yellow"
	case h < 170:
		return "green"
	case h < 250:
		return "blue"
	case h < 290:
		return "purple"
	default:
		return "pink"
	}
}

func nearestPalette(r, g, b float64) string {
	best, bestDist := "gray", math.MaxFloat64
	for _, a := range paletteAnchors {
		d := (r-a.r)*(r-a.r) + (g-a.g)*(g-a.g) + (b-a.b)*(b-a.b)
		if d < bestDist {
			best, bestDist = a.label, d
		}
	}
	return best
}

func rgb8(c color.Color) (float64, float64, float64) {
	r, g, b, _ := c.RGBA()
	return float64(r >> 8), float64(g >> 8), float64(b >> 8)
}

// rgbToHSV takes 0-255 channels and returns H in [0,360), S and V in [0,1].
func rgbToHSV(r, g, b float64) (float64, float64, float64) {
	r, g, b = r/255, g/255, b/255
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	var h float64
	switch {
	case delta == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case maxC == g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if maxC > 0 {
		s = delta / maxC
	}
	return h, s, maxC
}
