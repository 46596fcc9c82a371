package models

import (
	"fmt"
	"image"
	"math"
)

// BBox is a frame-relative box: all four values are fractions of the frame size.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BBoxFromCorners builds a frame-relative box from absolute corner coordinates.
// Coordinates are clamped to the frame.
func BBoxFromCorners(x1, y1, x2, y2, frameW, frameH float64) BBox {
	if frameW <= 0 || frameH <= 0 {
		return BBox{}
	}
	x1, x2 = clamp01(x1/frameW), clamp01(x2/frameW)
	y1, y2 = clamp01(y1/frameH), clamp01(y2/frameH)
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return BBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func (b BBox) Valid() bool {
	return b.Width > 0 && b.Height > 0 &&
		b.X >= 0 && b.Y >= 0 && b.X+b.Width <= 1.0001 && b.Y+b.Height <= 1.0001
}

// Pixels maps the box onto an image of the given bounds.
func (b BBox) Pixels(bounds image.Rectangle) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	r := image.Rect(
		bounds.Min.X+int(math.Round(b.X*w)),
		bounds.Min.Y+int(math.Round(b.Y*h)),
		bounds.Min.X+int(math.Round((b.X+b.Width)*w)),
		bounds.Min.Y+int(math.Round((b.Y+b.Height)*h)),
	)
	return r.Intersect(bounds)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Frame is a sampled still. Immutable once created by the sampler.
type Frame struct {
	VideoID   string
	RunID     string
	Index     int
	Timestamp float64
	ImageID   string
	ImagePath string
}

// ImageIDFor names the frame at a position in the sample plan.
func ImageIDFor(index int) string {
	return fmt.Sprintf("frame_%04d", index)
}

type Detection struct {
	ImageID    string
	Label      string
	BBox       BBox
	Confidence float64
}

func (d Detection) IsPerson() bool {
	return d.Label == "person"
}

type FrameCaption struct {
	Caption   string
	SceneType string
	Lighting  string
}

// Person is one person-class detection with its derived attributes.
type Person struct {
	Detection  Detection
	Attributes PersonAttributes
	Colors     ClothingColors
}

// FrameResult is everything the analysis pipeline produced for one frame.
type FrameResult struct {
	Frame      Frame
	Detections []Detection
	Persons    []Person
	Caption    FrameCaption
}
