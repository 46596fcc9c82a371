package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/kdimtricp/vsearch/internal/models"
)

const (
	minCropWidth  = 30
	minCropHeight = 50
)

var ErrDegenerateCrop = errors.New("degenerate bounding box")

// CropPerson cuts box out of img and JPEG-encodes it, scaled down so its
// longer side is at most maxSide pixels.
func CropPerson(img image.Image, box models.BBox, maxSide int) ([]byte, error) {
	rect := box.Pixels(img.Bounds())
	if rect.Dx() < minCropWidth || rect.Dy() < minCropHeight {
		return nil, fmt.Errorf("%dx%d crop: %w", rect.Dx(), rect.Dy(), ErrDegenerateCrop)
	}

	dstW, dstH := rect.Dx(), rect.Dy()
	if maxSide > 0 && (dstW > maxSide || dstH > maxSide) {
		if dstW >= dstH {
			dstH = dstH * maxSide / dstW
			dstW = maxSide
		} else {
			dstW = dstW * maxSide / dstH
			dstH = maxSide
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	if dstW == rect.Dx() && dstH == rect.Dy() {
		draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
