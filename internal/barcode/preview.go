package barcode

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// PreviewContentType is the MIME type of rendered previews.
const PreviewContentType = "image/jpeg"

// RenderPreview scales img to width pixels (keeping the aspect ratio) and
// encodes it as JPEG. Images narrower than width are not enlarged.
func RenderPreview(img image.Image, width int) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("empty image")
	}
	dst := img
	if width > 0 && b.Dx() > width {
		height := b.Dy() * width / b.Dx()
		if height < 1 {
			height = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Over, nil)
		dst = scaled
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, errors.Wrap(err, "encode preview")
	}
	return buf.Bytes(), nil
}
