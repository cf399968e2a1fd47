package barcode

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Decoder finds barcode texts in a rendered page.
type Decoder interface {
	Decode(img image.Image) []string
}

// ZXingDecoder tries QR, Data Matrix and Code 128 readers over the full page,
// the top and bottom quarters, and the page turned upside down. It stops at
// the first region that yields anything.
type ZXingDecoder struct {
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZXingDecoder builds a decoder with the letter symbologies enabled.
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		readers: []gozxing.Reader{
			qrcode.NewQRCodeReader(),
			datamatrix.NewDataMatrixReader(),
			oned.NewCode128Reader(),
		},
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode returns every distinct text found in the first region that decodes.
func (d *ZXingDecoder) Decode(img image.Image) []string {
	for _, region := range regions(img) {
		if found := d.decodeRegion(region); len(found) > 0 {
			return found
		}
	}
	return nil
}

func (d *ZXingDecoder) decodeRegion(img image.Image) []string {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, reader := range d.readers {
		res, err := reader.Decode(bmp, d.hints)
		reader.Reset()
		if err != nil || res == nil {
			continue
		}
		text := res.GetText()
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}
	return out
}

// regions lists the page areas tried in order. Letter barcodes are printed in
// the header or footer band.
func regions(img image.Image) []image.Image {
	b := img.Bounds()
	quarter := b.Dy() / 4
	out := []image.Image{img}
	if quarter > 0 {
		out = append(out,
			crop(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+quarter)),
			crop(img, image.Rect(b.Min.X, b.Max.Y-quarter, b.Max.X, b.Max.Y)),
		)
	}
	return append(out, rotate180(img))
}

func crop(img image.Image, r image.Rectangle) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	// maps source (x, y) to (w-x, h-y) after moving the source origin to zero
	s2d := f64.Aff3{
		-1, 0, w + float64(b.Min.X),
		0, -1, h + float64(b.Min.Y),
	}
	draw.NearestNeighbor.Transform(dst, s2d, img, b, draw.Src, nil)
	return dst
}
