package barcode

import (
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/pkg/errors"
)

// Rasterizer renders the first pages of a PDF to images.
type Rasterizer interface {
	Render(data []byte, maxPages int, dpi float64) ([]image.Image, error)
}

// FitzRasterizer renders pages with MuPDF through go-fitz.
type FitzRasterizer struct{}

// Render opens the PDF from memory and renders up to maxPages pages.
func (FitzRasterizer) Render(data []byte, maxPages int, dpi float64) ([]image.Image, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrCorruptDocument, "empty payload")
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptDocument, "open pdf: %v", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, errors.Wrap(ErrCorruptDocument, "pdf has no pages")
	}
	if maxPages > 0 && pageCount > maxPages {
		pageCount = maxPages
	}

	pages := make([]image.Image, 0, pageCount)
	for n := 0; n < pageCount; n++ {
		img, err := doc.ImageDPI(n, dpi)
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptDocument, "render page %d: %v", n+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}
