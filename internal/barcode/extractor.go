package barcode

import (
	"context"
	"image"
	"sort"

	"github.com/pkg/errors"
)

// Defaults applied when an Extractor field is left zero.
const (
	DefaultDPI          = 200
	DefaultMaxPages     = 2
	DefaultPreviewWidth = 600
)

// Source records how the identity was obtained.
const (
	SourceBarcode   = "barcode"
	SourceTextLayer = "text_layer"
)

// Result is the identity decoded from one scanned letter plus its preview.
type Result struct {
	Identity
	Source      string
	Pages       int
	Preview     []byte
	PreviewType string
}

// Extractor turns one PDF into a letter identity.
type Extractor struct {
	Raster       Rasterizer
	Decoder      Decoder
	TextLayer    TextLayer
	Separator    string
	DPI          float64
	MaxPages     int
	PreviewWidth int
}

// NewExtractor returns an Extractor using go-fitz, gozxing and the PDF text layer.
func NewExtractor() *Extractor {
	return &Extractor{
		Raster:    FitzRasterizer{},
		Decoder:   NewZXingDecoder(),
		TextLayer: PDFTextLayer{},
	}
}

// Extract decodes the barcode of a scanned letter. Errors wrap one of
// ErrCorruptDocument, ErrNoBarcode, ErrAmbiguousBarcode or ErrInvalidPayload
// and carry a stack trace.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileName string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	pages, err := e.Raster.Render(data, e.maxPages(), e.dpi())
	if err != nil {
		return Result{}, errors.WithMessagef(err, "file %s", fileName)
	}
	if len(pages) == 0 {
		return Result{}, errors.Wrapf(ErrCorruptDocument, "file %s: no pages rendered", fileName)
	}

	identity, source, err := e.identify(pages, data)
	if err != nil {
		return Result{}, errors.WithMessagef(err, "file %s", fileName)
	}

	preview, err := RenderPreview(pages[0], e.previewWidth())
	if err != nil {
		return Result{}, errors.Wrapf(ErrCorruptDocument, "file %s: preview: %v", fileName, err)
	}

	return Result{
		Identity:    identity,
		Source:      source,
		Pages:       len(pages),
		Preview:     preview,
		PreviewType: PreviewContentType,
	}, nil
}

func (e *Extractor) identify(pages []image.Image, data []byte) (Identity, string, error) {
	var texts []string
	for _, page := range pages {
		texts = append(texts, e.Decoder.Decode(page)...)
	}

	if len(texts) > 0 {
		ids, firstErr := e.parseAll(texts)
		switch len(ids) {
		case 0:
			return Identity{}, "", firstErr
		case 1:
			return ids[0], SourceBarcode, nil
		default:
			return Identity{}, "", errors.Wrapf(ErrAmbiguousBarcode, "payloads %v", rawPayloads(ids))
		}
	}

	if e.TextLayer != nil {
		if id, ok := e.fromText(data); ok {
			return id, SourceTextLayer, nil
		}
	}
	return Identity{}, "", errors.WithStack(ErrNoBarcode)
}

// parseAll keeps distinct valid identities in decode order. The first parse
// error is returned when nothing was valid.
func (e *Extractor) parseAll(texts []string) ([]Identity, error) {
	seen := make(map[string]struct{})
	var ids []Identity
	var firstErr error
	for _, text := range texts {
		id, err := ParsePayload(text, e.Separator)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, dup := seen[id.Raw]; dup {
			continue
		}
		seen[id.Raw] = struct{}{}
		ids = append(ids, id)
	}
	return ids, firstErr
}

// fromText accepts the text layer only when it carries exactly one payload.
func (e *Extractor) fromText(data []byte) (Identity, bool) {
	text, err := e.TextLayer.PlainText(data)
	if err != nil || text == "" {
		return Identity{}, false
	}
	matches := textPattern(e.Separator).FindAllStringSubmatch(text, -1)
	distinct := make(map[string]Identity)
	for _, m := range matches {
		id, err := ParsePayload(m[0], e.Separator)
		if err != nil {
			continue
		}
		distinct[id.Raw] = id
	}
	if len(distinct) != 1 {
		return Identity{}, false
	}
	for _, id := range distinct {
		return id, true
	}
	return Identity{}, false
}

func rawPayloads(ids []Identity) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Raw)
	}
	sort.Strings(out)
	return out
}

func (e *Extractor) dpi() float64 {
	if e.DPI <= 0 {
		return DefaultDPI
	}
	return e.DPI
}

func (e *Extractor) maxPages() int {
	if e.MaxPages <= 0 {
		return DefaultMaxPages
	}
	return e.MaxPages
}

func (e *Extractor) previewWidth() int {
	if e.PreviewWidth <= 0 {
		return DefaultPreviewWidth
	}
	return e.PreviewWidth
}
