package barcode

import (
	"bytes"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// TextLayer returns the embedded text of a PDF. Scans produced by OCR-enabled
// scanners carry the human-readable line printed under the barcode.
type TextLayer interface {
	PlainText(data []byte) (string, error)
}

// PDFTextLayer reads the text layer with ledongthuc/pdf.
type PDFTextLayer struct{}

// PlainText extracts all page text.
func (PDFTextLayer) PlainText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "open pdf text layer")
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", errors.Wrap(err, "read pdf text layer")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", errors.Wrap(err, "copy pdf text layer")
	}
	return buf.String(), nil
}
