package barcode

import "github.com/pkg/errors"

var (
	// ErrNoBarcode means no page region yielded a decodable symbol.
	ErrNoBarcode = errors.New("no barcode found")
	// ErrAmbiguousBarcode means distinct letter payloads were decoded from one document.
	ErrAmbiguousBarcode = errors.New("ambiguous barcode")
	// ErrCorruptDocument means the PDF could not be opened or rendered.
	ErrCorruptDocument = errors.New("corrupt document")
	// ErrInvalidPayload means a symbol was decoded but does not carry partner and child codes.
	ErrInvalidPayload = errors.New("invalid barcode payload")
)

// Kind returns a short machine-readable name for an extraction error, used as
// a log field and metric label.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoBarcode):
		return "no_barcode"
	case errors.Is(err, ErrAmbiguousBarcode):
		return "ambiguous_barcode"
	case errors.Is(err, ErrCorruptDocument):
		return "corrupt_document"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "extract_failed"
	}
}
