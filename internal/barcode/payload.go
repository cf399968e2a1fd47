package barcode

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// DefaultSeparator splits the partner code from the child code in a letter barcode.
const DefaultSeparator = "XX"

// Identity is the pair of codes printed on a sponsorship letter.
type Identity struct {
	PartnerCode string
	ChildCode   string
	Raw         string
}

// ParsePayload splits raw barcode text into partner and child codes. Codes are
// trimmed and upper-cased. The first occurrence of sep is the split point, so
// child codes may themselves contain the separator.
func ParsePayload(raw, sep string) (Identity, error) {
	if sep == "" {
		sep = DefaultSeparator
	}
	clean := strings.ToUpper(strings.TrimSpace(raw))
	idx := strings.Index(clean, strings.ToUpper(sep))
	if idx < 0 {
		return Identity{}, errors.Wrapf(ErrInvalidPayload, "separator %q not found in %q", sep, raw)
	}
	partner := strings.TrimSpace(clean[:idx])
	child := strings.TrimSpace(clean[idx+len(sep):])
	if partner == "" || child == "" {
		return Identity{}, errors.Wrapf(ErrInvalidPayload, "empty code in %q", raw)
	}
	return Identity{PartnerCode: partner, ChildCode: child, Raw: clean}, nil
}

// textPattern builds the expression used to find payloads in a PDF text layer.
// Partner codes are digits; child codes are alphanumeric.
func textPattern(sep string) *regexp.Regexp {
	if sep == "" {
		sep = DefaultSeparator
	}
	return regexp.MustCompile(`(?i)\b([0-9]{3,})` + regexp.QuoteMeta(sep) + `([A-Z0-9]{4,})\b`)
}
