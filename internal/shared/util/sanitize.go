package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
)

// maxFileNameLen keeps generated storage keys well under S3's 1024-byte limit
// even after the batch and line prefixes are added.
const maxFileNameLen = 180

var errInvalidFileName = errors.New("invalid file name")

// SanitizeFileName makes an uploaded scan name safe to embed in a storage key.
// Path separators become underscores, control characters are dropped, runs of
// whitespace collapse to one space, and long names are shortened while
// keeping the extension. Traversal patterns are rejected.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errInvalidFileName
	}

	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('_')
			space = false
		case unicode.IsSpace(r):
			if !space {
				b.WriteRune(' ')
			}
			space = true
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
			space = false
		}
	}
	s := b.String()
	if s == "" {
		return "", errInvalidFileName
	}
	return truncateKeepExt(s, maxFileNameLen), nil
}

func truncateKeepExt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	ext := path.Ext(s)
	if len(ext) >= limit {
		ext = ""
	}
	base := s[:len(s)-len(ext)]
	cut := limit - len(ext)
	for cut > 0 && !utf8Start(base[cut]) {
		cut--
	}
	return base[:cut] + ext
}

// utf8Start reports whether b begins a UTF-8 sequence.
func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
