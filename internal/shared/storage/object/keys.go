package object

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"letters-backend/internal/shared/util"
)

const sniffLen = 512

// ScanKey builds the storage key for an uploaded scan:
// scans/<namespace>/<uuid>_<file name>.
func ScanKey(namespace, fileName string) (string, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	ns, err := util.SanitizeFileName(namespace)
	if err != nil {
		return "", fmt.Errorf("sanitize namespace: %w", err)
	}
	return path.Join("scans", ns, uuid.NewString()+"_"+name), nil
}

// ValidKey rejects empty, absolute and parent-relative keys.
func ValidKey(storageKey string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(storageKey, `\`, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("invalid storage key %q", storageKey)
	}
	return clean, nil
}

// Sniff detects the content type from the first bytes of r. The returned
// reader still yields the full stream.
func Sniff(r io.Reader) (string, io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", nil, fmt.Errorf("read sniff: %w", err)
	}
	return http.DetectContentType(head), br, nil
}

// CountingReader records how many bytes were read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}
