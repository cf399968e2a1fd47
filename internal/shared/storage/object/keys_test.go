package object

import (
	"io"
	"strings"
	"testing"
)

func TestScanKeyLayout(t *testing.T) {
	key, err := ScanKey("batch-1", "Scan 01.pdf")
	if err != nil {
		t.Fatalf("ScanKey: %v", err)
	}
	if !strings.HasPrefix(key, "scans/batch-1/") || !strings.HasSuffix(key, "_Scan 01.pdf") {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := ScanKey("batch-1", "../x.pdf"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

func TestValidKey(t *testing.T) {
	cases := map[string]bool{
		"scans/b/a.pdf":     true,
		"lines/b/1.pdf":     true,
		"":                  false,
		"../etc/passwd":     false,
		"/abs/key":          false,
		`scans\..\..\x.pdf`: false,
	}
	for key, ok := range cases {
		_, err := ValidKey(key)
		if (err == nil) != ok {
			t.Fatalf("ValidKey(%q) err=%v, want ok=%v", key, err, ok)
		}
	}
}

func TestSniffKeepsStream(t *testing.T) {
	body := "%PDF-1.7\n" + strings.Repeat("x", 2000)
	mime, r, err := Sniff(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if mime != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", mime)
	}
	counter := &CountingReader{R: r}
	if _, err := io.Copy(io.Discard, counter); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if counter.N != int64(len(body)) {
		t.Fatalf("expected %d bytes, got %d", len(body), counter.N)
	}
}
