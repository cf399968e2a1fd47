package documents

import "time"

// Document is a scanned source file attached to an import batch. Rows and
// blobs are purged once the batch has been fully analyzed.
type Document struct {
	ID              string
	BatchID         string
	FileName        string
	MimeType        string
	SizeBytes       int64
	StorageProvider string
	StorageKey      string
	Checksum        string
	CreatedAt       time.Time
}
