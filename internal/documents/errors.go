package documents

import "errors"

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidInput = errors.New("invalid input")

	ErrChecksumMismatch = errors.New("document checksum mismatch")
	ErrKeyInUse         = errors.New("storage key already registered")
)
