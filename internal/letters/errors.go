package letters

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrImportAlreadyOpen     = errors.New("an import with this configuration is not finished")
	ErrNotReady              = errors.New("some letters are not ready")
	ErrNothingToSave         = errors.New("batch has no lines to save")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrInvalidInput          = errors.New("invalid input")
	ErrImportRunning         = errors.New("import is already running")
	ErrJobQueueNotConfigured = errors.New("job queue not configured")
)
