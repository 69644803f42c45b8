package types

import "errors"

// Error kinds shared across packages. Layers wrap these with %w so callers
// can classify failures with errors.Is; the CLI boundary only ever renders
// the message.
var (
	// ErrNotFound means the requested entry is absent
	ErrNotFound = errors.New("not found")

	// ErrStorage covers transaction, bucket, commit and file failures of the store engine
	ErrStorage = errors.New("storage fault")

	// ErrCodec covers record (de)serialization
	ErrCodec = errors.New("codec fault")

	// ErrFilesystem covers I/O during copy, extract and compress
	ErrFilesystem = errors.New("filesystem fault")

	// ErrInvalidArchive means the archive path is missing, of the wrong type, or corrupt
	ErrInvalidArchive = errors.New("invalid archive")

	// ErrInvalidOperation means an illegal deployment state transition was attempted
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrConfig means the data directory could not be resolved or prepared
	ErrConfig = errors.New("config fault")

	// ErrWrongPassword refines ErrInvalidArchive for encrypted archives
	ErrWrongPassword = errors.New("wrong or missing archive password")

	// ErrUnsupportedFormat is returned for archive formats a codec cannot produce
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)
