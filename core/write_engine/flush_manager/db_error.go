package flushmanager

import "errors"

// --- Error Definitions ---

var (
	ErrDBFileExists      = errors.New("database file already exists")
	ErrDBFileNotFound    = errors.New("database file not found")
	ErrInvalidDBFile     = errors.New("not a docustore database file")
	ErrVersionMismatch   = errors.New("database file format version not supported")
	ErrPageSizeMismatch  = errors.New("database file was created with a different page size")
	ErrPageOutOfRange    = errors.New("page id beyond the end of the file")
	ErrIO                = errors.New("i/o error")
	ErrChecksumMismatch  = errors.New("page checksum mismatch, data corruption suspected")
	ErrManagerClosed     = errors.New("disk manager is closed")
	ErrInvalidPageBuffer = errors.New("page buffer has the wrong size")
	ErrPageNotFound      = errors.New("page is not resident in the buffer pool")
	ErrBufferPoolFull    = errors.New("all buffer pool frames are pinned")
)
