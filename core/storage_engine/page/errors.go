package page

import (
	"errors"
	"fmt"
)

// --- Error Definitions ---

var (
	// Corruption errors. Never retried or silently recovered here; the
	// transaction layer decides whether to roll back.
	ErrMissingPrimaryKey = errors.New("collection has no _id index, file is corrupted")
	ErrChecksumMismatch  = errors.New("page checksum mismatch, data corruption suspected")
	ErrUnsupportedFormat = errors.New("page format version not supported")

	// Caller-correctable catalog errors, surfaced to the index-management
	// layer as user-facing database errors.
	ErrDuplicateIndexName = errors.New("an index with this name already exists on the collection")
	ErrIndexNotFound      = errors.New("index not found")
	ErrIndexNameTooLong   = errors.New("index name exceeds the maximum length")
	ErrIndexCatalogFull   = errors.New("index catalog does not fit in the collection page")

	// Programming errors in the calling layer.
	ErrBucketOutOfRange   = errors.New("free-list bucket out of range")
	ErrBufferOverrun      = errors.New("read or write past the end of the page buffer")
	ErrStringContainsZero = errors.New("string contains a zero byte")
	ErrSlotOutOfRange     = errors.New("slot index out of range")
	ErrSlotTableFull      = errors.New("no room left in the page for another slot")
)

// InvalidPageTypeError reports a page whose header type byte does not match
// the decoder that was asked to read it. It always indicates file corruption.
type InvalidPageTypeError struct {
	PageID uint32
	Got    PageType
	Want   PageType
}

func (e *InvalidPageTypeError) Error() string {
	return fmt.Sprintf("page %d: invalid page type %s, expected %s", e.PageID, e.Got, e.Want)
}
