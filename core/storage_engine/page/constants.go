package page

// --- Format Constants ---
//
// These values define the on-disk binary layout. Changing any of them after a
// database file has been created breaks compatibility with every existing
// file, so treat them as format constants, not tunables.

const (
	// PageSize is the fixed size of every page in bytes.
	PageSize = 8192

	// PageHeaderSize is the size of the common header at the start of every page.
	PageHeaderSize = 32

	// SlotSize is the on-disk size of one slot descriptor (position + length).
	SlotSize = 4

	// PageAddressSize is the on-disk size of a page address (page id + slot index).
	PageAddressSize = 6

	// PageFreeListSlots is the number of free-space buckets tracked per
	// collection, independently for data pages and index pages.
	PageFreeListSlots = 6

	// MaxLevelLength is the tallest level a skip-list index may reach.
	MaxLevelLength = 32

	// MaxIndexKeyLength is the largest serialized index key accepted.
	MaxIndexKeyLength = 255

	// IndexNameMaxLength is the longest index name accepted.
	IndexNameMaxLength = 32

	// MaxDocumentSize is the largest document payload a data page can hold
	// after the header, one slot descriptor and the checksum byte.
	MaxDocumentSize = PageSize - PageHeaderSize - SlotSize - 1

	// MaxTransactionSize is the number of page mutations a single
	// transaction may accumulate before the caller must flush.
	MaxTransactionSize = 10000

	// ChecksumOffset is where the trailing integrity byte of a page lives.
	ChecksumOffset = PageSize - 1

	// FormatVersion is stamped into every page header.
	FormatVersion = 1
)

// EmptyPageID marks an unused page reference: an empty free-list bucket or
// an unlinked prev/next pointer.
const EmptyPageID uint32 = ^uint32(0)
