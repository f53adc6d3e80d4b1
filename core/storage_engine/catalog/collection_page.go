// Package catalog implements the collection catalog page: the one page per
// collection that records the collection's index definitions and the
// free-space-classified linked-list heads used to find reusable data and
// index pages during writes.
package catalog

import (
	"fmt"
	"slices"
	"time"

	"github.com/docustore/docustore/core/storage_engine/page"
)

// fixedCatalogOverhead is the payload taken by the interleaved free-list
// bucket heads, the two timestamps and the index count byte.
const fixedCatalogOverhead = page.PageFreeListSlots*8 + 8 + 8 + 1

// maxIndexCount is bounded by the single count byte in the payload.
const maxIndexCount = 255

// indexCapacity is the payload room available for serialized index entries.
const indexCapacity = page.PageSize - page.PageHeaderSize - 1 - fixedCatalogOverhead

// CollectionPage is the catalog page of one collection. It is loaded once
// per collection, mutated in memory under the caller's exclusive latch, and
// re-encoded into its buffer only when persisted.
//
// Payload layout (offsets relative to the end of the 32-byte header):
//
//	| 0      | 6 buckets of (free data page id, free index page id) | 48 |
//	| 48     | creation time                                        | 8  |
//	| 56     | last analyzed                                        | 8  |
//	| 64     | index count                                          | 1  |
//	| 65..   | index entries (variable)                             |    |
//
// plus the 1-byte checksum at the very end of the page.
type CollectionPage struct {
	page.BasePage

	// CreationTime is set once when the collection is created.
	CreationTime time.Time
	// LastAnalyzed is the zero time until a statistics refresh runs.
	LastAnalyzed time.Time

	freeDataPageID  [page.PageFreeListSlots]uint32
	freeIndexPageID [page.PageFreeListSlots]uint32

	indexes map[string]*CollectionIndex
	// indexesChanged gates rewriting the (potentially large) index region
	// of the buffer; the free lists and timestamps are always rewritten.
	indexesChanged bool
}

// NewCollectionPage initializes a fresh catalog page: both free-list arrays
// filled with the empty sentinel, no indexes, creation time set to now.
func NewCollectionPage(pageID uint32) *CollectionPage {
	p := &CollectionPage{
		BasePage:     page.NewBasePage(pageID, page.PageTypeCollection),
		CreationTime: time.Now().UTC().Truncate(time.Nanosecond),
		indexes:      make(map[string]*CollectionIndex),
	}
	for i := range p.freeDataPageID {
		p.freeDataPageID[i] = page.EmptyPageID
		p.freeIndexPageID[i] = page.EmptyPageID
	}
	return p
}

// DecodeCollectionPage reconstructs a catalog page from an existing buffer,
// failing with InvalidPageTypeError if the header does not describe a
// collection page.
func DecodeCollectionPage(buf *page.PageBuffer) (*CollectionPage, error) {
	p := &CollectionPage{indexes: make(map[string]*CollectionIndex)}
	if err := p.ReadHeader(buf, page.PageTypeCollection); err != nil {
		return nil, err
	}
	for i := 0; i < page.PageFreeListSlots; i++ {
		p.freeDataPageID[i] = buf.ReadUint32()
		p.freeIndexPageID[i] = buf.ReadUint32()
	}
	p.CreationTime = buf.ReadTime()
	p.LastAnalyzed = buf.ReadTime()

	count := buf.ReadUint8()
	for i := 0; i < int(count); i++ {
		ix := readIndexEntry(buf)
		if err := buf.Err(); err != nil {
			return nil, fmt.Errorf("page %d: decoding index entry %d: %w", p.PageID, i, err)
		}
		p.indexes[ix.Name] = ix
	}
	if err := buf.Err(); err != nil {
		return nil, fmt.Errorf("page %d: decoding collection page: %w", p.PageID, err)
	}
	return p, nil
}

// Encode persists the page into its buffer. It is a no-op unless update is
// requested and the page is dirty. The free-list buckets and timestamps are
// always rewritten; the index region only when the index set changed since
// the last persist. A successful encode clears both dirty flags.
func (p *CollectionPage) Encode(buf *page.PageBuffer, update bool) error {
	if !update || !p.IsDirty() {
		return nil
	}
	if size := p.serializedIndexSize(); size > indexCapacity {
		return fmt.Errorf("%w: %d bytes of index entries, %d available", page.ErrIndexCatalogFull, size, indexCapacity)
	}

	p.ItemCount = uint16(len(p.indexes))
	p.FreeBytes = uint16(indexCapacity - p.serializedIndexSize())
	if err := p.WriteHeader(buf); err != nil {
		return err
	}
	for i := 0; i < page.PageFreeListSlots; i++ {
		buf.WriteUint32(p.freeDataPageID[i])
		buf.WriteUint32(p.freeIndexPageID[i])
	}
	buf.WriteTime(p.CreationTime)
	buf.WriteTime(p.LastAnalyzed)

	if p.indexesChanged {
		buf.WriteUint8(uint8(len(p.indexes)))
		// Entries carry no semantic order; they are sorted by name only so
		// that re-encoding the same catalog yields identical bytes.
		for _, ix := range p.sortedIndexes() {
			ix.writeTo(buf)
		}
	}
	if err := buf.Err(); err != nil {
		return fmt.Errorf("page %d: encoding collection page: %w", p.PageID, err)
	}
	page.StampChecksum(buf)
	p.indexesChanged = false
	p.ClearDirty()
	return nil
}

func (p *CollectionPage) sortedIndexes() []*CollectionIndex {
	out := make([]*CollectionIndex, 0, len(p.indexes))
	for _, ix := range p.indexes {
		out = append(out, ix)
	}
	slices.SortFunc(out, func(a, b *CollectionIndex) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	return out
}

func (p *CollectionPage) serializedIndexSize() int {
	total := 0
	for _, ix := range p.indexes {
		total += ix.serializedSize()
	}
	return total
}

// --- Index catalog operations ---

// PrimaryKeyIndex returns the _id index. Its absence on an initialized
// collection means the file is corrupted.
func (p *CollectionPage) PrimaryKeyIndex() (*CollectionIndex, error) {
	ix, ok := p.indexes[PrimaryKeyName]
	if !ok {
		return nil, fmt.Errorf("page %d: %w", p.PageID, page.ErrMissingPrimaryKey)
	}
	return ix, nil
}

// Index looks an entry up by name. A miss is a normal condition, not an
// error.
func (p *CollectionPage) Index(name string) (*CollectionIndex, bool) {
	ix, ok := p.indexes[name]
	return ix, ok
}

// Indexes returns all entries. Callers must not rely on the order.
func (p *CollectionPage) Indexes() []*CollectionIndex {
	out := make([]*CollectionIndex, 0, len(p.indexes))
	for _, ix := range p.indexes {
		out = append(out, ix)
	}
	return out
}

// InsertIndex adds a new catalog entry with the given skip-list sentinels,
// level 1 and zero counts, and returns it for the caller to populate
// further. The entry is rejected if the name is taken, too long, or if the
// serialized catalog would no longer fit in the page.
func (p *CollectionPage) InsertIndex(name, expression string, unique bool, head, tail page.PageAddress) (*CollectionIndex, error) {
	if len(name) > page.IndexNameMaxLength {
		return nil, fmt.Errorf("%w: %q is %d bytes, limit %d", page.ErrIndexNameTooLong, name, len(name), page.IndexNameMaxLength)
	}
	if _, ok := p.indexes[name]; ok {
		return nil, fmt.Errorf("%w: %q", page.ErrDuplicateIndexName, name)
	}
	ix := &CollectionIndex{
		Name:       name,
		Expression: expression,
		Unique:     unique,
		Head:       head,
		Tail:       tail,
		MaxLevel:   1,
	}
	if len(p.indexes) >= maxIndexCount {
		return nil, fmt.Errorf("%w: collection already has %d indexes", page.ErrIndexCatalogFull, maxIndexCount)
	}
	if p.serializedIndexSize()+ix.serializedSize() > indexCapacity {
		return nil, fmt.Errorf("%w: %q needs %d bytes, %d left", page.ErrIndexCatalogFull,
			name, ix.serializedSize(), indexCapacity-p.serializedIndexSize())
	}
	p.indexes[name] = ix
	p.indexesChanged = true
	p.MarkDirty()
	return ix, nil
}

// UpdateIndex returns the named entry for in-place mutation (skip-list code
// bumping counts and levels) and marks the index region for rewrite.
func (p *CollectionPage) UpdateIndex(name string) (*CollectionIndex, error) {
	ix, ok := p.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", page.ErrIndexNotFound, name)
	}
	p.indexesChanged = true
	p.MarkDirty()
	return ix, nil
}

// DeleteIndex removes the named entry. Reclaiming the index's own pages is
// the allocator's responsibility.
func (p *CollectionPage) DeleteIndex(name string) error {
	if _, ok := p.indexes[name]; !ok {
		return fmt.Errorf("%w: %q", page.ErrIndexNotFound, name)
	}
	delete(p.indexes, name)
	p.indexesChanged = true
	p.MarkDirty()
	return nil
}

// --- Free-list accessors ---
//
// Setting a head always dirties the page: the free lists are persisted on
// every flush regardless of whether the index set changed.

func checkBucket(bucket int) error {
	if bucket < 0 || bucket >= page.PageFreeListSlots {
		return fmt.Errorf("%w: bucket %d, have %d", page.ErrBucketOutOfRange, bucket, page.PageFreeListSlots)
	}
	return nil
}

func (p *CollectionPage) FreeDataPageHead(bucket int) (uint32, error) {
	if err := checkBucket(bucket); err != nil {
		return page.EmptyPageID, err
	}
	return p.freeDataPageID[bucket], nil
}

func (p *CollectionPage) SetFreeDataPageHead(bucket int, pageID uint32) error {
	if err := checkBucket(bucket); err != nil {
		return err
	}
	p.freeDataPageID[bucket] = pageID
	p.MarkDirty()
	return nil
}

func (p *CollectionPage) FreeIndexPageHead(bucket int) (uint32, error) {
	if err := checkBucket(bucket); err != nil {
		return page.EmptyPageID, err
	}
	return p.freeIndexPageID[bucket], nil
}

func (p *CollectionPage) SetFreeIndexPageHead(bucket int, pageID uint32) error {
	if err := checkBucket(bucket); err != nil {
		return err
	}
	p.freeIndexPageID[bucket] = pageID
	p.MarkDirty()
	return nil
}
