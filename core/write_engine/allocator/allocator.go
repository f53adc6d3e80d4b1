// Package allocator maintains the free-space-classified page lists of a
// collection: it classifies pages into buckets by their remaining free
// bytes, links and unlinks them from the bucket lists stored in the
// collection catalog page, and hands out pages with enough room for a
// pending insert.
package allocator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/docustore/docustore/core/storage_engine/catalog"
	"github.com/docustore/docustore/core/storage_engine/page"
	"github.com/docustore/docustore/core/write_engine/memtable"
)

// PageKind selects which of the two free lists of a collection to operate
// on.
type PageKind int

const (
	DataPage PageKind = iota
	IndexPage
)

func (k PageKind) String() string {
	if k == DataPage {
		return "data"
	}
	return "index"
}

func (k PageKind) pageType() page.PageType {
	if k == DataPage {
		return page.PageTypeData
	}
	return page.PageTypeIndex
}

// bucketMinFree is the lower free-byte bound of each bucket. A page in
// bucket i has at least bucketMinFree[i] free bytes. Format constants: the
// bucket a page lands in decides which list head references it on disk.
var bucketMinFree = [page.PageFreeListSlots]int{0, 512, 1024, 2048, 4096, 6144}

// BucketFor classifies a page by its free bytes.
func BucketFor(freeBytes int) int {
	bucket := 0
	for i, min := range bucketMinFree {
		if freeBytes >= min {
			bucket = i
		}
	}
	return bucket
}

// firstBucketFor is the smallest bucket guaranteed to only hold pages with
// at least need free bytes.
func firstBucketFor(need int) int {
	for i, min := range bucketMinFree {
		if min >= need {
			return i
		}
	}
	return page.PageFreeListSlots - 1
}

// PageAllocator finds and recycles data/index pages for one collection. The
// caller guarantees exclusive access to the collection while any mutating
// method runs; the allocator performs no locking of its own.
type PageAllocator struct {
	pool   *memtable.BufferPoolManager
	logger *zap.Logger
}

func NewPageAllocator(pool *memtable.BufferPoolManager, logger *zap.Logger) *PageAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageAllocator{pool: pool, logger: logger}
}

func (a *PageAllocator) head(col *catalog.CollectionPage, kind PageKind, bucket int) (uint32, error) {
	if kind == DataPage {
		return col.FreeDataPageHead(bucket)
	}
	return col.FreeIndexPageHead(bucket)
}

func (a *PageAllocator) setHead(col *catalog.CollectionPage, kind PageKind, bucket int, pageID uint32) error {
	if kind == DataPage {
		return col.SetFreeDataPageHead(bucket, pageID)
	}
	return col.SetFreeIndexPageHead(bucket, pageID)
}

// AllocatePage returns a page with at least need free bytes: a recycled one
// from the free lists when available, otherwise a freshly allocated page
// initialized with the kind's page type. The page is removed from its free
// list; the caller re-links it with ReturnPage once it knows the new free
// byte count.
func (a *PageAllocator) AllocatePage(col *catalog.CollectionPage, kind PageKind, need int) (uint32, error) {
	if need <= 0 || need > page.MaxDocumentSize {
		return page.EmptyPageID, fmt.Errorf("allocation of %d bytes out of range", need)
	}
	pageID, found, err := a.popFreePage(col, kind, need)
	if err != nil {
		return page.EmptyPageID, err
	}
	if found {
		a.logger.Debug("recycled page",
			zap.Uint32("page_id", pageID),
			zap.String("kind", kind.String()))
		return pageID, nil
	}
	return a.freshPage(kind)
}

func (a *PageAllocator) freshPage(kind PageKind) (uint32, error) {
	frame, pageID, err := a.pool.NewPage()
	if err != nil {
		return page.EmptyPageID, err
	}
	buf, err := frame.Buffer()
	if err != nil {
		return page.EmptyPageID, err
	}
	base := page.NewBasePage(pageID, kind.pageType())
	if err := base.WriteHeader(buf); err != nil {
		return page.EmptyPageID, err
	}
	if err := a.pool.UnpinPage(pageID, true); err != nil {
		return page.EmptyPageID, err
	}
	a.logger.Debug("fresh page",
		zap.Uint32("page_id", pageID),
		zap.String("kind", kind.String()))
	return pageID, nil
}

// popFreePage takes the head of the first bucket that can satisfy need,
// walking buckets from the best fit upward. Buckets guarantee a minimum,
// so the head of a qualifying bucket always fits.
func (a *PageAllocator) popFreePage(col *catalog.CollectionPage, kind PageKind, need int) (uint32, bool, error) {
	for bucket := firstBucketFor(need); bucket < page.PageFreeListSlots; bucket++ {
		headID, err := a.head(col, kind, bucket)
		if err != nil {
			return page.EmptyPageID, false, err
		}
		if headID == page.EmptyPageID {
			continue
		}
		base, err := a.readHeader(headID, kind)
		if err != nil {
			return page.EmptyPageID, false, err
		}
		if int(base.FreeBytes) < need {
			// Heads below their bucket's bound mean the last writer forgot
			// to reclassify; skip the bucket rather than hand out a page
			// the record will not fit in.
			continue
		}
		next := base.NextPageID
		if err := a.unlink(headID, kind); err != nil {
			return page.EmptyPageID, false, err
		}
		if next != page.EmptyPageID {
			if err := a.clearPrev(next, kind); err != nil {
				return page.EmptyPageID, false, err
			}
		}
		if err := a.setHead(col, kind, bucket, next); err != nil {
			return page.EmptyPageID, false, err
		}
		return headID, true, nil
	}
	return page.EmptyPageID, false, nil
}

// ReturnPage links a page back as the head of the bucket matching its new
// free byte count. The caller reports freeBytes after its mutation; pages
// with no room left stay out of every list.
func (a *PageAllocator) ReturnPage(col *catalog.CollectionPage, kind PageKind, pageID uint32, freeBytes int) error {
	if freeBytes < bucketMinFree[1] {
		// Not worth recycling; the page will come back when a delete frees
		// room and the caller reports a bigger count.
		return nil
	}
	bucket := BucketFor(freeBytes)
	oldHead, err := a.head(col, kind, bucket)
	if err != nil {
		return err
	}
	if err := a.withHeader(pageID, kind, func(base *page.BasePage) {
		base.PrevPageID = page.EmptyPageID
		base.NextPageID = oldHead
		base.FreeBytes = uint16(freeBytes)
	}); err != nil {
		return err
	}
	if oldHead != page.EmptyPageID {
		if err := a.withHeader(oldHead, kind, func(base *page.BasePage) {
			base.PrevPageID = pageID
		}); err != nil {
			return err
		}
	}
	if err := a.setHead(col, kind, bucket, pageID); err != nil {
		return err
	}
	a.logger.Debug("page returned to free list",
		zap.Uint32("page_id", pageID),
		zap.Int("bucket", bucket),
		zap.Int("free_bytes", freeBytes))
	return nil
}

func (a *PageAllocator) readHeader(pageID uint32, kind PageKind) (page.BasePage, error) {
	var base page.BasePage
	frame, err := a.pool.FetchPage(pageID)
	if err != nil {
		return base, err
	}
	defer func() { _ = a.pool.UnpinPage(pageID, false) }()
	buf, err := frame.Buffer()
	if err != nil {
		return base, err
	}
	if err := base.ReadHeader(buf, kind.pageType()); err != nil {
		return base, err
	}
	return base, nil
}

func (a *PageAllocator) withHeader(pageID uint32, kind PageKind, mutate func(*page.BasePage)) error {
	frame, err := a.pool.FetchPage(pageID)
	if err != nil {
		return err
	}
	buf, err := frame.Buffer()
	if err != nil {
		_ = a.pool.UnpinPage(pageID, false)
		return err
	}
	var base page.BasePage
	if err := base.ReadHeader(buf, kind.pageType()); err != nil {
		_ = a.pool.UnpinPage(pageID, false)
		return err
	}
	mutate(&base)
	base.MarkDirty()
	if err := base.WriteHeader(buf); err != nil {
		_ = a.pool.UnpinPage(pageID, false)
		return err
	}
	return a.pool.UnpinPage(pageID, true)
}

func (a *PageAllocator) unlink(pageID uint32, kind PageKind) error {
	return a.withHeader(pageID, kind, func(base *page.BasePage) {
		base.PrevPageID = page.EmptyPageID
		base.NextPageID = page.EmptyPageID
	})
}

func (a *PageAllocator) clearPrev(pageID uint32, kind PageKind) error {
	return a.withHeader(pageID, kind, func(base *page.BasePage) {
		base.PrevPageID = page.EmptyPageID
	})
}
