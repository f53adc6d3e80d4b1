package pagemanager

import (
	"container/list"
	"sync"

	storagepage "github.com/docustore/docustore/core/storage_engine/page"
)

// InvalidPageID marks a frame that holds no page.
const InvalidPageID uint32 = storagepage.EmptyPageID

// Frame is the in-memory copy of one disk page held by the buffer pool,
// together with the bookkeeping the pool needs: pin count, dirty flag and
// LRU position. The latch protects the frame's bytes; it is a physical
// lock only, logical concurrency control lives in the transaction layer.
type Frame struct {
	id       uint32
	data     []byte
	pinCount uint32
	isDirty  bool

	lruElement *list.Element

	latch sync.RWMutex
}

// NewFrame creates an empty frame backed by a full page buffer.
func NewFrame() *Frame {
	return &Frame{
		id:   InvalidPageID,
		data: make([]byte, storagepage.PageSize),
	}
}

// Reset clears the frame for reuse. The data is zeroed so stale bytes from
// the previous page never leak into a freshly loaded one.
func (f *Frame) Reset() {
	f.id = InvalidPageID
	f.pinCount = 0
	f.isDirty = false
	f.lruElement = nil
	for i := range f.data {
		f.data[i] = 0
	}
}

func (f *Frame) PageID() uint32                 { return f.id }
func (f *Frame) SetPageID(id uint32)            { f.id = id }
func (f *Frame) Data() []byte                   { return f.data }
func (f *Frame) IsDirty() bool                  { return f.isDirty }
func (f *Frame) SetDirty(dirty bool)            { f.isDirty = dirty }
func (f *Frame) PinCount() uint32               { return f.pinCount }
func (f *Frame) SetPinCount(n uint32)           { f.pinCount = n }
func (f *Frame) LruElement() *list.Element      { return f.lruElement }
func (f *Frame) SetLruElement(el *list.Element) { f.lruElement = el }

func (f *Frame) Pin() { f.pinCount++ }

func (f *Frame) Unpin() {
	if f.pinCount > 0 {
		f.pinCount--
	}
}

// Buffer wraps the frame's bytes as a PageBuffer for structured access.
func (f *Frame) Buffer() (*storagepage.PageBuffer, error) {
	return storagepage.WrapBuffer(f.data)
}

// RLock acquires a shared latch on the frame's contents.
func (f *Frame) RLock() { f.latch.RLock() }

// RUnlock releases a shared latch.
func (f *Frame) RUnlock() { f.latch.RUnlock() }

// Lock acquires an exclusive latch on the frame's contents.
func (f *Frame) Lock() { f.latch.Lock() }

// TryLock acquires the exclusive latch if it is free.
func (f *Frame) TryLock() bool { return f.latch.TryLock() }

// Unlock releases the exclusive latch.
func (f *Frame) Unlock() { f.latch.Unlock() }
