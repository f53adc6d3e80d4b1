package page

import "fmt"

// PageSlot describes one variable-length content segment inside a page
// payload. The on-disk descriptor is exactly SlotSize bytes: position u16 +
// length u16. A zero position marks a freed descriptor whose index may be
// reused. Index is the ordinal of the descriptor in the slot table and never
// changes once assigned, so record addresses stay stable across compaction.
type PageSlot struct {
	Index    uint16
	Position uint16
	Length   uint16
}

func (s PageSlot) IsFree() bool { return s.Position == 0 }

// SlotTable manages the slot descriptors of one slotted page. Record bytes
// grow from the payload start toward the tail; descriptors are stored at the
// tail of the page, just before the checksum byte, growing toward the head.
// Descriptor i lives at PageSize - 1 - (i+1)*SlotSize.
type SlotTable struct {
	slots []PageSlot
	// next is the page offset where the next record's bytes would start.
	next uint16
}

func NewSlotTable() *SlotTable {
	return &SlotTable{next: PageHeaderSize}
}

// Count is the number of descriptors, including freed ones.
func (t *SlotTable) Count() int { return len(t.slots) }

// FreeBytes is the payload room left after record bytes, existing slot
// descriptors, the overhead of one more descriptor and the checksum byte.
// The collection free-list buckets classify pages by this value.
func (t *SlotTable) FreeBytes() int {
	free := PageSize - 1 - int(t.next) - (len(t.slots)+1)*SlotSize
	if free < 0 {
		return 0
	}
	return free
}

// Allocate finds or creates a descriptor for a segment of the given length
// and returns it with its position assigned.
func (t *SlotTable) Allocate(length uint16) (PageSlot, error) {
	if length == 0 || int(t.next)+int(length) > t.tableStart(t.growthCount()) {
		return PageSlot{}, fmt.Errorf("%w: %d bytes requested, %d free", ErrSlotTableFull, length, t.FreeBytes())
	}
	slot := PageSlot{Position: t.next, Length: length}
	t.next += length

	for i := range t.slots {
		if t.slots[i].IsFree() {
			slot.Index = uint16(i)
			t.slots[i] = slot
			return slot, nil
		}
	}
	slot.Index = uint16(len(t.slots))
	t.slots = append(t.slots, slot)
	return slot, nil
}

// growthCount is the descriptor count after an allocation that cannot reuse
// a freed descriptor.
func (t *SlotTable) growthCount() int {
	for i := range t.slots {
		if t.slots[i].IsFree() {
			return len(t.slots)
		}
	}
	return len(t.slots) + 1
}

func (t *SlotTable) tableStart(count int) int {
	return PageSize - 1 - count*SlotSize
}

// Free reclaims a descriptor. The record bytes are not moved; compaction is
// the owning page's concern.
func (t *SlotTable) Free(index uint16) error {
	if int(index) >= len(t.slots) || t.slots[index].IsFree() {
		return fmt.Errorf("%w: slot %d of %d", ErrSlotOutOfRange, index, len(t.slots))
	}
	t.slots[index] = PageSlot{Index: index}
	return nil
}

// Slot returns the descriptor at the given ordinal.
func (t *SlotTable) Slot(index uint16) (PageSlot, error) {
	if int(index) >= len(t.slots) {
		return PageSlot{}, fmt.Errorf("%w: slot %d of %d", ErrSlotOutOfRange, index, len(t.slots))
	}
	return t.slots[index], nil
}

// WriteTo encodes every descriptor at the tail of the page buffer.
func (t *SlotTable) WriteTo(buf *PageBuffer) error {
	for i, s := range t.slots {
		if int(s.Position)+int(s.Length) > PageSize {
			return fmt.Errorf("%w: slot %d spans [%d, %d)", ErrBufferOverrun, i, s.Position, int(s.Position)+int(s.Length))
		}
		if err := buf.Seek(t.tableStart(i + 1)); err != nil {
			return err
		}
		buf.WriteUint16(s.Position)
		buf.WriteUint16(s.Length)
	}
	return buf.Err()
}

// ReadFrom decodes count descriptors from the tail of the page buffer.
func (t *SlotTable) ReadFrom(buf *PageBuffer, count uint16) error {
	t.slots = t.slots[:0]
	t.next = PageHeaderSize
	for i := 0; i < int(count); i++ {
		if err := buf.Seek(t.tableStart(i + 1)); err != nil {
			return err
		}
		s := PageSlot{
			Index:    uint16(i),
			Position: buf.ReadUint16(),
			Length:   buf.ReadUint16(),
		}
		t.slots = append(t.slots, s)
		if end := s.Position + s.Length; !s.IsFree() && end > t.next {
			t.next = end
		}
	}
	return buf.Err()
}
