package page

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// PageBuffer wraps the fixed-size byte region of one page (or a sub-slice of
// one) and provides sequential, cursor-based decode/encode of the primitive
// types used by the on-disk format. All integers are little-endian.
//
// The buffer carries a sticky error: once any operation fails, every later
// operation is a no-op and Err returns the first failure. This keeps codec
// code free of per-call checks while guaranteeing that nothing is ever
// silently truncated: an out-of-bounds write surfaces as ErrBufferOverrun,
// never as a shorter write.
type PageBuffer struct {
	data []byte
	pos  int
	err  error
}

// NewPageBuffer allocates a zeroed full-page buffer.
func NewPageBuffer() *PageBuffer {
	return &PageBuffer{data: make([]byte, PageSize)}
}

// WrapBuffer views an existing full page without copying it.
func WrapBuffer(data []byte) (*PageBuffer, error) {
	if len(data) != PageSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrBufferOverrun, PageSize, len(data))
	}
	return &PageBuffer{data: data}, nil
}

// Slice returns a view over [offset, offset+length) sharing the same backing
// bytes. Mutations through the slice are visible in the parent.
func (b *PageBuffer) Slice(offset, length int) (*PageBuffer, error) {
	if offset < 0 || length < 0 || offset+length > len(b.data) {
		return nil, fmt.Errorf("%w: slice [%d, %d) of %d bytes", ErrBufferOverrun, offset, offset+length, len(b.data))
	}
	return &PageBuffer{data: b.data[offset : offset+length]}, nil
}

// Bytes exposes the backing region. Callers must not grow it.
func (b *PageBuffer) Bytes() []byte { return b.data }

func (b *PageBuffer) Len() int { return len(b.data) }

func (b *PageBuffer) Pos() int { return b.pos }

// Err reports the first decode/encode failure, if any.
func (b *PageBuffer) Err() error { return b.err }

// Seek moves the cursor to an absolute offset.
func (b *PageBuffer) Seek(pos int) error {
	if pos < 0 || pos > len(b.data) {
		return fmt.Errorf("%w: seek to %d in %d bytes", ErrBufferOverrun, pos, len(b.data))
	}
	b.pos = pos
	return nil
}

// Skip advances the cursor without touching the bytes under it.
func (b *PageBuffer) Skip(n int) {
	if b.err != nil {
		return
	}
	if b.pos+n > len(b.data) || b.pos+n < 0 {
		b.fail(n)
		return
	}
	b.pos += n
}

func (b *PageBuffer) fail(n int) {
	b.err = fmt.Errorf("%w: %d bytes at offset %d of %d", ErrBufferOverrun, n, b.pos, len(b.data))
}

func (b *PageBuffer) room(n int) bool {
	if b.err != nil {
		return false
	}
	if b.pos+n > len(b.data) {
		b.fail(n)
		return false
	}
	return true
}

// --- Reads ---

func (b *PageBuffer) ReadUint8() uint8 {
	if !b.room(1) {
		return 0
	}
	v := b.data[b.pos]
	b.pos++
	return v
}

func (b *PageBuffer) ReadUint16() uint16 {
	if !b.room(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(b.data[b.pos:])
	b.pos += 2
	return v
}

func (b *PageBuffer) ReadUint32() uint32 {
	if !b.room(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(b.data[b.pos:])
	b.pos += 4
	return v
}

func (b *PageBuffer) ReadUint64() uint64 {
	if !b.room(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(b.data[b.pos:])
	b.pos += 8
	return v
}

func (b *PageBuffer) ReadBool() bool {
	return b.ReadUint8() != 0
}

// ReadCString reads bytes up to (and consuming) the next zero byte.
func (b *PageBuffer) ReadCString() string {
	if b.err != nil {
		return ""
	}
	end := bytes.IndexByte(b.data[b.pos:], 0)
	if end < 0 {
		b.fail(len(b.data) - b.pos)
		return ""
	}
	s := string(b.data[b.pos : b.pos+end])
	b.pos += end + 1
	return s
}

// ReadTime decodes the fixed 8-byte instant encoding. A zero value decodes
// to the zero time.Time, the "never" sentinel.
func (b *PageBuffer) ReadTime() time.Time {
	ns := b.ReadUint64()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ns)).UTC()
}

func (b *PageBuffer) ReadAddress() PageAddress {
	return PageAddress{
		PageID:    b.ReadUint32(),
		SlotIndex: b.ReadUint16(),
	}
}

// --- Writes ---

func (b *PageBuffer) WriteUint8(v uint8) {
	if !b.room(1) {
		return
	}
	b.data[b.pos] = v
	b.pos++
}

func (b *PageBuffer) WriteUint16(v uint16) {
	if !b.room(2) {
		return
	}
	binary.LittleEndian.PutUint16(b.data[b.pos:], v)
	b.pos += 2
}

func (b *PageBuffer) WriteUint32(v uint32) {
	if !b.room(4) {
		return
	}
	binary.LittleEndian.PutUint32(b.data[b.pos:], v)
	b.pos += 4
}

func (b *PageBuffer) WriteUint64(v uint64) {
	if !b.room(8) {
		return
	}
	binary.LittleEndian.PutUint64(b.data[b.pos:], v)
	b.pos += 8
}

func (b *PageBuffer) WriteBool(v bool) {
	if v {
		b.WriteUint8(1)
	} else {
		b.WriteUint8(0)
	}
}

// WriteCString writes the string bytes followed by a zero terminator. The
// string itself must not contain a zero byte.
func (b *PageBuffer) WriteCString(s string) {
	if b.err != nil {
		return
	}
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		b.err = fmt.Errorf("%w: %q", ErrStringContainsZero, s)
		return
	}
	if !b.room(len(s) + 1) {
		return
	}
	copy(b.data[b.pos:], s)
	b.pos += len(s)
	b.data[b.pos] = 0
	b.pos++
}

// WriteTime encodes an instant as 8 bytes of unix nanoseconds. The zero
// time.Time encodes as zero, the "never" sentinel.
func (b *PageBuffer) WriteTime(t time.Time) {
	if t.IsZero() {
		b.WriteUint64(0)
		return
	}
	b.WriteUint64(uint64(t.UnixNano()))
}

func (b *PageBuffer) WriteAddress(a PageAddress) {
	b.WriteUint32(a.PageID)
	b.WriteUint16(a.SlotIndex)
}
