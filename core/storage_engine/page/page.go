package page

import (
	"fmt"
	"hash/crc32"
)

// PageType discriminates the concrete decoder for a raw page buffer.
type PageType uint8

const (
	PageTypeEmpty PageType = iota
	PageTypeHeader
	PageTypeCollection
	PageTypeData
	PageTypeIndex
)

func (t PageType) String() string {
	switch t {
	case PageTypeEmpty:
		return "Empty"
	case PageTypeHeader:
		return "Header"
	case PageTypeCollection:
		return "Collection"
	case PageTypeData:
		return "Data"
	case PageTypeIndex:
		return "Index"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// BasePage is the common metadata every concrete page type embeds, encoded
// in the fixed-size header region at the start of every page buffer:
//
//	| off | field          | size |
//	|-----|----------------|------|
//	| 0   | page id        | 4    |
//	| 4   | page type      | 1    |
//	| 5   | format version | 1    |
//	| 6   | prev page id   | 4    |
//	| 10  | next page id   | 4    |
//	| 14  | item count     | 2    |
//	| 16  | free bytes     | 2    |
//	| 18  | reserved       | 14   |
//
// The dirty flag is transient and never persisted.
type BasePage struct {
	PageID     uint32
	Type       PageType
	PrevPageID uint32
	NextPageID uint32
	ItemCount  uint16
	FreeBytes  uint16

	dirty bool
}

// NewBasePage initializes header fields for a freshly allocated page.
func NewBasePage(pageID uint32, pageType PageType) BasePage {
	return BasePage{
		PageID:     pageID,
		Type:       pageType,
		PrevPageID: EmptyPageID,
		NextPageID: EmptyPageID,
		FreeBytes:  PageSize - PageHeaderSize - 1,
		dirty:      true,
	}
}

func (p *BasePage) IsDirty() bool { return p.dirty }

func (p *BasePage) MarkDirty() { p.dirty = true }

// ClearDirty is called by encoders after the buffer has been rewritten.
func (p *BasePage) ClearDirty() { p.dirty = false }

// PageTypeOf reads just the type byte of a raw buffer so callers can
// dispatch to the right decoder before anything else is parsed.
func PageTypeOf(buf *PageBuffer) PageType {
	return PageType(buf.Bytes()[4])
}

// ReadHeader decodes the common header and validates that the on-disk type
// matches the decoder being used. A mismatch means the caller is looking at
// a corrupted or misaddressed page and must abort.
func (p *BasePage) ReadHeader(buf *PageBuffer, want PageType) error {
	if err := buf.Seek(0); err != nil {
		return err
	}
	p.PageID = buf.ReadUint32()
	p.Type = PageType(buf.ReadUint8())
	version := buf.ReadUint8()
	p.PrevPageID = buf.ReadUint32()
	p.NextPageID = buf.ReadUint32()
	p.ItemCount = buf.ReadUint16()
	p.FreeBytes = buf.ReadUint16()
	buf.Skip(PageHeaderSize - buf.Pos())
	if err := buf.Err(); err != nil {
		return err
	}
	if p.Type != want {
		return &InvalidPageTypeError{PageID: p.PageID, Got: p.Type, Want: want}
	}
	if version != FormatVersion {
		return fmt.Errorf("%w: page %d has version %d", ErrUnsupportedFormat, p.PageID, version)
	}
	p.dirty = false
	return nil
}

// WriteHeader encodes the common header at the start of the buffer and
// leaves the cursor at the payload start.
func (p *BasePage) WriteHeader(buf *PageBuffer) error {
	if err := buf.Seek(0); err != nil {
		return err
	}
	buf.WriteUint32(p.PageID)
	buf.WriteUint8(uint8(p.Type))
	buf.WriteUint8(FormatVersion)
	buf.WriteUint32(p.PrevPageID)
	buf.WriteUint32(p.NextPageID)
	buf.WriteUint16(p.ItemCount)
	buf.WriteUint16(p.FreeBytes)
	for buf.Pos() < PageHeaderSize {
		buf.WriteUint8(0)
	}
	return buf.Err()
}

// Checksum folds a CRC32 over everything but the trailing byte into the
// single integrity byte stored at ChecksumOffset.
func Checksum(data []byte) byte {
	sum := crc32.ChecksumIEEE(data[:ChecksumOffset])
	return byte(sum) ^ byte(sum>>8) ^ byte(sum>>16) ^ byte(sum>>24)
}

// StampChecksum writes the integrity byte of a fully encoded page.
func StampChecksum(buf *PageBuffer) {
	buf.Bytes()[ChecksumOffset] = Checksum(buf.Bytes())
}

// VerifyChecksum recomputes the integrity byte and compares it against the
// stored one.
func VerifyChecksum(buf *PageBuffer) error {
	if got, want := buf.Bytes()[ChecksumOffset], Checksum(buf.Bytes()); got != want {
		return fmt.Errorf("%w: stored %#x, computed %#x", ErrChecksumMismatch, got, want)
	}
	return nil
}
