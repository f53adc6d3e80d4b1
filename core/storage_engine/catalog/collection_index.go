package catalog

import (
	"github.com/docustore/docustore/core/storage_engine/page"
)

// PrimaryKeyName is the reserved name of the primary key index present on
// every initialized collection.
const PrimaryKeyName = "_id"

// CollectionIndex is one catalog entry describing a secondary (or the
// primary _id) index on a collection. Head and Tail point at the sentinel
// nodes of the index's skip list; the traversal logic itself lives outside
// this package and only the summary statistics are persisted here.
type CollectionIndex struct {
	Name           string
	Expression     string
	Unique         bool
	Head           page.PageAddress
	Tail           page.PageAddress
	MaxLevel       uint8
	KeyCount       uint32
	UniqueKeyCount uint32
}

func (ix *CollectionIndex) IsPrimaryKey() bool {
	return ix.Name == PrimaryKeyName
}

// indexEntryFixedSize is the serialized size of one entry minus the two
// zero-terminated strings: unique flag, head, tail, max level, key count,
// unique key count.
const indexEntryFixedSize = 1 + 2*page.PageAddressSize + 1 + 4 + 4

// serializedSize is the exact number of payload bytes the entry occupies.
func (ix *CollectionIndex) serializedSize() int {
	return len(ix.Name) + 1 + len(ix.Expression) + 1 + indexEntryFixedSize
}

func (ix *CollectionIndex) writeTo(buf *page.PageBuffer) {
	buf.WriteCString(ix.Name)
	buf.WriteCString(ix.Expression)
	buf.WriteBool(ix.Unique)
	buf.WriteAddress(ix.Head)
	buf.WriteAddress(ix.Tail)
	buf.WriteUint8(ix.MaxLevel)
	buf.WriteUint32(ix.KeyCount)
	buf.WriteUint32(ix.UniqueKeyCount)
}

func readIndexEntry(buf *page.PageBuffer) *CollectionIndex {
	return &CollectionIndex{
		Name:           buf.ReadCString(),
		Expression:     buf.ReadCString(),
		Unique:         buf.ReadBool(),
		Head:           buf.ReadAddress(),
		Tail:           buf.ReadAddress(),
		MaxLevel:       buf.ReadUint8(),
		KeyCount:       buf.ReadUint32(),
		UniqueKeyCount: buf.ReadUint32(),
	}
}
