package catalog

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docustore/docustore/core/storage_engine/page"
)

func encodeAndReload(t *testing.T, col *CollectionPage) (*page.PageBuffer, *CollectionPage) {
	t.Helper()
	buf := page.NewPageBuffer()
	require.NoError(t, col.Encode(buf, true))
	reloaded, err := DecodeCollectionPage(buf)
	require.NoError(t, err)
	return buf, reloaded
}

func TestCollectionPage_FreshRoundTrip(t *testing.T) {
	col := NewCollectionPage(3)
	_, got := encodeAndReload(t, col)

	require.Equal(t, uint32(3), got.PageID)
	require.Equal(t, page.PageTypeCollection, got.Type)
	require.True(t, got.CreationTime.Equal(col.CreationTime))
	require.True(t, got.LastAnalyzed.IsZero(), "a fresh collection was never analyzed")
	require.Empty(t, got.Indexes())

	for bucket := 0; bucket < page.PageFreeListSlots; bucket++ {
		data, err := got.FreeDataPageHead(bucket)
		require.NoError(t, err)
		require.Equal(t, page.EmptyPageID, data)
		index, err := got.FreeIndexPageHead(bucket)
		require.NoError(t, err)
		require.Equal(t, page.EmptyPageID, index)
	}
}

func TestCollectionPage_RoundTripWithIndexes(t *testing.T) {
	col := NewCollectionPage(1)
	_, err := col.InsertIndex(PrimaryKeyName, "$._id", true, page.NewPageAddress(4, 0), page.NewPageAddress(4, 1))
	require.NoError(t, err)

	age, err := col.InsertIndex("age", "$.age", false, page.NewPageAddress(10, 0), page.NewPageAddress(10, 0))
	require.NoError(t, err)
	age.MaxLevel = 5
	age.KeyCount = 120
	age.UniqueKeyCount = 88

	require.NoError(t, col.SetFreeDataPageHead(2, 55))
	require.NoError(t, col.SetFreeIndexPageHead(5, 91))
	col.LastAnalyzed = time.Now()

	_, got := encodeAndReload(t, col)

	require.True(t, got.LastAnalyzed.Equal(col.LastAnalyzed))
	require.Len(t, got.Indexes(), 2)

	gotAge, ok := got.Index("age")
	require.True(t, ok)
	require.Equal(t, *age, *gotAge)

	pk, err := got.PrimaryKeyIndex()
	require.NoError(t, err)
	require.True(t, pk.Unique)
	require.Equal(t, "$._id", pk.Expression)

	head, err := got.FreeDataPageHead(2)
	require.NoError(t, err)
	require.Equal(t, uint32(55), head)
	ixHead, err := got.FreeIndexPageHead(5)
	require.NoError(t, err)
	require.Equal(t, uint32(91), ixHead)
}

func TestCollectionPage_EncodeIsIdempotent(t *testing.T) {
	col := NewCollectionPage(1)
	_, err := col.InsertIndex("age", "$.age", false, page.EmptyPageAddress, page.EmptyPageAddress)
	require.NoError(t, err)

	buf := page.NewPageBuffer()
	require.NoError(t, col.Encode(buf, true))
	require.False(t, col.IsDirty(), "a successful encode clears the dirty flag")

	snapshot := make([]byte, page.PageSize)
	copy(snapshot, buf.Bytes())

	// Second encode is a no-op: the dirty flag was cleared.
	require.NoError(t, col.Encode(buf, true))
	require.Equal(t, snapshot, buf.Bytes())

	// Without the update flag nothing is written either, dirty or not.
	_, err = col.UpdateIndex("age")
	require.NoError(t, err)
	require.NoError(t, col.Encode(buf, false))
	require.Equal(t, snapshot, buf.Bytes())
}

func TestCollectionPage_IndexRegionSkippedWhenUnchanged(t *testing.T) {
	col := NewCollectionPage(1)
	_, err := col.InsertIndex("age", "$.age", false, page.EmptyPageAddress, page.EmptyPageAddress)
	require.NoError(t, err)

	buf := page.NewPageBuffer()
	require.NoError(t, col.Encode(buf, true))

	// A free-list change dirties the page but not the index region; the
	// encoder must leave that region untouched.
	require.NoError(t, col.SetFreeDataPageHead(0, 7))
	require.NoError(t, buf.Seek(page.PageHeaderSize + 64))
	buf.WriteUint8(0xEE) // scribble on the index count byte
	require.NoError(t, col.Encode(buf, true))

	require.NoError(t, buf.Seek(page.PageHeaderSize+64))
	require.Equal(t, uint8(0xEE), buf.ReadUint8())

	// An index mutation rewrites the region again.
	_, err = col.UpdateIndex("age")
	require.NoError(t, err)
	require.NoError(t, col.Encode(buf, true))
	require.NoError(t, buf.Seek(page.PageHeaderSize+64))
	require.Equal(t, uint8(1), buf.ReadUint8())
}

func TestCollectionPage_DecodeWrongTypeFails(t *testing.T) {
	buf := page.NewPageBuffer()
	base := page.NewBasePage(9, page.PageTypeData)
	require.NoError(t, base.WriteHeader(buf))

	_, err := DecodeCollectionPage(buf)
	var typeErr *page.InvalidPageTypeError
	require.ErrorAs(t, err, &typeErr)
	require.Equal(t, uint32(9), typeErr.PageID)
	require.Equal(t, page.PageTypeData, typeErr.Got)
}

func TestCollectionPage_InsertValidation(t *testing.T) {
	col := NewCollectionPage(1)
	_, err := col.InsertIndex(PrimaryKeyName, "$._id", true, page.EmptyPageAddress, page.EmptyPageAddress)
	require.NoError(t, err)

	_, err = col.InsertIndex(PrimaryKeyName, "$._id", true, page.EmptyPageAddress, page.EmptyPageAddress)
	require.ErrorIs(t, err, page.ErrDuplicateIndexName)

	_, err = col.InsertIndex(strings.Repeat("n", page.IndexNameMaxLength+1), "$.n", false, page.EmptyPageAddress, page.EmptyPageAddress)
	require.ErrorIs(t, err, page.ErrIndexNameTooLong)

	longest, err := col.InsertIndex(strings.Repeat("n", page.IndexNameMaxLength), "$.n", false, page.EmptyPageAddress, page.EmptyPageAddress)
	require.NoError(t, err)
	require.Equal(t, uint8(1), longest.MaxLevel)
	require.Zero(t, longest.KeyCount)
	require.Zero(t, longest.UniqueKeyCount)
}

func TestCollectionPage_IndexCountLimit(t *testing.T) {
	col := NewCollectionPage(1)
	for n := 0; n < 255; n++ {
		_, err := col.InsertIndex(fmt.Sprintf("i%d", n), "$.x", false, page.EmptyPageAddress, page.EmptyPageAddress)
		require.NoError(t, err, "index %d must fit", n)
	}
	_, err := col.InsertIndex("one-too-many", "$.x", false, page.EmptyPageAddress, page.EmptyPageAddress)
	require.ErrorIs(t, err, page.ErrIndexCatalogFull)

	// All 255 survive a round trip.
	_, got := encodeAndReload(t, col)
	require.Len(t, got.Indexes(), 255)
}

func TestCollectionPage_CapacityCheckBySize(t *testing.T) {
	col := NewCollectionPage(1)
	// Large expressions exhaust the payload well before the count limit.
	expression := strings.Repeat("x", 200)
	inserted := 0
	for n := 0; n < 255; n++ {
		_, err := col.InsertIndex(fmt.Sprintf("i%d", n), expression, false, page.EmptyPageAddress, page.EmptyPageAddress)
		if err != nil {
			require.ErrorIs(t, err, page.ErrIndexCatalogFull)
			break
		}
		inserted++
	}
	require.Greater(t, inserted, 0)
	require.Less(t, inserted, 255, "size check must trip before the count limit")

	// Whatever fit still encodes within one page.
	_, got := encodeAndReload(t, col)
	require.Len(t, got.Indexes(), inserted)
}

func TestCollectionPage_UpdateAndDelete(t *testing.T) {
	col := NewCollectionPage(1)
	_, err := col.InsertIndex("age", "$.age", false, page.EmptyPageAddress, page.EmptyPageAddress)
	require.NoError(t, err)

	ix, err := col.UpdateIndex("age")
	require.NoError(t, err)
	ix.KeyCount = 10
	ix.UniqueKeyCount = 9
	ix.MaxLevel = 3
	require.LessOrEqual(t, ix.MaxLevel, uint8(page.MaxLevelLength))
	require.GreaterOrEqual(t, ix.KeyCount, ix.UniqueKeyCount)

	_, err = col.UpdateIndex("height")
	require.ErrorIs(t, err, page.ErrIndexNotFound)

	require.NoError(t, col.DeleteIndex("age"))
	_, ok := col.Index("age")
	require.False(t, ok)
	require.ErrorIs(t, col.DeleteIndex("age"), page.ErrIndexNotFound)
}

func TestCollectionPage_DeleteMissingLeavesStateUntouched(t *testing.T) {
	col := NewCollectionPage(1)
	_, err := col.InsertIndex("age", "$.age", false, page.EmptyPageAddress, page.EmptyPageAddress)
	require.NoError(t, err)

	buf := page.NewPageBuffer()
	require.NoError(t, col.Encode(buf, true))
	snapshot := make([]byte, page.PageSize)
	copy(snapshot, buf.Bytes())

	require.ErrorIs(t, col.DeleteIndex("nope"), page.ErrIndexNotFound)
	require.False(t, col.IsDirty(), "a failed delete must not dirty the page")
	require.Len(t, col.Indexes(), 1)

	require.NoError(t, col.Encode(buf, true))
	require.Equal(t, snapshot, buf.Bytes())
}

func TestCollectionPage_MissingPrimaryKeyIsCorruption(t *testing.T) {
	col := NewCollectionPage(1)
	_, err := col.PrimaryKeyIndex()
	require.ErrorIs(t, err, page.ErrMissingPrimaryKey)
}

func TestCollectionPage_FreeListAccessors(t *testing.T) {
	col := NewCollectionPage(1)
	require.NoError(t, col.SetFreeDataPageHead(3, 77))
	require.True(t, col.IsDirty(), "free-list updates always dirty the page")

	head, err := col.FreeDataPageHead(3)
	require.NoError(t, err)
	require.Equal(t, uint32(77), head)

	for bucket := 0; bucket < page.PageFreeListSlots; bucket++ {
		if bucket == 3 {
			continue
		}
		other, err := col.FreeDataPageHead(bucket)
		require.NoError(t, err)
		require.Equal(t, page.EmptyPageID, other, "bucket %d must stay empty", bucket)
	}
	for bucket := 0; bucket < page.PageFreeListSlots; bucket++ {
		other, err := col.FreeIndexPageHead(bucket)
		require.NoError(t, err)
		require.Equal(t, page.EmptyPageID, other)
	}

	_, err = col.FreeDataPageHead(-1)
	require.ErrorIs(t, err, page.ErrBucketOutOfRange)
	_, err = col.FreeIndexPageHead(page.PageFreeListSlots)
	require.ErrorIs(t, err, page.ErrBucketOutOfRange)
	require.ErrorIs(t, col.SetFreeDataPageHead(6, 1), page.ErrBucketOutOfRange)
	require.ErrorIs(t, col.SetFreeIndexPageHead(-2, 1), page.ErrBucketOutOfRange)
}

func TestCollectionPage_InsertPersistReloadScenario(t *testing.T) {
	col := NewCollectionPage(2)
	addr := page.NewPageAddress(10, 0)
	_, err := col.InsertIndex("age", "$.age", false, addr, addr)
	require.NoError(t, err)

	_, got := encodeAndReload(t, col)

	ix, ok := got.Index("age")
	require.True(t, ok)
	require.Equal(t, "age", ix.Name)
	require.Equal(t, "$.age", ix.Expression)
	require.False(t, ix.Unique)
	require.Equal(t, addr, ix.Head)
	require.Equal(t, addr, ix.Tail)
	require.Equal(t, uint8(1), ix.MaxLevel)
	require.Zero(t, ix.KeyCount)
	require.Zero(t, ix.UniqueKeyCount)
}
