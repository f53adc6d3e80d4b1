package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlotTable_AllocateAssignsStableIndexes(t *testing.T) {
	table := NewSlotTable()

	first, err := table.Allocate(100)
	require.NoError(t, err)
	require.Equal(t, uint16(0), first.Index)
	require.Equal(t, uint16(PageHeaderSize), first.Position)
	require.Equal(t, uint16(100), first.Length)

	second, err := table.Allocate(50)
	require.NoError(t, err)
	require.Equal(t, uint16(1), second.Index)
	require.Equal(t, first.Position+first.Length, second.Position)

	require.NoError(t, table.Free(first.Index))
	freed, err := table.Slot(first.Index)
	require.NoError(t, err)
	require.True(t, freed.IsFree())

	// A freed descriptor is reused without disturbing live ones.
	third, err := table.Allocate(20)
	require.NoError(t, err)
	require.Equal(t, first.Index, third.Index)

	still, err := table.Slot(second.Index)
	require.NoError(t, err)
	require.Equal(t, second, still)
}

func TestSlotTable_FreeBytesShrinksWithSlotOverhead(t *testing.T) {
	table := NewSlotTable()
	before := table.FreeBytes()

	_, err := table.Allocate(100)
	require.NoError(t, err)
	require.Equal(t, before-100-SlotSize, table.FreeBytes())
}

func TestSlotTable_RejectsOversizedAllocation(t *testing.T) {
	table := NewSlotTable()
	_, err := table.Allocate(uint16(MaxDocumentSize) + 1)
	require.ErrorIs(t, err, ErrSlotTableFull)

	_, err = table.Allocate(0)
	require.ErrorIs(t, err, ErrSlotTableFull)
}

func TestSlotTable_FreeValidation(t *testing.T) {
	table := NewSlotTable()
	require.ErrorIs(t, table.Free(0), ErrSlotOutOfRange)

	slot, err := table.Allocate(10)
	require.NoError(t, err)
	require.NoError(t, table.Free(slot.Index))
	require.ErrorIs(t, table.Free(slot.Index), ErrSlotOutOfRange)
}

func TestSlotTable_BufferRoundTrip(t *testing.T) {
	table := NewSlotTable()
	a, err := table.Allocate(64)
	require.NoError(t, err)
	b, err := table.Allocate(128)
	require.NoError(t, err)
	require.NoError(t, table.Free(a.Index))

	buf := NewPageBuffer()
	require.NoError(t, table.WriteTo(buf))

	decoded := NewSlotTable()
	require.NoError(t, decoded.ReadFrom(buf, uint16(table.Count())))
	require.Equal(t, table.Count(), decoded.Count())

	gotA, err := decoded.Slot(a.Index)
	require.NoError(t, err)
	require.True(t, gotA.IsFree())

	gotB, err := decoded.Slot(b.Index)
	require.NoError(t, err)
	require.Equal(t, b, gotB)
}
