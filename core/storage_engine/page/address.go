package page

import "fmt"

// PageAddress identifies one record location: a page id plus the index of
// the slot holding the record inside that page.
type PageAddress struct {
	PageID    uint32
	SlotIndex uint16
}

// EmptyPageAddress points at nothing. Used as the initial value for index
// head/tail sentinels before the skip list allocates its first node.
var EmptyPageAddress = PageAddress{PageID: EmptyPageID}

func NewPageAddress(pageID uint32, slotIndex uint16) PageAddress {
	return PageAddress{PageID: pageID, SlotIndex: slotIndex}
}

func (a PageAddress) IsEmpty() bool {
	return a.PageID == EmptyPageID
}

func (a PageAddress) String() string {
	if a.IsEmpty() {
		return "(empty)"
	}
	return fmt.Sprintf("%d:%d", a.PageID, a.SlotIndex)
}
