package types

import (
	"time"
)

// ShoppingList is the authoritative state of one list. Revision increases by
// exactly 1 on every committed mutation and never skips or decreases. Item
// order is presentation order.
type ShoppingList struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Revision  uint64     `json:"revision"`
	Items     []ListItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ListItem is a single entry on a list. IDs are opaque, unique within the
// list and never reused after removal.
type ListItem struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Checked   bool      `json:"checked"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy. Snapshots handed to responses and broadcasts
// must never alias live store state.
func (l *ShoppingList) Clone() *ShoppingList {
	if l == nil {
		return nil
	}
	out := *l
	out.Items = make([]ListItem, len(l.Items))
	copy(out.Items, l.Items)
	return &out
}

// IndexOfItem returns the position of itemID in l.Items, or -1.
func (l *ShoppingList) IndexOfItem(itemID string) int {
	for i := range l.Items {
		if l.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}
