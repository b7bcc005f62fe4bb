package realtime

import (
	"github.com/cartsync/cartsync-backend/internal/types"
)

type EventKind string

const (
	EventListCreated    EventKind = "list_created"
	EventListRenamed    EventKind = "list_renamed"
	EventListDeleted    EventKind = "list_deleted"
	EventItemAdded      EventKind = "item_added"
	EventItemUpdated    EventKind = "item_updated"
	EventItemRemoved    EventKind = "item_removed"
	EventItemsReordered EventKind = "items_reordered"
	EventItemsChecked   EventKind = "items_checked"
	EventItemsCleared   EventKind = "items_cleared"
)

// PushType marks server-initiated messages on the wire.
const PushType = "event"

// Event is the change notification fanned out to every session subscribed to
// the affected list. It carries a full snapshot tagged with the revision it
// represents, so a client reconstructs exact state without refetching.
// List is nil for list_deleted. Origin identifies the emitting instance when
// events travel over the cross-instance bus.
type Event struct {
	Type     string              `json:"type"`
	Event    EventKind           `json:"event"`
	ListID   string              `json:"list_id"`
	Revision uint64              `json:"revision"`
	List     *types.ShoppingList `json:"list,omitempty"`
	Origin   string              `json:"origin,omitempty"`
}

func NewEvent(kind EventKind, listID string, revision uint64, snapshot *types.ShoppingList) Event {
	return Event{
		Type:     PushType,
		Event:    kind,
		ListID:   listID,
		Revision: revision,
		List:     snapshot,
	}
}
