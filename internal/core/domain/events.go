package domain

import "time"

// EventType names an inventory lifecycle event.
type EventType string

// Event types
const (
	EventItemCreated       EventType = "item.created"
	EventItemIncremented   EventType = "item.incremented"
	EventItemDecremented   EventType = "item.decremented"
	EventItemDeleted       EventType = "item.deleted"
	EventAssetDeleteFailed EventType = "asset.delete_failed"
	EventAssetSwept        EventType = "asset.swept"
)

// Event is published after every committed mutation and whenever a
// best-effort asset cleanup fails.
type Event struct {
	Type       EventType `json:"type"`
	ItemID     string    `json:"item_id"`
	Quantity   int       `json:"quantity"`
	AssetRef   string    `json:"asset_ref,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewItemEvent builds an event describing item's state after a mutation.
func NewItemEvent(t EventType, item *InventoryItem) Event {
	return Event{
		Type:       t,
		ItemID:     item.ID,
		Quantity:   item.Quantity,
		AssetRef:   item.AssetRef,
		OccurredAt: time.Now().UTC(),
	}
}
