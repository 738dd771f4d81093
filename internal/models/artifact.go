package models

import "fmt"

// ArtifactPayload is the exact document encoded in a ticket QR. Field order is
// fixed so the serialized form is deterministic.
type ArtifactPayload struct {
	OrderItemID   int64    `json:"order_item_id"`
	OrderID       int64    `json:"order_id"`
	UserID        int64    `json:"user_id"`
	EventID       int64    `json:"event_id"`
	ItemKind      ItemKind `json:"item_kind"`
	ItemRefID     *int64   `json:"item_ref_id"`
	SlotRefID     *int64   `json:"slot_ref_id"`
	ScannableCode string   `json:"scannable_code"`
	Hash          string   `json:"hash"`
}

func ScannableCode(eventID, orderItemID int64) string {
	return fmt.Sprintf("EVT%d-ITEM%d", eventID, orderItemID)
}

// NewArtifactPayload builds the unsigned payload for an order item.
func NewArtifactPayload(item *OrderItem) ArtifactPayload {
	return ArtifactPayload{
		OrderItemID:   item.ID,
		OrderID:       item.OrderID,
		UserID:        item.UserID,
		EventID:       item.EventID,
		ItemKind:      item.ItemKind,
		ItemRefID:     item.ItemRefID,
		SlotRefID:     item.SlotRefID,
		ScannableCode: ScannableCode(item.EventID, item.ID),
	}
}
