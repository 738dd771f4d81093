package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type CartLine struct {
	bun.BaseModel `bun:"table:cart_lines,alias:cl"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	EventID   int64     `bun:"event_id,notnull" json:"event_id"`
	ItemKind  ItemKind  `bun:"item_kind,notnull" json:"item_kind"`
	ItemRefID *int64    `bun:"item_ref_id" json:"item_ref_id"`
	SlotRefID *int64    `bun:"slot_ref_id" json:"slot_ref_id"`
	Quantity  int       `bun:"quantity,notnull" json:"quantity"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

func (l *CartLine) Ref() (ItemRef, error) {
	return NewItemRef(l.ItemKind, l.ItemRefID, l.SlotRefID)
}

// MaxLineQuantity caps the units of one line, in the cart and in a payment snapshot.
const MaxLineQuantity = 100

// CartLockKey is the advisory lock shared by cart mutations and fulfillment for one user.
func CartLockKey(userID int64) string {
	return fmt.Sprintf("cart_lock:%d", userID)
}
