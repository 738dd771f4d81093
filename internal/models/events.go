package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotItem is one pre-priced line of a payment snapshot.
type SnapshotItem struct {
	ItemKind  ItemKind        `json:"item_kind" validate:"required"`
	ItemRefID *int64          `json:"item_ref_id" validate:"required"`
	SlotRefID *int64          `json:"slot_ref_id,omitempty"`
	Quantity  int             `json:"quantity" validate:"gte=1,lte=100"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (s SnapshotItem) LineItem() (LineItem, error) {
	ref, err := NewItemRef(s.ItemKind, s.ItemRefID, s.SlotRefID)
	if err != nil {
		return LineItem{}, err
	}
	if s.UnitPrice.IsNegative() {
		return LineItem{}, fmt.Errorf("%s: negative unit price", s.ItemKind)
	}
	return LineItem{Ref: ref, Quantity: s.Quantity, UnitPrice: s.UnitPrice}, nil
}

// PaymentConfirmedEvent is published by the payment side once a charge is
// captured against a finalized snapshot.
type PaymentConfirmedEvent struct {
	UserID           int64          `json:"user_id" validate:"required,gt=0"`
	EventID          int64          `json:"event_id" validate:"required,gt=0"`
	PaymentReference string         `json:"payment_reference" validate:"required"`
	PaymentMethod    string         `json:"payment_method" validate:"required"`
	Breakdown        Breakdown      `json:"breakdown"`
	Items            []SnapshotItem `json:"items" validate:"dive"`
	ConfirmedAt      time.Time      `json:"confirmed_at"`
}

// OrderFulfilledEvent is emitted after an order commits.
type OrderFulfilledEvent struct {
	OrderID          int64           `json:"order_id"`
	OrderUID         string          `json:"order_uid"`
	UserID           int64           `json:"user_id"`
	EventID          int64           `json:"event_id"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	Currency         string          `json:"currency"`
	Units            int             `json:"units"`
	IssuedArtifacts  int             `json:"issued_artifacts"`
	FulfilledAt      time.Time       `json:"fulfilled_at"`
}

func (e OrderFulfilledEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
