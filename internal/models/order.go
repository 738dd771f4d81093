package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type OrderItemStatus string

const (
	OrderItemActive    OrderItemStatus = "active"
	OrderItemCancelled OrderItemStatus = "cancelled"
)

// Order is the durable record of one confirmed purchase. PaymentReference is
// unique when set; it is the idempotency key for fulfillment.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID               int64           `bun:"id,pk,autoincrement" json:"id"`
	OrderUID         string          `bun:"order_uid,notnull,unique" json:"order_uid"`
	UserID           int64           `bun:"user_id,notnull" json:"user_id"`
	EventID          int64           `bun:"event_id,notnull" json:"event_id"`
	PaymentReference string          `bun:"payment_reference,nullzero,unique" json:"payment_reference,omitempty"`
	PaymentMethod    string          `bun:"payment_method,notnull" json:"payment_method"`
	Status           OrderStatus     `bun:"status,notnull" json:"status"`
	SubTotal         decimal.Decimal `bun:"sub_total,type:numeric(12,2),notnull" json:"sub_total"`
	TaxTotal         decimal.Decimal `bun:"tax_total,type:numeric(12,2),notnull" json:"tax_total"`
	DiscountAmount   decimal.Decimal `bun:"discount_amount,type:numeric(12,2),notnull" json:"discount_amount"`
	DiscountCode     string          `bun:"discount_code,nullzero" json:"discount_code,omitempty"`
	GrandTotal       decimal.Decimal `bun:"grand_total,type:numeric(12,2),notnull" json:"grand_total"`
	Currency         string          `bun:"currency,notnull" json:"currency"`
	CreatedAt        time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id" json:"items,omitempty"`
}

// OrderItem is one purchased unit. Artifact columns stay empty until issuance
// succeeds; ArtifactError records the last failed attempt.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID        int64           `bun:"id,pk,autoincrement" json:"id"`
	OrderID   int64           `bun:"order_id,notnull" json:"order_id"`
	UserID    int64           `bun:"user_id,notnull" json:"user_id"`
	EventID   int64           `bun:"event_id,notnull" json:"event_id"`
	ItemKind  ItemKind        `bun:"item_kind,notnull" json:"item_kind"`
	ItemRefID *int64          `bun:"item_ref_id" json:"item_ref_id"`
	SlotRefID *int64          `bun:"slot_ref_id" json:"slot_ref_id"`
	UnitPrice decimal.Decimal `bun:"unit_price,type:numeric(12,2),notnull" json:"unit_price"`
	Status    OrderItemStatus `bun:"status,notnull" json:"status"`

	ArtifactPayload    string    `bun:"artifact_payload,nullzero" json:"artifact_payload,omitempty"`
	ArtifactSecureHash string    `bun:"artifact_secure_hash,nullzero" json:"artifact_secure_hash,omitempty"`
	ArtifactImageRef   string    `bun:"artifact_image_ref,nullzero" json:"artifact_image_ref,omitempty"`
	ArtifactError      string    `bun:"artifact_error,nullzero" json:"artifact_error,omitempty"`
	IssuedAt           time.Time `bun:"issued_at,nullzero" json:"issued_at,omitzero"`
	CheckedInAt        time.Time `bun:"checked_in_at,nullzero" json:"checked_in_at,omitzero"`
	CreatedAt          time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

func (i *OrderItem) Ref() (ItemRef, error) {
	return NewItemRef(i.ItemKind, i.ItemRefID, i.SlotRefID)
}

func (i *OrderItem) HasArtifact() bool {
	return i.ArtifactSecureHash != "" && i.ArtifactImageRef != ""
}

// Breakdown is the monetary summary of an order.
type Breakdown struct {
	SubTotal       decimal.Decimal `json:"sub_total"`
	TaxTotal       decimal.Decimal `json:"tax_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DiscountCode   string          `json:"discount_code,omitempty"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
}

// Consistent reports whether every figure is non-negative and the grand total
// equals sub_total - discount_amount + tax_total.
func (b Breakdown) Consistent() bool {
	for _, v := range []decimal.Decimal{b.SubTotal, b.TaxTotal, b.DiscountAmount, b.GrandTotal} {
		if v.IsNegative() {
			return false
		}
	}
	if b.DiscountAmount.GreaterThan(b.SubTotal) {
		return false
	}
	return b.SubTotal.Sub(b.DiscountAmount).Add(b.TaxTotal).Equal(b.GrandTotal)
}

// RoundMoney rounds half away from zero to minor units.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineItem is a priced line before unit expansion.
type LineItem struct {
	Ref       ItemRef
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
