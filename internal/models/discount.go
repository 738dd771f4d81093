package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DiscountType string

const (
	PERCENTAGE       DiscountType = "PERCENTAGE"
	FLAT_OFF         DiscountType = "FLAT_OFF"
	BUY_N_GET_N_FREE DiscountType = "BUY_N_GET_N_FREE"
)

type Discount struct {
	bun.BaseModel `bun:"table:discounts,alias:d"`

	ID           int64            `bun:"id,pk,autoincrement" json:"id"`
	Code         string           `bun:"code,notnull,unique" json:"code"`
	EventID      *int64           `bun:"event_id" json:"event_id,omitempty"`
	Type         DiscountType     `bun:"type,notnull" json:"type"`
	Percentage   *decimal.Decimal `bun:"percentage,type:numeric(5,2)" json:"percentage,omitempty"`
	Amount       *decimal.Decimal `bun:"amount,type:numeric(12,2)" json:"amount,omitempty"`
	MaxDiscount  *decimal.Decimal `bun:"max_discount,type:numeric(12,2)" json:"max_discount,omitempty"`
	MinSpend     *decimal.Decimal `bun:"min_spend,type:numeric(12,2)" json:"min_spend,omitempty"`
	BuyQuantity  *int             `bun:"buy_quantity" json:"buy_quantity,omitempty"`
	GetQuantity  *int             `bun:"get_quantity" json:"get_quantity,omitempty"`
	Active       bool             `bun:"active,notnull" json:"active"`
	ActiveFrom   time.Time        `bun:"active_from,notnull" json:"active_from"`
	ExpiresAt    time.Time        `bun:"expires_at,notnull" json:"expires_at"`
	MaxUsage     int              `bun:"max_usage,notnull,default:0" json:"max_usage"`
	CurrentUsage int              `bun:"current_usage,notnull,default:0" json:"current_usage"`
}
