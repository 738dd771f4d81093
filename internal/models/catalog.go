package models

import (
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Catalog rows are owned by the event management side; this service only
// reads their current prices.

type TicketType struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID      int64           `bun:"id,pk,autoincrement" json:"id"`
	EventID int64           `bun:"event_id,notnull" json:"event_id"`
	Name    string          `bun:"name,notnull" json:"name"`
	Price   decimal.Decimal `bun:"price,type:numeric(12,2),notnull" json:"price"`
}

type TicketSlotPrice struct {
	bun.BaseModel `bun:"table:ticket_slot_prices,alias:tsp"`

	ID       int64           `bun:"id,pk,autoincrement" json:"id"`
	TicketID int64           `bun:"ticket_id,notnull" json:"ticket_id"`
	SlotID   int64           `bun:"slot_id,notnull" json:"slot_id"`
	Price    decimal.Decimal `bun:"price,type:numeric(12,2),notnull" json:"price"`
}

type Addon struct {
	bun.BaseModel `bun:"table:addons,alias:a"`

	ID      int64           `bun:"id,pk,autoincrement" json:"id"`
	EventID int64           `bun:"event_id,notnull" json:"event_id"`
	Name    string          `bun:"name,notnull" json:"name"`
	Price   decimal.Decimal `bun:"price,type:numeric(12,2),notnull" json:"price"`
}

type Package struct {
	bun.BaseModel `bun:"table:packages,alias:p"`

	ID      int64           `bun:"id,pk,autoincrement" json:"id"`
	EventID int64           `bun:"event_id,notnull" json:"event_id"`
	Name    string          `bun:"name,notnull" json:"name"`
	Price   decimal.Decimal `bun:"price,type:numeric(12,2),notnull" json:"price"`
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:ap"`

	ID      int64           `bun:"id,pk,autoincrement" json:"id"`
	EventID int64           `bun:"event_id,notnull" json:"event_id"`
	Name    string          `bun:"name,notnull" json:"name"`
	Price   decimal.Decimal `bun:"price,type:numeric(12,2),notnull" json:"price"`
}
