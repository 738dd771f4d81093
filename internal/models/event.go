package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Location    string    `bun:"location" json:"location"`
	StartsAt    time.Time `bun:"starts_at,notnull" json:"starts_at"`
	Timezone    string    `bun:"timezone,notnull" json:"timezone"`
	Currency    string    `bun:"currency,notnull" json:"currency"`
	ImageURL    string    `bun:"image_url" json:"image_url,omitempty"`
	OrganizerID int64     `bun:"organizer_id" json:"organizer_id"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
