// Package testdb opens in-memory SQLite databases with the full schema for tests.
package testdb

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-fulfillment/internal/database"
	"ms-fulfillment/internal/models"
)

func New(t testing.TB) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// one connection keeps the in-memory database alive and shared
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := database.CreateSchema(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

// Fixture ids seeded by Seed.
const (
	UserID        int64 = 1
	OtherUserID   int64 = 2
	EventID       int64 = 7
	OtherEventID  int64 = 8
	TicketID      int64 = 11
	SlotTicketID  int64 = 12
	SlotID        int64 = 3
	AddonID       int64 = 21
	PackageID     int64 = 31
	AppointmentID int64 = 41
	OtherTicketID int64 = 51
)

// Seed inserts two events with a small catalog and two users.
//
//	event 7: ticket 11 @ 20.00, ticket 12 slot 3 @ 35.50, addon 21 @ 5.25,
//	         package 31 @ 99.99, appointment 41 @ 15.00
//	event 8: ticket 51 @ 10.00
func Seed(t testing.TB, db *bun.DB) {
	t.Helper()
	ctx := context.Background()

	rows := []interface{}{
		&[]models.User{
			{ID: UserID, Email: "ada@example.com", FullName: "Ada Lovelace"},
			{ID: OtherUserID, Email: "alan@example.com", FullName: "Alan Turing"},
		},
		&[]models.Event{
			{ID: EventID, Name: "Summer Fest", Location: "Main Arena", StartsAt: time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC), Timezone: "Europe/Berlin", Currency: "EUR"},
			{ID: OtherEventID, Name: "Winter Gala", Location: "Hall B", StartsAt: time.Date(2025, 12, 1, 19, 0, 0, 0, time.UTC), Timezone: "UTC", Currency: "USD"},
		},
		&[]models.TicketType{
			{ID: TicketID, EventID: EventID, Name: "General Admission", Price: decimal.RequireFromString("20.00")},
			{ID: SlotTicketID, EventID: EventID, Name: "Workshop", Price: decimal.RequireFromString("30.00")},
			{ID: OtherTicketID, EventID: OtherEventID, Name: "Gala Entry", Price: decimal.RequireFromString("10.00")},
		},
		&[]models.TicketSlotPrice{
			{TicketID: SlotTicketID, SlotID: SlotID, Price: decimal.RequireFromString("35.50")},
		},
		&[]models.Addon{{ID: AddonID, EventID: EventID, Name: "Parking", Price: decimal.RequireFromString("5.25")}},
		&[]models.Package{{ID: PackageID, EventID: EventID, Name: "VIP Bundle", Price: decimal.RequireFromString("99.99")}},
		&[]models.Appointment{{ID: AppointmentID, EventID: EventID, Name: "Meet & Greet", Price: decimal.RequireFromString("15.00")}},
	}
	for _, r := range rows {
		if _, err := db.NewInsert().Model(r).Exec(ctx); err != nil {
			t.Fatalf("Failed to seed %T: %v", r, err)
		}
	}
}
