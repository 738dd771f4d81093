package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/database/migrations"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

const usage = "usage: migrate [up | down | version | to <n> | seed]"

func main() {
	log := logger.NewLogger("migrate")
	defer log.Close()

	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN)))
	defer sqldb.Close()
	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to database: %v", err))
	}
	db := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(db, log)
	defer runner.Close()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "version":
		var v uint
		var dirty bool
		v, dirty, err = runner.Version()
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", v, dirty)
		}
	case "to":
		if len(os.Args) < 3 {
			log.Fatal("MIGRATE", usage)
		}
		v, perr := strconv.ParseUint(os.Args[2], 10, 32)
		if perr != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("invalid version %q", os.Args[2]))
		}
		err = runner.To(uint(v))
	case "seed":
		if err = runner.Up(); err == nil {
			err = seedData(ctx, db)
		}
	default:
		log.Fatal("MIGRATE", usage)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("%s done", cmd))
}

// seedData inserts a demo event with one of every purchasable kind. Rows that
// already exist are left alone.
func seedData(ctx context.Context, db *bun.DB) error {
	price := decimal.RequireFromString
	pct := price("10")
	now := time.Now().UTC()

	rows := []interface{}{
		&models.User{ID: 1, Email: "demo@example.com", FullName: "Demo Buyer"},
		&models.Event{ID: 1, Name: "Demo Festival", Location: "Main Arena", StartsAt: now.AddDate(0, 1, 0), Timezone: "Europe/Berlin", Currency: "EUR"},
		&models.TicketType{ID: 1, EventID: 1, Name: "General Admission", Price: price("20.00")},
		&models.TicketType{ID: 2, EventID: 1, Name: "Workshop", Price: price("30.00")},
		&models.TicketSlotPrice{ID: 1, TicketID: 2, SlotID: 1, Price: price("35.50")},
		&models.Addon{ID: 1, EventID: 1, Name: "Parking", Price: price("5.25")},
		&models.Package{ID: 1, EventID: 1, Name: "VIP Bundle", Price: price("99.99")},
		&models.Appointment{ID: 1, EventID: 1, Name: "Meet & Greet", Price: price("15.00")},
		&models.Discount{ID: 1, Code: "DEMO10", Type: models.PERCENTAGE, Percentage: &pct, Active: true,
			ActiveFrom: now.AddDate(0, -1, 0), ExpiresAt: now.AddDate(1, 0, 0)},
	}
	for _, r := range rows {
		if _, err := db.NewInsert().Model(r).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed %T: %w", r, err)
		}
	}

	for _, table := range []string{"users", "events", "tickets", "ticket_slot_prices", "addons", "packages", "appointments", "discounts"} {
		q := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), GREATEST((SELECT MAX(id) FROM %s), 1))", table, table)
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("advance %s sequence: %w", table, err)
		}
	}
	return nil
}
