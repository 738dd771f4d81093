package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-fulfillment/internal/models"
)

// Models lists every table this service touches, in creation order.
func Models() []interface{} {
	return []interface{}{
		(*models.User)(nil),
		(*models.Event)(nil),
		(*models.TicketType)(nil),
		(*models.TicketSlotPrice)(nil),
		(*models.Addon)(nil),
		(*models.Package)(nil),
		(*models.Appointment)(nil),
		(*models.Discount)(nil),
		(*models.CartLine)(nil),
		(*models.Order)(nil),
		(*models.OrderItem)(nil),
	}
}

// CreateSchema builds the tables straight from the bun models. Production
// databases are managed by the SQL migrations instead.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, m := range Models() {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}
