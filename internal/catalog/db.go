// Package catalog reads the event, price and user data this service needs
// but does not own.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-fulfillment/internal/models"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrItemNotFound  = errors.New("item not found for event")
	ErrUserNotFound  = errors.New("user not found")
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", eventID, err)
	}
	return &event, nil
}

func (d *DB) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &user, nil
}

// UnitPrice returns the current authoritative price of ref within eventID.
func (d *DB) UnitPrice(ctx context.Context, eventID int64, ref models.ItemRef) (decimal.Decimal, error) {
	switch r := ref.(type) {
	case models.TicketRef:
		return d.priceOf(ctx, (*models.TicketType)(nil), eventID, r.TicketID)
	case models.PricedSlotRef:
		if _, err := d.priceOf(ctx, (*models.TicketType)(nil), eventID, r.TicketID); err != nil {
			return decimal.Zero, err
		}
		var slot models.TicketSlotPrice
		err := d.Bun.NewSelect().
			Model(&slot).
			Where("ticket_id = ?", r.TicketID).
			Where("slot_id = ?", r.SlotID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: ticket %d slot %d", ErrItemNotFound, r.TicketID, r.SlotID)
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("get slot price: %w", err)
		}
		return slot.Price, nil
	case models.AddonRef:
		return d.priceOf(ctx, (*models.Addon)(nil), eventID, r.AddonID)
	case models.PackageRef:
		return d.priceOf(ctx, (*models.Package)(nil), eventID, r.PackageID)
	case models.AppointmentRef:
		return d.priceOf(ctx, (*models.Appointment)(nil), eventID, r.AppointmentID)
	default:
		return decimal.Zero, fmt.Errorf("%w: %T", models.ErrUnknownItemKind, ref)
	}
}

func (d *DB) priceOf(ctx context.Context, model interface{}, eventID, id int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := d.Bun.NewSelect().
		Model(model).
		Column("price").
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: %T %d", ErrItemNotFound, model, id)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get price: %w", err)
	}
	return price, nil
}
