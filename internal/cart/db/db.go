package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-fulfillment/internal/models"
)

var ErrLineNotFound = errors.New("cart line not found")

type DB struct {
	Bun *bun.DB
}

// DistinctEventIDs returns every event the user's cart currently holds lines for.
func (d *DB) DistinctEventIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := d.Bun.NewSelect().
		Model((*models.CartLine)(nil)).
		ColumnExpr("DISTINCT event_id").
		Where("user_id = ?", userID).
		OrderExpr("event_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list cart events: %w", err)
	}
	return ids, nil
}

func (d *DB) ListLines(ctx context.Context, userID, eventID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := d.Bun.NewSelect().
		Model(&lines).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	return lines, nil
}

func (d *DB) GetLine(ctx context.Context, userID, lineID int64) (*models.CartLine, error) {
	var line models.CartLine
	err := d.Bun.NewSelect().
		Model(&line).
		Where("id = ?", lineID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart line %d: %w", lineID, err)
	}
	return &line, nil
}

// FindLine returns the existing line for the same purchasable thing, if any.
func (d *DB) FindLine(ctx context.Context, userID, eventID int64, ref models.ItemRef) (*models.CartLine, error) {
	kind, refID, slotID := models.RefColumns(ref)

	var line models.CartLine
	q := d.Bun.NewSelect().
		Model(&line).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Where("item_kind = ?", kind).
		Where("item_ref_id = ?", *refID)
	if slotID == nil {
		q = q.Where("slot_ref_id IS NULL")
	} else {
		q = q.Where("slot_ref_id = ?", *slotID)
	}
	err := q.Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find cart line: %w", err)
	}
	return &line, nil
}

func (d *DB) InsertLine(ctx context.Context, line *models.CartLine) error {
	_, err := d.Bun.NewInsert().
		Model(line).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert cart line: %w", err)
	}
	return nil
}

func (d *DB) UpdateQuantity(ctx context.Context, lineID int64, quantity int) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.CartLine)(nil)).
		Set("quantity = ?", quantity).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", lineID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update cart line %d: %w", lineID, err)
	}
	return nil
}

func (d *DB) DeleteLine(ctx context.Context, userID, lineID int64) error {
	res, err := d.Bun.NewDelete().
		Model((*models.CartLine)(nil)).
		Where("id = ?", lineID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete cart line %d: %w", lineID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLineNotFound
	}
	return nil
}

// DeleteByEvent clears the user's lines for one event and returns how many were removed.
func (d *DB) DeleteByEvent(ctx context.Context, userID, eventID int64) (int64, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.CartLine)(nil)).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear cart for event %d: %w", eventID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (d *DB) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.CartLine)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
