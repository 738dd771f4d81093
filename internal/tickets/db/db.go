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

var ErrItemNotFound = errors.New("order item not found")

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, error) {
	var item models.OrderItem
	err := d.Bun.NewSelect().
		Model(&item).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order item %d: %w", id, err)
	}
	return &item, nil
}

func (d *DB) ListItemsByOrder(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items for order %d: %w", orderID, err)
	}
	return items, nil
}

// SaveArtifact stores a successful issuance and clears any earlier error.
func (d *DB) SaveArtifact(ctx context.Context, item *models.OrderItem) error {
	res, err := d.Bun.NewUpdate().
		Model(item).
		Set("artifact_payload = ?", item.ArtifactPayload).
		Set("artifact_secure_hash = ?", item.ArtifactSecureHash).
		Set("artifact_image_ref = ?", item.ArtifactImageRef).
		Set("issued_at = ?", item.IssuedAt).
		Set("artifact_error = NULL").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save artifact for item %d: %w", item.ID, err)
	}
	return requireRow(res, item.ID)
}

func (d *DB) RecordArtifactError(ctx context.Context, itemID int64, msg string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.OrderItem)(nil)).
		Set("artifact_error = ?", msg).
		Where("id = ?", itemID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record artifact error for item %d: %w", itemID, err)
	}
	return requireRow(res, itemID)
}

// ListPendingArtifacts returns active items that still have no stored image.
func (d *DB) ListPendingArtifacts(ctx context.Context, limit int) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("status = ?", models.OrderItemActive).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("artifact_image_ref IS NULL").WhereOr("artifact_secure_hash IS NULL")
		}).
		OrderExpr("id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending artifacts: %w", err)
	}
	return items, nil
}

// MarkCheckedIn sets checked_in_at only if it is still empty. It reports
// whether this call was the one that admitted the item.
func (d *DB) MarkCheckedIn(ctx context.Context, itemID int64, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.OrderItem)(nil)).
		Set("checked_in_at = ?", at).
		Where("id = ?", itemID).
		Where("status = ?", models.OrderItemActive).
		Where("checked_in_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("check in item %d: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *DB) CancelItem(ctx context.Context, itemID int64) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.OrderItem)(nil)).
		Set("status = ?", models.OrderItemCancelled).
		Where("id = ?", itemID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cancel item %d: %w", itemID, err)
	}
	return requireRow(res, itemID)
}

func requireRow(res sql.Result, itemID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrItemNotFound, itemID)
	}
	return nil
}
