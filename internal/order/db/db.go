package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-fulfillment/internal/models"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrDuplicatePayment means another order already holds the payment reference.
	ErrDuplicatePayment = errors.New("payment reference already fulfilled")
	// ErrDiscountExhausted means the order's discount reached max_usage before commit.
	ErrDiscountExhausted = errors.New("discount usage limit reached")
)

type DB struct {
	Bun *bun.DB
}

// TxScope runs fn in one transaction. Returning an error rolls back everything fn wrote.
func (d *DB) TxScope(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, fn)
}

// CreateOrderWithItems inserts order and one order_items row per unit of every
// line, all or nothing. On success order.ID and order.Items are filled.
func (d *DB) CreateOrderWithItems(ctx context.Context, order *models.Order, lines []models.LineItem) error {
	var items []*models.OrderItem
	err := d.TxScope(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Returning("id").Exec(ctx); err != nil {
			if isUniqueViolation(err, "payment_reference") {
				return ErrDuplicatePayment
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, line := range lines {
			kind, refID, slotID := models.RefColumns(line.Ref)
			for u := 0; u < line.Quantity; u++ {
				item := &models.OrderItem{
					OrderID:   order.ID,
					UserID:    order.UserID,
					EventID:   order.EventID,
					ItemKind:  kind,
					ItemRefID: refID,
					SlotRefID: slotID,
					UnitPrice: models.RoundMoney(line.UnitPrice),
					Status:    models.OrderItemActive,
				}
				if _, err := tx.NewInsert().Model(item).Returning("id").Exec(ctx); err != nil {
					return fmt.Errorf("insert order item %d of %s: %w", u+1, kind, err)
				}
				items = append(items, item)
			}
		}

		if order.DiscountCode != "" {
			return countDiscountUsage(ctx, tx, order.DiscountCode)
		}
		return nil
	})
	if err != nil {
		order.ID = 0
		return err
	}
	order.Items = items
	return nil
}

// countDiscountUsage bumps current_usage only while it is below max_usage, so
// two checkouts that both read the last free slot cannot both commit. Codes
// that are not in the discounts table are not counted.
func countDiscountUsage(ctx context.Context, tx bun.Tx, code string) error {
	res, err := tx.NewUpdate().
		Model((*models.Discount)(nil)).
		Set("current_usage = current_usage + 1").
		Where("code = ?", code).
		Where("(max_usage = 0 OR current_usage < max_usage)").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("count discount usage: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}

	exists, err := tx.NewSelect().Model((*models.Discount)(nil)).Where("code = ?", code).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check discount %s: %w", code, err)
	}
	if exists {
		return ErrDiscountExhausted
	}
	return nil
}

func (d *DB) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return d.getOrder(ctx, "o.id = ?", id)
}

func (d *DB) GetOrderByPaymentReference(ctx context.Context, ref string) (*models.Order, error) {
	return d.getOrder(ctx, "o.payment_reference = ?", ref)
}

func (d *DB) getOrder(ctx context.Context, where string, arg interface{}) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Relation("Items", orderItemsByID).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &order, nil
}

// ListOrdersByUser returns the user's orders, newest first, with their items.
func (d *DB) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Relation("Items", orderItemsByID).
		Where("o.user_id = ?", userID).
		OrderExpr("o.created_at DESC, o.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders for user %d: %w", userID, err)
	}
	return orders, nil
}

func (d *DB) CountOrderItems(ctx context.Context, orderID int64) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.OrderItem)(nil)).
		Where("order_id = ?", orderID).
		Count(ctx)
}

func orderItemsByID(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("oi.id ASC")
}

// isUniqueViolation recognises unique-constraint failures from lib/pq, bun's pgdriver and SQLite.
func isUniqueViolation(err error, column string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && (strings.Contains(pqErr.Constraint, column) || strings.Contains(pqErr.Detail, column))
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		// 'C' is the SQLSTATE, 'n' the constraint name.
		return pgErr.Field('C') == "23505" && (strings.Contains(pgErr.Field('n'), column) || strings.Contains(pgErr.Field('D'), column))
	}
	msg := err.Error()
	return (strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")) &&
		strings.Contains(msg, column)
}
