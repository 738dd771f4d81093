package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-fulfillment/internal/database/testdb"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/tickets/db"
)

func setupItems(t *testing.T, n int) (*db.DB, []models.OrderItem) {
	bunDB := testdb.New(t)
	ctx := context.Background()

	order := &models.Order{
		OrderUID: "ORD-20250101-AAAAAA", UserID: testdb.UserID, EventID: testdb.EventID,
		PaymentMethod: "Online", Status: models.OrderStatusFulfilled, Currency: "EUR",
		SubTotal: decimal.Zero, TaxTotal: decimal.Zero, DiscountAmount: decimal.Zero, GrandTotal: decimal.Zero,
	}
	_, err := bunDB.NewInsert().Model(order).Returning("id").Exec(ctx)
	require.NoError(t, err)

	ref := testdb.TicketID
	items := make([]models.OrderItem, n)
	for i := range items {
		items[i] = models.OrderItem{
			OrderID: order.ID, UserID: testdb.UserID, EventID: testdb.EventID,
			ItemKind: models.ItemKindTicket, ItemRefID: &ref,
			UnitPrice: decimal.RequireFromString("20.00"), Status: models.OrderItemActive,
		}
		_, err := bunDB.NewInsert().Model(&items[i]).Returning("id").Exec(ctx)
		require.NoError(t, err)
	}
	return &db.DB{Bun: bunDB}, items
}

func TestGetOrderItem(t *testing.T) {
	d, items := setupItems(t, 1)
	ctx := context.Background()

	got, err := d.GetOrderItem(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemKindTicket, got.ItemKind)
	assert.True(t, got.UnitPrice.Equal(decimal.RequireFromString("20.00")))
	assert.False(t, got.HasArtifact())

	_, err = d.GetOrderItem(ctx, 999)
	assert.ErrorIs(t, err, db.ErrItemNotFound)
}

func TestSaveArtifactClearsError(t *testing.T) {
	d, items := setupItems(t, 2)
	ctx := context.Background()

	require.NoError(t, d.RecordArtifactError(ctx, items[0].ID, "render failed"))
	pending, err := d.ListPendingArtifacts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "render failed", pending[0].ArtifactError)

	item := items[0]
	item.ArtifactPayload = `{"order_item_id":1}`
	item.ArtifactSecureHash = "abc"
	item.ArtifactImageRef = "tickets/7/1/1-x.png"
	item.IssuedAt = time.Now().UTC()
	require.NoError(t, d.SaveArtifact(ctx, &item))

	got, err := d.GetOrderItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.HasArtifact())
	assert.Empty(t, got.ArtifactError)
	assert.False(t, got.IssuedAt.IsZero())

	pending, err = d.ListPendingArtifacts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, items[1].ID, pending[0].ID)

	assert.ErrorIs(t, d.RecordArtifactError(ctx, 999, "x"), db.ErrItemNotFound)
}

func TestMarkCheckedInOnce(t *testing.T) {
	d, items := setupItems(t, 1)
	ctx := context.Background()

	first, err := d.MarkCheckedIn(ctx, items[0].ID, time.Now())
	require.NoError(t, err)
	assert.True(t, first)

	second, err := d.MarkCheckedIn(ctx, items[0].ID, time.Now())
	require.NoError(t, err)
	assert.False(t, second)
}

func TestCancelItem(t *testing.T) {
	d, items := setupItems(t, 3)
	ctx := context.Background()

	require.NoError(t, d.CancelItem(ctx, items[1].ID))
	assert.ErrorIs(t, d.CancelItem(ctx, 999), db.ErrItemNotFound)

	listed, err := d.ListItemsByOrder(ctx, items[0].OrderID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, models.OrderItemCancelled, listed[1].Status)

	admitted, err := d.MarkCheckedIn(ctx, items[1].ID, time.Now())
	require.NoError(t, err)
	assert.False(t, admitted, "cancelled items are never admitted")

	pending, err := d.ListPendingArtifacts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
