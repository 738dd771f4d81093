package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-fulfillment/internal/database/testdb"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/order/db"
)

func newOrder(ref string) *models.Order {
	return &models.Order{
		OrderUID:         "ORD-20250101-" + ref,
		UserID:           testdb.UserID,
		EventID:          testdb.EventID,
		PaymentReference: ref,
		PaymentMethod:    "Online",
		Status:           models.OrderStatusFulfilled,
		SubTotal:         decimal.RequireFromString("45.25"),
		TaxTotal:         decimal.Zero,
		DiscountAmount:   decimal.Zero,
		GrandTotal:       decimal.RequireFromString("45.25"),
		Currency:         "EUR",
	}
}

func lines() []models.LineItem {
	return []models.LineItem{
		{Ref: models.TicketRef{TicketID: testdb.TicketID}, Quantity: 2, UnitPrice: decimal.RequireFromString("20.00")},
		{Ref: models.AddonRef{AddonID: testdb.AddonID}, Quantity: 1, UnitPrice: decimal.RequireFromString("5.25")},
	}
}

func countRows(t *testing.T, bunDB *bun.DB, model interface{}) int {
	n, err := bunDB.NewSelect().Model(model).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestCreateOrderWithItemsExpandsUnits(t *testing.T) {
	bunDB := testdb.New(t)
	d := &db.DB{Bun: bunDB}
	ctx := context.Background()

	order := newOrder("PAY1")
	require.NoError(t, d.CreateOrderWithItems(ctx, order, lines()))

	assert.NotZero(t, order.ID)
	require.Len(t, order.Items, 3)
	for _, item := range order.Items {
		assert.NotZero(t, item.ID)
		assert.Equal(t, order.ID, item.OrderID)
		assert.Equal(t, models.OrderItemActive, item.Status)
	}
	assert.Equal(t, models.ItemKindAddon, order.Items[2].ItemKind)

	got, err := d.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	assert.True(t, got.GrandTotal.Equal(decimal.RequireFromString("45.25")))
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("20")))

	n, err := d.CountOrderItems(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCreateOrderRejectsDuplicatePaymentReference(t *testing.T) {
	bunDB := testdb.New(t)
	d := &db.DB{Bun: bunDB}
	ctx := context.Background()

	first := newOrder("PAY-DUP")
	require.NoError(t, d.CreateOrderWithItems(ctx, first, lines()))

	second := newOrder("PAY-DUP")
	second.OrderUID = "ORD-20250101-OTHER1"
	err := d.CreateOrderWithItems(ctx, second, lines())
	assert.ErrorIs(t, err, db.ErrDuplicatePayment)
	assert.Zero(t, second.ID)

	assert.Equal(t, 1, countRows(t, bunDB, (*models.Order)(nil)))
	assert.Equal(t, 3, countRows(t, bunDB, (*models.OrderItem)(nil)))

	byRef, err := d.GetOrderByPaymentReference(ctx, "PAY-DUP")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byRef.ID)
}

func TestOrdersWithoutReferenceDoNotCollide(t *testing.T) {
	bunDB := testdb.New(t)
	d := &db.DB{Bun: bunDB}
	ctx := context.Background()

	a := newOrder("")
	a.OrderUID = "ORD-20250101-NOREF1"
	b := newOrder("")
	b.OrderUID = "ORD-20250101-NOREF2"
	require.NoError(t, d.CreateOrderWithItems(ctx, a, lines()))
	require.NoError(t, d.CreateOrderWithItems(ctx, b, lines()))
	assert.Equal(t, 2, countRows(t, bunDB, (*models.Order)(nil)))
}

func TestCreateOrderIsAtomic(t *testing.T) {
	bunDB := testdb.New(t)
	d := &db.DB{Bun: bunDB}
	ctx := context.Background()

	// the fourth unit insert fails
	_, err := bunDB.ExecContext(ctx, `
CREATE TRIGGER fail_fourth_item BEFORE INSERT ON order_items
WHEN (SELECT COUNT(*) FROM order_items) >= 3
BEGIN
	SELECT RAISE(ABORT, 'injected item failure');
END`)
	require.NoError(t, err)

	order := newOrder("PAY-ATOMIC")
	err = d.CreateOrderWithItems(ctx, order, []models.LineItem{
		{Ref: models.TicketRef{TicketID: testdb.TicketID}, Quantity: 5, UnitPrice: decimal.RequireFromString("20.00")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "injected item failure")
	assert.Empty(t, order.Items)

	assert.Equal(t, 0, countRows(t, bunDB, (*models.Order)(nil)))
	assert.Equal(t, 0, countRows(t, bunDB, (*models.OrderItem)(nil)))

	_, err = d.GetOrderByPaymentReference(ctx, "PAY-ATOMIC")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestCreateOrderCountsDiscountUsage(t *testing.T) {
	bunDB := testdb.New(t)
	d := &db.DB{Bun: bunDB}
	ctx := context.Background()

	disc := &models.Discount{
		Code: "SUMMER10", Type: models.PERCENTAGE, Active: true,
		ActiveFrom: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour),
	}
	_, err := bunDB.NewInsert().Model(disc).Exec(ctx)
	require.NoError(t, err)

	order := newOrder("PAY-DISC")
	order.DiscountCode = "SUMMER10"
	require.NoError(t, d.CreateOrderWithItems(ctx, order, lines()))

	var usage int
	require.NoError(t, bunDB.NewSelect().Model((*models.Discount)(nil)).Column("current_usage").
		Where("code = ?", "SUMMER10").Scan(ctx, &usage))
	assert.Equal(t, 1, usage)
}

func TestCreateOrderStopsAtDiscountLimit(t *testing.T) {
	bunDB := testdb.New(t)
	d := &db.DB{Bun: bunDB}
	ctx := context.Background()

	_, err := bunDB.NewInsert().Model(&models.Discount{
		Code: "LAST2", Type: models.PERCENTAGE, Active: true, MaxUsage: 2,
		ActiveFrom: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour),
	}).Exec(ctx)
	require.NoError(t, err)

	for _, ref := range []string{"PAY-L1", "PAY-L2"} {
		o := newOrder(ref)
		o.DiscountCode = "LAST2"
		require.NoError(t, d.CreateOrderWithItems(ctx, o, lines()))
	}

	late := newOrder("PAY-L3")
	late.DiscountCode = "LAST2"
	err = d.CreateOrderWithItems(ctx, late, lines())
	require.ErrorIs(t, err, db.ErrDiscountExhausted)
	assert.Zero(t, late.ID)
	assert.Empty(t, late.Items)

	_, err = d.GetOrderByPaymentReference(ctx, "PAY-L3")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Equal(t, 2, countRows(t, bunDB, (*models.Order)(nil)))
	assert.Equal(t, 6, countRows(t, bunDB, (*models.OrderItem)(nil)), "the rejected order left no items")

	var usage int
	require.NoError(t, bunDB.NewSelect().Model((*models.Discount)(nil)).Column("current_usage").
		Where("code = ?", "LAST2").Scan(ctx, &usage))
	assert.Equal(t, 2, usage)
}

func TestCreateOrderIgnoresUnknownDiscountCode(t *testing.T) {
	bunDB := testdb.New(t)
	d := &db.DB{Bun: bunDB}

	o := newOrder("PAY-PARTNER")
	o.DiscountCode = "PARTNER-PROMO"
	require.NoError(t, d.CreateOrderWithItems(context.Background(), o, lines()))
	assert.NotZero(t, o.ID)
}

func TestListOrdersByUser(t *testing.T) {
	bunDB := testdb.New(t)
	d := &db.DB{Bun: bunDB}
	ctx := context.Background()

	require.NoError(t, d.CreateOrderWithItems(ctx, newOrder("PAY-A"), lines()))
	require.NoError(t, d.CreateOrderWithItems(ctx, newOrder("PAY-B"), lines()[:1]))

	orders, err := d.ListOrdersByUser(ctx, testdb.UserID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "PAY-B", orders[0].PaymentReference)
	assert.Len(t, orders[0].Items, 2)
	assert.Len(t, orders[1].Items, 3)

	none, err := d.ListOrdersByUser(ctx, testdb.OtherUserID)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = d.GetOrderByID(ctx, 999)
	assert.ErrorIs(t, err, db.ErrNotFound)
}
