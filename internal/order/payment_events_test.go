package order_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-fulfillment/internal/database/testdb"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/order"
)

func encode(t *testing.T, snap models.PaymentConfirmedEvent) []byte {
	t.Helper()
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	return b
}

func TestHandlePaymentConfirmed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	msg := encode(t, snapshot("pi_kafka"))

	require.NoError(t, f.svc.HandlePaymentConfirmed(ctx, msg))
	require.NoError(t, f.svc.HandlePaymentConfirmed(ctx, msg), "redelivery is acknowledged")
	f.svc.Wait()

	o, err := f.db.GetOrderByPaymentReference(ctx, "pi_kafka")
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, []int64{o.ID}, f.notifier.calls())
}

func TestHandlePaymentConfirmedDropsPoison(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bad := snapshot("pi_poison")
	bad.Breakdown.GrandTotal = money("99.00")
	missingEvent := snapshot("pi_orphan")
	missingEvent.EventID = 999
	noUser := snapshot("pi_anon")
	noUser.UserID = 0

	stolen := snapshot("pi_kafka_taken")
	stolen.UserID = testdb.OtherUserID
	require.NoError(t, f.svc.HandlePaymentConfirmed(ctx, encode(t, snapshot("pi_kafka_taken"))))
	f.svc.Wait()

	for name, value := range map[string][]byte{
		"reference owned by another user": encode(t, stolen),
		"not json":         []byte("{"),
		"fails validation": encode(t, noUser),
		"bad totals":       encode(t, bad),
		"unknown event":    encode(t, missingEvent),
	} {
		assert.NoError(t, f.svc.HandlePaymentConfirmed(ctx, value), name)
	}

	orders, err := f.svc.ListOrdersByUser(ctx, testdb.UserID)
	require.NoError(t, err)
	assert.Len(t, orders, 1, "only the legitimate order exists")
	orders, err = f.svc.ListOrdersByUser(ctx, testdb.OtherUserID)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestHandlePaymentConfirmedRedeliversConflicts(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.mr.Set(models.CartLockKey(testdb.UserID), "checkout-in-flight"))

	err := f.svc.HandlePaymentConfirmed(context.Background(), encode(t, snapshot("pi_later")))
	assertCode(t, err, order.CodeFulfillmentInProgress)

	f.mr.Del(models.CartLockKey(testdb.UserID))
	require.NoError(t, f.svc.HandlePaymentConfirmed(context.Background(), encode(t, snapshot("pi_later"))))
	f.svc.Wait()
}
