package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-fulfillment/internal/catalog"
	"ms-fulfillment/internal/database/testdb"
	"ms-fulfillment/internal/models"
)

func setupCatalog(t *testing.T) *catalog.DB {
	bunDB := testdb.New(t)
	testdb.Seed(t, bunDB)
	return &catalog.DB{Bun: bunDB}
}

func TestGetEvent(t *testing.T) {
	db := setupCatalog(t)

	event, err := db.GetEvent(context.Background(), testdb.EventID)
	require.NoError(t, err)
	assert.Equal(t, "Summer Fest", event.Name)
	assert.Equal(t, "EUR", event.Currency)

	_, err = db.GetEvent(context.Background(), 999)
	assert.ErrorIs(t, err, catalog.ErrEventNotFound)
}

func TestGetUser(t *testing.T) {
	db := setupCatalog(t)

	user, err := db.GetUser(context.Background(), testdb.UserID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = db.GetUser(context.Background(), 999)
	assert.ErrorIs(t, err, catalog.ErrUserNotFound)
}

func TestUnitPrice(t *testing.T) {
	db := setupCatalog(t)
	slot := testdb.SlotID

	tests := []struct {
		name string
		ref  models.ItemRef
		want string
	}{
		{"ticket", models.TicketRef{TicketID: testdb.TicketID}, "20"},
		{"priced slot", models.PricedSlotRef{TicketID: testdb.SlotTicketID, SlotID: testdb.SlotID}, "35.5"},
		{"addon", models.AddonRef{AddonID: testdb.AddonID}, "5.25"},
		{"package", models.PackageRef{PackageID: testdb.PackageID}, "99.99"},
		{"appointment", models.AppointmentRef{AppointmentID: testdb.AppointmentID, SlotID: &slot}, "15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := db.UnitPrice(context.Background(), testdb.EventID, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, price.String())
		})
	}
}

func TestUnitPriceRejectsItemsOfOtherEvents(t *testing.T) {
	db := setupCatalog(t)

	_, err := db.UnitPrice(context.Background(), testdb.EventID, models.TicketRef{TicketID: testdb.OtherTicketID})
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)

	_, err = db.UnitPrice(context.Background(), testdb.EventID, models.PricedSlotRef{TicketID: testdb.SlotTicketID, SlotID: 99})
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
}
