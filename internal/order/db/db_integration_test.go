package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-fulfillment/internal/database/migrations"
	"ms-fulfillment/internal/database/testdb"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/order/db"
)

// TestDuplicatePaymentAgainstPostgres migrates a postgres container and checks
// that both drivers report a reused payment reference as ErrDuplicatePayment.
// Skipped with -short.
func TestDuplicatePaymentAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ticketing",
				"POSTGRES_PASSWORD": "ticketing",
				"POSTGRES_DB":       "ticketing",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://ticketing:ticketing@%s:%s/ticketing?sslmode=disable", host, port.Port())

	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	pqDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { pqDB.Close() })

	runner := migrations.NewRunner(pqDB, logger.New(io.Discard))
	require.NoError(t, runner.Up())
	v, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	testdb.Seed(t, pqDB)
	// seeded rows carry explicit ids; move the sequences past them
	for _, table := range []string{"users", "events", "tickets", "addons", "packages", "appointments"} {
		_, err := pqDB.ExecContext(ctx, fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), 1000)", table))
		require.NoError(t, err)
	}

	pgDB := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New())
	t.Cleanup(func() { pgDB.Close() })

	for name, bunDB := range map[string]*bun.DB{"lib/pq": pqDB, "pgdriver": pgDB} {
		t.Run(name, func(t *testing.T) {
			d := &db.DB{Bun: bunDB}
			ref := "pi_pg_" + name

			first := newOrder(ref)
			first.OrderUID = "ORD-PG-A-" + name
			require.NoError(t, d.CreateOrderWithItems(ctx, first, lines()))

			second := newOrder(ref)
			second.OrderUID = "ORD-PG-B-" + name
			err := d.CreateOrderWithItems(ctx, second, lines())
			assert.ErrorIs(t, err, db.ErrDuplicatePayment)

			got, err := d.GetOrderByPaymentReference(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, first.ID, got.ID)
			assert.Len(t, got.Items, 3)
		})
	}

	require.NoError(t, runner.Close())
}
