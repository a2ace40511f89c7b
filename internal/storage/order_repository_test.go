package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/pkg/orders"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var base = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newOrder(userID string, status orders.Status, createdAt time.Time) *orders.Order {
	return &orders.Order{
		ID:     uuid.NewString(),
		Number: "ORD-" + uuid.NewString()[:8],
		Status: status,
		Total:  decimal.RequireFromString("119.80"),
		Items: []orders.Item{
			{ProductID: "p1", Name: "Camiseta", Quantity: 2, UnitPrice: decimal.RequireFromString("49.90")},
			{ProductID: "p2", Name: "Boné", Quantity: 1, UnitPrice: decimal.RequireFromString("20")},
		},
		Customer:        orders.Customer{UserID: userID, Name: "Ana", Email: "ana@example.com"},
		ShippingAddress: orders.Address{Street: "Praça da Sé", Number: "1", District: "Sé", City: "São Paulo", State: "SP", PostalCode: "01001000"},
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewOrderRepository(newTestDB(t).DB)

	o := newOrder("u1", orders.StatusPending, base)
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.True(t, got.Total.Equal(o.Total))
	assert.Equal(t, o.Customer, got.Customer)
	assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "p1", got.Items[0].ProductID)
	assert.Equal(t, "p2", got.Items[1].ProductID)
	assert.Nil(t, got.PaidAt)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestOrderRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewOrderRepository(newTestDB(t).DB)

	older := newOrder("u1", orders.StatusShipped, base.Add(-2*time.Hour))
	newer := newOrder("u1", orders.StatusPending, base.Add(-time.Hour))
	other := newOrder("u2", orders.StatusShipped, base)
	for _, o := range []*orders.Order{older, newer, other} {
		require.NoError(t, repo.Create(ctx, o))
	}

	all, err := repo.List(ctx, orders.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[0].ID)
	assert.Equal(t, older.ID, all[2].ID)

	mine, err := repo.List(ctx, orders.ListFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Len(t, mine[0].Items, 2)

	shipped, err := repo.List(ctx, orders.ListFilter{Statuses: []orders.Status{orders.StatusShipped}})
	require.NoError(t, err)
	assert.Len(t, shipped, 2)

	page, err := repo.List(ctx, orders.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, newer.ID, page[0].ID)

	none, err := repo.List(ctx, orders.ListFilter{UserID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestOrderRepository_UpdateStatusCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewOrderRepository(newTestDB(t).DB)

	o := newOrder("u1", orders.StatusProcessing, base)
	require.NoError(t, repo.Create(ctx, o))

	shippedAt := base.Add(time.Hour)
	code := "BR123"
	ok, err := repo.UpdateStatus(ctx, o.ID, orders.StatusProcessing, orders.StatusUpdate{
		To:           orders.StatusShipped,
		UpdatedAt:    shippedAt,
		ShippedAt:    &shippedAt,
		TrackingCode: &code,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)
	assert.Equal(t, "BR123", got.TrackingCode)
	require.NotNil(t, got.ShippedAt)
	assert.True(t, got.ShippedAt.Equal(shippedAt))

	// Stale source status changes nothing.
	ok, err = repo.UpdateStatus(ctx, o.ID, orders.StatusProcessing, orders.StatusUpdate{
		To:        orders.StatusCancelled,
		UpdatedAt: shippedAt,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)

	ok, err = repo.UpdateStatus(ctx, "missing", orders.StatusPending, orders.StatusUpdate{To: orders.StatusConfirmed, UpdatedAt: base})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderRepository_ExpirePending(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewOrderRepository(newTestDB(t).DB)

	stale := newOrder("u1", orders.StatusPending, base.Add(-time.Hour))
	fresh := newOrder("u1", orders.StatusPending, base.Add(-time.Minute))
	quote := newOrder("u1", orders.StatusQuote, base.Add(-time.Hour))
	for _, o := range []*orders.Order{stale, fresh, quote} {
		require.NoError(t, repo.Create(ctx, o))
	}

	cutoff := base.Add(-orders.PendingTTL)
	n, err := repo.ExpirePending(ctx, cutoff, base)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.True(t, got.UpdatedAt.Equal(base))

	got, err = repo.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)

	got, err = repo.Get(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusQuote, got.Status)

	n, err = repo.ExpirePending(ctx, cutoff, base)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOrderRepository_ExpirePendingSingleStatement(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE "orders" SET "status"=\$1,"updated_at"=\$2 WHERE status = \$3 AND created_at < \$4`).
		WithArgs("CANCELLED", base, "PENDING", base.Add(-orders.PendingTTL)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := storage.NewOrderRepository(db).ExpirePending(context.Background(), base.Add(-orders.PendingTTL), base)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
