package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/pkg/carrier/melhorenvio"
	"github.com/tournevent/fulfillment/pkg/catalog"
	"github.com/tournevent/fulfillment/pkg/finance"
)

func newTestDB(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.Open(storage.Options{
		Driver:       storage.DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := storage.Open(storage.Options{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpen_WithTracing(t *testing.T) {
	db, err := storage.Open(storage.Options{
		Driver:       storage.DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		AutoMigrate:  true,
		Tracing:      true,
	})
	require.NoError(t, err)
	defer db.Close()

	_, err = storage.NewFinancialRepository(db.DB).GetFinancialConfig(context.Background())
	assert.ErrorIs(t, err, finance.ErrNotFound)
}

func TestDatabase_Ping(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Ping())
}

func TestTokenRepository(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewTokenRepository(newTestDB(t).DB)

	_, err := repo.GetToken(ctx, "sandbox")
	assert.ErrorIs(t, err, melhorenvio.ErrTokenNotFound)

	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveToken(ctx, &melhorenvio.Token{
		Environment:  "sandbox",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Scope:        "shipping-calculate",
		ExpiresAt:    expires,
		UpdatedAt:    expires.Add(-time.Hour),
	}))

	tok, err := repo.GetToken(ctx, "sandbox")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.True(t, tok.ExpiresAt.Equal(expires))

	// Second save replaces the row for the same environment.
	require.NoError(t, repo.SaveToken(ctx, &melhorenvio.Token{
		Environment:  "sandbox",
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		ExpiresAt:    expires.Add(24 * time.Hour),
		UpdatedAt:    expires,
	}))
	tok, err = repo.GetToken(ctx, "sandbox")
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok.AccessToken)
	assert.Equal(t, "refresh-2", tok.RefreshToken)

	_, err = repo.GetToken(ctx, "production")
	assert.ErrorIs(t, err, melhorenvio.ErrTokenNotFound)
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewProductRepository(newTestDB(t).DB)

	_, err := repo.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	for _, p := range []catalog.Product{
		{ID: "p1", Name: "Camiseta Azul", SKU: "TSH-01", Stock: 5, Price: decimal.RequireFromString("59.90"), Images: []string{"a.jpg", "b.jpg"}, WeightKg: 0.2},
		{ID: "p2", Name: "Boné", SKU: "CAP-01", Stock: 1, Price: decimal.RequireFromString("35")},
		{ID: "p3", Name: "Camiseta Preta", SKU: "TSH-02", Stock: 0, Price: decimal.RequireFromString("59.90")},
	} {
		require.NoError(t, repo.SaveProduct(ctx, &p))
	}

	p, err := repo.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Camiseta Azul", p.Name)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, p.Images)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("59.90")))
	assert.InDelta(t, 0.2, p.WeightKg, 1e-9)

	list, err := repo.ListProducts(ctx, catalog.Filter{Search: "camiseta"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p1", list[0].ID)
	assert.Equal(t, "p3", list[1].ID)

	list, err = repo.ListProducts(ctx, catalog.Filter{Search: "cap-01"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p2", list[0].ID)
	assert.NotNil(t, list[0].Images)

	list, err = repo.ListProducts(ctx, catalog.Filter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = repo.ListProducts(ctx, catalog.Filter{Search: "nothing"})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	p.Stock = 9
	require.NoError(t, repo.SaveProduct(ctx, p))
	p, err = repo.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 9, p.Stock)
}

func TestFinancialRepository(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewFinancialRepository(newTestDB(t).DB)

	_, err := repo.GetFinancialConfig(ctx)
	assert.ErrorIs(t, err, finance.ErrNotFound)

	cfg := finance.Defaults()
	cfg.FreeShippingThreshold = decimal.NewFromInt(300)
	cfg.Costs.PackagingCost = decimal.RequireFromString("2.50")
	cfg.UpdatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveFinancialConfig(ctx, &cfg))

	got, err := repo.GetFinancialConfig(ctx)
	require.NoError(t, err)
	assert.True(t, got.FreeShippingThreshold.Equal(decimal.NewFromInt(300)))
	assert.True(t, got.Costs.PackagingCost.Equal(decimal.RequireFromString("2.50")))
	assert.Equal(t, cfg.MaxInstallments, got.MaxInstallments)

	cfg.MaxInstallments = 12
	require.NoError(t, repo.SaveFinancialConfig(ctx, &cfg))
	got, err = repo.GetFinancialConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, got.MaxInstallments)
}
