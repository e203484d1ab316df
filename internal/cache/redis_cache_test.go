package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazar/backend/internal/domain"
)

func newTestCache(t *testing.T) (*RedisDashboardCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisDashboardCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()))
	return c, mr
}

func TestRedisDashboardCacheRoundTripAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, DashboardKey)
	require.NoError(t, err)
	assert.False(t, ok)

	summary := &domain.DashboardSummary{
		Products:          12,
		LowStockProducts:  3,
		TotalSales:        decimal.RequireFromString("214200.50"),
		OutstandingAmount: decimal.RequireFromString("1000"),
		GeneratedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.Set(ctx, DashboardKey, summary, 30*time.Second))

	got, ok, err := c.Get(ctx, DashboardKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, got.Products)
	assert.True(t, got.TotalSales.Equal(summary.TotalSales))
	assert.True(t, got.GeneratedAt.Equal(summary.GeneratedAt))

	mr.FastForward(31 * time.Second)
	_, ok, err = c.Get(ctx, DashboardKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisDashboardCacheDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, DashboardKey, &domain.DashboardSummary{Clients: 1}, time.Minute))
	require.NoError(t, c.Delete(ctx, DashboardKey))
	_, ok, err := c.Get(ctx, DashboardKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopDashboardCacheNeverHits(t *testing.T) {
	var c DashboardCache = NoopDashboardCache{}
	require.NoError(t, c.Set(context.Background(), DashboardKey, &domain.DashboardSummary{}, time.Minute))
	_, ok, err := c.Get(context.Background(), DashboardKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
