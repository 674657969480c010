package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/valueobject"
	"github.com/flashsale/reservation-engine/internal/reservation/usecase"
)

func TestSweepOnce_ExpiresLapsedHoldsAndReturnsStock(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	events := newFakeEvents()

	require.NoError(t, store.CreateInventory(context.Background(), &entity.Inventory{SKU: "sku-1", TotalCount: 5, ReservedCount: 2}))
	seedReserved(store, "lapsed", "sku-1", "u1", time.Now().Add(-time.Minute))
	seedReserved(store, "still-held", "sku-1", "u2", time.Now().Add(time.Hour))

	expiry := usecase.NewExpiryUsecase(store, cache, events, usecase.ExpiryConfig{
		SweepInterval: time.Hour, BatchSize: 10,
	}, noopLogger{})

	n, err := expiry.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lapsed, err := store.GetReservation(context.Background(), "lapsed")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ReservationStatusExpired, lapsed.Status)

	stillHeld, err := store.GetReservation(context.Background(), "still-held")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ReservationStatusReserved, stillHeld.Status)

	inv, err := store.GetInventory(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inv.ReservedCount)

	require.Len(t, events.expired, 1)
	assert.Equal(t, "lapsed", events.expired[0].ID)
}

func TestSweepOnce_NoLapsedHoldsIsANoop(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	events := newFakeEvents()
	require.NoError(t, store.CreateInventory(context.Background(), &entity.Inventory{SKU: "sku-1", TotalCount: 5}))
	seedReserved(store, "fresh", "sku-1", "u1", time.Now().Add(time.Hour))

	expiry := usecase.NewExpiryUsecase(store, cache, events, usecase.ExpiryConfig{SweepInterval: time.Hour, BatchSize: 10}, noopLogger{})

	n, err := expiry.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, events.expired)
}
