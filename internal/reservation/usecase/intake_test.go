package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/apperror"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/usecase"
)

func TestSubmit_ValidatesShape(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(4)
	intake := usecase.NewIntakeUsecase(store, cache, bus, time.Second, noopLogger{})

	tests := []struct {
		name string
		req  usecase.SubmitRequest
	}{
		{"missing user", usecase.SubmitRequest{SKU: "sku-1", Qty: 1, IdempotencyKey: "k1"}},
		{"missing sku", usecase.SubmitRequest{UserID: "u1", Qty: 1, IdempotencyKey: "k1"}},
		{"missing idempotency key", usecase.SubmitRequest{UserID: "u1", SKU: "sku-1", Qty: 1}},
		{"qty not one", usecase.SubmitRequest{UserID: "u1", SKU: "sku-1", Qty: 2, IdempotencyKey: "k1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := intake.Submit(context.Background(), tt.req)
			var appErr *apperror.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperror.CodeInvalidRequest, appErr.Code)
		})
	}
}

func TestSubmit_ShortCircuitsOnCachedRejection(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(4)
	require.NoError(t, cache.SetRejection(context.Background(), "dup-key", "out of stock"))

	intake := usecase.NewIntakeUsecase(store, cache, bus, time.Second, noopLogger{})

	_, err := intake.Submit(context.Background(), usecase.SubmitRequest{
		UserID: "u1", SKU: "sku-1", Qty: 1, IdempotencyKey: "dup-key",
	})

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeDuplicateRequest, appErr.Code)
}

func TestSubmit_ShortCircuitsOnActiveReservation(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(4)
	require.NoError(t, cache.SetActiveReservation(context.Background(), "u1", "sku-1", 600))

	intake := usecase.NewIntakeUsecase(store, cache, bus, time.Second, noopLogger{})

	_, err := intake.Submit(context.Background(), usecase.SubmitRequest{
		UserID: "u1", SKU: "sku-1", Qty: 1, IdempotencyKey: "k1",
	})

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeUserHasActiveReservation, appErr.Code)
}

func TestSubmit_ReturnsExistingOnResubmitSameIdempotencyKey(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(4)
	require.NoError(t, store.CreateInventory(context.Background(), &entity.Inventory{SKU: "sku-1", TotalCount: 5}))

	existing := &entity.Reservation{ID: "r1", SKU: "sku-1", UserID: "u1", IdempotencyKey: "same-key"}
	store.reservations["r1"] = existing
	store.byIdempotency["same-key"] = existing

	intake := usecase.NewIntakeUsecase(store, cache, bus, time.Second, noopLogger{})

	got, err := intake.Submit(context.Background(), usecase.SubmitRequest{
		UserID: "u1", SKU: "sku-1", Qty: 1, IdempotencyKey: "same-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
}

func TestSubmit_TimesOutWhenAllocatorNeverResolves(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(4)
	require.NoError(t, store.CreateInventory(context.Background(), &entity.Inventory{SKU: "sku-1", TotalCount: 5}))

	intake := usecase.NewIntakeUsecase(store, cache, bus, 30*time.Millisecond, noopLogger{})

	_, err := intake.Submit(context.Background(), usecase.SubmitRequest{
		UserID: "u1", SKU: "sku-1", Qty: 1, IdempotencyKey: "never-resolved",
	})

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeTemporarilyUnavailable, appErr.Code)
}

func TestSubmit_ResolvesOnceAllocatorAnswers(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(4)
	require.NoError(t, store.CreateInventory(context.Background(), &entity.Inventory{SKU: "sku-1", TotalCount: 5}))

	intake := usecase.NewIntakeUsecase(store, cache, bus, time.Second, noopLogger{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		intake.Resolve("resolved-key", usecase.Outcome{
			Reservation: &entity.Reservation{ID: "r-async", SKU: "sku-1", UserID: "u1", IdempotencyKey: "resolved-key"},
		})
	}()

	got, err := intake.Submit(context.Background(), usecase.SubmitRequest{
		UserID: "u1", SKU: "sku-1", Qty: 1, IdempotencyKey: "resolved-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "r-async", got.ID)
}
