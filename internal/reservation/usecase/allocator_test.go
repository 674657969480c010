package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/service"
	"github.com/flashsale/reservation-engine/internal/reservation/usecase"
)

type resolveCapture struct {
	outcomes map[string]usecase.Outcome
}

func newResolveCapture() *resolveCapture {
	return &resolveCapture{outcomes: make(map[string]usecase.Outcome)}
}

func (r *resolveCapture) Resolve(idempotencyKey string, outcome usecase.Outcome) {
	r.outcomes[idempotencyKey] = outcome
}

func newAllocator(t *testing.T, store *fakeStore, cache *fakeCache, bus *fakeBus, events *fakeEvents, notifier *resolveCapture) usecase.AllocatorUsecase {
	t.Helper()
	return usecase.NewAllocatorUsecase(store, cache, bus, events, notifier, usecase.AllocatorConfig{
		BatchSize: 10, BatchMaxWaitMillis: 50, HoldDurationSeconds: 600, MaxApplyRetries: 2,
	}, noopLogger{})
}

// TestProcessBatch_AdmitsWithinCapacity exercises I1: when the batch fits
// inside available stock, every request is admitted and the reserved
// count never exceeds total_count.
func TestProcessBatch_AdmitsWithinCapacity(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(1)
	events := newFakeEvents()
	notifier := newResolveCapture()

	require.NoError(t, store.CreateInventory(context.Background(), &entity.Inventory{SKU: "sku-1", TotalCount: 3}))

	allocator := newAllocator(t, store, cache, bus, events, notifier)

	batch := []service.BusMessage{
		{Request: service.RequestMessage{SKU: "sku-1", UserID: "u1", IdempotencyKey: "k1"}},
		{Request: service.RequestMessage{SKU: "sku-1", UserID: "u2", IdempotencyKey: "k2"}},
	}

	err := allocator.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)

	assert.Len(t, notifier.outcomes, 2)
	for _, key := range []string{"k1", "k2"} {
		outcome := notifier.outcomes[key]
		require.NotNil(t, outcome.Reservation)
		assert.Nil(t, outcome.Err)
	}

	inv, err := store.GetInventory(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, inv.ReservedCount+inv.SoldCount, inv.TotalCount)
	assert.Equal(t, 2, inv.ReservedCount)
}

// TestProcessBatch_PartialAdmitWhenOverCapacity exercises the two-phase
// retry: K'=min(K,available) requests admitted in arrival order, the rest
// rejected as out of stock, never oversold.
func TestProcessBatch_PartialAdmitWhenOverCapacity(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(1)
	events := newFakeEvents()
	notifier := newResolveCapture()

	require.NoError(t, store.CreateInventory(context.Background(), &entity.Inventory{SKU: "sku-1", TotalCount: 1}))

	allocator := newAllocator(t, store, cache, bus, events, notifier)

	batch := []service.BusMessage{
		{Request: service.RequestMessage{SKU: "sku-1", UserID: "u1", IdempotencyKey: "k1"}},
		{Request: service.RequestMessage{SKU: "sku-1", UserID: "u2", IdempotencyKey: "k2"}},
	}

	err := allocator.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)

	admitted := 0
	rejected := 0
	for _, key := range []string{"k1", "k2"} {
		outcome := notifier.outcomes[key]
		if outcome.Err == nil {
			admitted++
		} else {
			rejected++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, rejected)

	// Arrival order: k1 was first, so it must be the one admitted.
	assert.NotNil(t, notifier.outcomes["k1"].Reservation)
	assert.NotNil(t, notifier.outcomes["k2"].Err)

	inv, err := store.GetInventory(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inv.ReservedCount)
	assert.LessOrEqual(t, inv.ReservedCount+inv.SoldCount, inv.TotalCount)
}

// TestProcessBatch_ResubmissionResolvesToOriginal exercises R2: a request
// whose idempotency key already has a durable reservation is resolved to
// that row instead of re-entering allocation.
func TestProcessBatch_ResubmissionResolvesToOriginal(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(1)
	events := newFakeEvents()
	notifier := newResolveCapture()

	require.NoError(t, store.CreateInventory(context.Background(), &entity.Inventory{SKU: "sku-1", TotalCount: 5}))
	existing := &entity.Reservation{ID: "r1", SKU: "sku-1", UserID: "u1", IdempotencyKey: "dup"}
	store.reservations["r1"] = existing
	store.byIdempotency["dup"] = existing

	allocator := newAllocator(t, store, cache, bus, events, notifier)

	batch := []service.BusMessage{
		{Request: service.RequestMessage{SKU: "sku-1", UserID: "u1", IdempotencyKey: "dup"}},
	}

	err := allocator.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)

	outcome := notifier.outcomes["dup"]
	require.NotNil(t, outcome.Reservation)
	assert.Equal(t, "r1", outcome.Reservation.ID)

	inv, err := store.GetInventory(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 0, inv.ReservedCount, "resubmission must not consume a second unit")
}

// TestProcessBatch_DedupsSameIdempotencyKeyWithinOneBatch covers a retried
// submission landing twice in the same pulled batch before either copy is
// persisted: it must consume at most one unit and both occurrences must
// resolve to the same reservation, not be treated as two distinct requests.
func TestProcessBatch_DedupsSameIdempotencyKeyWithinOneBatch(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(1)
	events := newFakeEvents()
	notifier := newResolveCapture()

	require.NoError(t, store.CreateInventory(context.Background(), &entity.Inventory{SKU: "sku-1", TotalCount: 1}))

	allocator := newAllocator(t, store, cache, bus, events, notifier)

	batch := []service.BusMessage{
		{Request: service.RequestMessage{SKU: "sku-1", UserID: "u1", IdempotencyKey: "k1"}},
		{Request: service.RequestMessage{SKU: "sku-1", UserID: "u1", IdempotencyKey: "k1"}},
	}

	err := allocator.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, notifier.outcomes, 1)
	outcome := notifier.outcomes["k1"]
	require.NotNil(t, outcome.Reservation)

	inv, err := store.GetInventory(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inv.ReservedCount, "a duplicate occurrence of the same idempotency key must not consume a second unit")
}

// TestProcessBatch_RejectsAlreadyPurchased exercises R1's purchased side:
// a user who already holds a CONFIRMED reservation for this sku is
// rejected before touching AllocateBatch at all.
func TestProcessBatch_RejectsAlreadyPurchased(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	bus := newFakeBus(1)
	events := newFakeEvents()
	notifier := newResolveCapture()

	require.NoError(t, store.CreateInventory(context.Background(), &entity.Inventory{SKU: "sku-1", TotalCount: 5}))
	store.purchasedByUser[activeKey("u1", "sku-1")] = true

	allocator := newAllocator(t, store, cache, bus, events, notifier)

	batch := []service.BusMessage{
		{Request: service.RequestMessage{SKU: "sku-1", UserID: "u1", IdempotencyKey: "k1"}},
	}

	err := allocator.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)

	outcome := notifier.outcomes["k1"]
	require.NotNil(t, outcome.Err)

	inv, err := store.GetInventory(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 0, inv.ReservedCount)
}
