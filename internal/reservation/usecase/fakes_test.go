package usecase_test

import (
	"context"
	"sync"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/repository"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/service"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/valueobject"
	"github.com/flashsale/reservation-engine/pkg/logger"
)

// fakeStore is an in-memory stand-in for repository.Store good enough to
// exercise the usecases' branching without a real database.
type fakeStore struct {
	mu             sync.Mutex
	inventories    map[string]*entity.Inventory
	reservations   map[string]*entity.Reservation
	byIdempotency  map[string]*entity.Reservation
	activeByUser   map[string]bool
	purchasedByUser map[string]bool
	txns           []*entity.StockTransaction
	nextID         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		inventories:     make(map[string]*entity.Inventory),
		reservations:    make(map[string]*entity.Reservation),
		byIdempotency:   make(map[string]*entity.Reservation),
		activeByUser:    make(map[string]bool),
		purchasedByUser: make(map[string]bool),
	}
}

func activeKey(userID, sku string) string { return userID + "|" + sku }

func (f *fakeStore) GetInventory(ctx context.Context, sku string) (*entity.Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.inventories[sku]
	if !ok {
		return nil, errNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeStore) CreateInventory(ctx context.Context, inv *entity.Inventory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *inv
	f.inventories[inv.SKU] = &cp
	return nil
}

func (f *fakeStore) AllocateBatch(ctx context.Context, sku string, holdDurationSeconds int, requests []repository.AllocationRequest) ([]repository.AllocationOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inv, ok := f.inventories[sku]
	if !ok {
		return nil, errNotFound
	}

	available := inv.AvailableCount()
	admit := len(requests)
	if admit > available {
		admit = available
	}

	outcomes := make([]repository.AllocationOutcome, 0, len(requests))
	for i, req := range requests {
		if i < admit {
			f.nextID++
			r := &entity.Reservation{
				ID:             idFor(f.nextID),
				SKU:            req.SKU,
				UserID:         req.UserID,
				Qty:            1,
				Status:         valueobject.ReservationStatusReserved,
				IdempotencyKey: req.IdempotencyKey,
			}
			f.reservations[r.ID] = r
			f.byIdempotency[req.IdempotencyKey] = r
			f.activeByUser[activeKey(req.UserID, req.SKU)] = true
			inv.ReservedCount++
			outcomes = append(outcomes, repository.AllocationOutcome{Request: req, Reservation: r, Admitted: true})
		} else {
			outcomes = append(outcomes, repository.AllocationOutcome{Request: req, Admitted: false, RejectReason: "out of stock"})
		}
	}
	f.inventories[sku] = inv
	return outcomes, nil
}

func (f *fakeStore) GetReservation(ctx context.Context, id string) (*entity.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) GetReservationByIdempotencyKey(ctx context.Context, key string) (*entity.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byIdempotency[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) HasActiveReservation(ctx context.Context, userID, sku string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeByUser[activeKey(userID, sku)], nil
}

func (f *fakeStore) HasPurchased(ctx context.Context, userID, sku string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purchasedByUser[activeKey(userID, sku)], nil
}

func (f *fakeStore) Confirm(ctx context.Context, reservationID string, order *entity.Order) (*entity.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[reservationID]
	if !ok {
		return nil, errNotFound
	}
	if r.Status != valueobject.ReservationStatusReserved {
		cp := *r
		return &cp, nil
	}
	r.Status = valueobject.ReservationStatusConfirmed
	f.purchasedByUser[activeKey(r.UserID, r.SKU)] = true
	delete(f.activeByUser, activeKey(r.UserID, r.SKU))
	if inv, ok := f.inventories[r.SKU]; ok {
		inv.ReservedCount--
		inv.SoldCount++
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) Cancel(ctx context.Context, reservationID string) (*entity.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[reservationID]
	if !ok {
		return nil, errNotFound
	}
	if r.Status != valueobject.ReservationStatusReserved {
		cp := *r
		return &cp, nil
	}
	r.Status = valueobject.ReservationStatusCancelled
	delete(f.activeByUser, activeKey(r.UserID, r.SKU))
	if inv, ok := f.inventories[r.SKU]; ok {
		inv.ReservedCount--
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) SweepExpired(ctx context.Context, asOf int64, limit int) ([]*entity.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []*entity.Reservation
	for _, r := range f.reservations {
		if len(expired) >= limit {
			break
		}
		if r.Status != valueobject.ReservationStatusReserved {
			continue
		}
		if !r.ExpiresAt.IsZero() && r.ExpiresAt.Unix() > asOf {
			continue
		}
		r.Status = valueobject.ReservationStatusExpired
		delete(f.activeByUser, activeKey(r.UserID, r.SKU))
		if inv, ok := f.inventories[r.SKU]; ok {
			inv.ReservedCount--
		}
		cp := *r
		expired = append(expired, &cp)
	}
	return expired, nil
}

func (f *fakeStore) RecordStockTransaction(ctx context.Context, txn *entity.StockTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txns = append(f.txns, txn)
	return nil
}

func (f *fakeStore) GetStockTransactions(ctx context.Context, sku string, limit, offset int) ([]*entity.StockTransaction, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.StockTransaction
	for _, t := range f.txns {
		if t.SKU == sku {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) GetProduct(ctx context.Context, sku string) (*entity.Product, error) {
	return nil, errNotFound
}
func (f *fakeStore) CreateProduct(ctx context.Context, p *entity.Product) error { return nil }
func (f *fakeStore) UpdateProduct(ctx context.Context, p *entity.Product) error { return nil }
func (f *fakeStore) ListActiveProducts(ctx context.Context, limit, offset int) ([]*entity.Product, int, error) {
	return nil, 0, nil
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (e *notFoundErr) Error() string { return "not found" }

func idFor(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	out := ""
	for n > 0 {
		out = string(digits[n%10]) + out
		n /= 10
	}
	return "r" + out
}

// fakeCache is an in-memory stand-in for service.Cache.
type fakeCache struct {
	mu         sync.Mutex
	stock      map[string]int
	active     map[string]bool
	purchased  map[string]bool
	rejections map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		stock:      make(map[string]int),
		active:     make(map[string]bool),
		purchased:  make(map[string]bool),
		rejections: make(map[string]string),
	}
}

func (c *fakeCache) GetStock(ctx context.Context, sku string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.stock[sku]
	return v, ok, nil
}

func (c *fakeCache) SetStock(ctx context.Context, sku string, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stock[sku] = count
	return nil
}

func (c *fakeCache) DecrementStock(ctx context.Context, sku string, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.stock[sku] - delta
	if v < 0 {
		v = 0
	}
	c.stock[sku] = v
	return v, nil
}

func (c *fakeCache) IncrementStock(ctx context.Context, sku string, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stock[sku] += delta
	return c.stock[sku], nil
}

func (c *fakeCache) HasActiveReservation(ctx context.Context, userID, sku string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[activeKey(userID, sku)], nil
}

func (c *fakeCache) SetActiveReservation(ctx context.Context, userID, sku string, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[activeKey(userID, sku)] = true
	return nil
}

func (c *fakeCache) ClearActiveReservation(ctx context.Context, userID, sku string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, activeKey(userID, sku))
	return nil
}

func (c *fakeCache) HasPurchased(ctx context.Context, userID, sku string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purchased[activeKey(userID, sku)], nil
}

func (c *fakeCache) SetPurchased(ctx context.Context, userID, sku string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purchased[activeKey(userID, sku)] = true
	return nil
}

func (c *fakeCache) GetRejection(ctx context.Context, idempotencyKey string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.rejections[idempotencyKey]
	return v, ok, nil
}

func (c *fakeCache) SetRejection(ctx context.Context, idempotencyKey, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejections[idempotencyKey] = reason
	return nil
}

func (c *fakeCache) Ping(ctx context.Context) error { return nil }

// fakeBus is an in-memory stand-in for service.Bus: one FIFO queue per
// partition, partitioning by a trivial hash of the SKU so tests can
// control exactly which partition a message lands on.
type fakeBus struct {
	mu         sync.Mutex
	partitions int
	queues     map[int][]service.BusMessage
	acked      []service.BusMessage
	deadLetters []service.BusMessage
}

func newFakeBus(partitions int) *fakeBus {
	return &fakeBus{partitions: partitions, queues: make(map[int][]service.BusMessage)}
}

func (b *fakeBus) partitionFor(sku string) int {
	sum := 0
	for _, r := range sku {
		sum += int(r)
	}
	return sum % b.partitions
}

func (b *fakeBus) Publish(ctx context.Context, msg service.RequestMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.partitionFor(msg.SKU)
	b.queues[p] = append(b.queues[p], service.BusMessage{Request: msg})
	return nil
}

func (b *fakeBus) ConsumeBatch(ctx context.Context, partition int, maxMessages int, maxWaitMillis int) ([]service.BusMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[partition]
	if len(q) == 0 {
		return nil, nil
	}
	n := len(q)
	if n > maxMessages {
		n = maxMessages
	}
	batch := q[:n]
	b.queues[partition] = q[n:]
	return batch, nil
}

func (b *fakeBus) Ack(ctx context.Context, batch []service.BusMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acked = append(b.acked, batch...)
	return nil
}

func (b *fakeBus) DeadLetter(ctx context.Context, batch []service.BusMessage, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadLetters = append(b.deadLetters, batch...)
	return nil
}

func (b *fakeBus) PartitionCount() int { return b.partitions }
func (b *fakeBus) Close() error        { return nil }

// fakeEvents is a no-op stand-in for service.EventPublisher that records
// what was published, for assertions that care.
type fakeEvents struct {
	mu       sync.Mutex
	created  []*entity.Reservation
	rejected []string
	confirmed []*entity.Reservation
	cancelled []*entity.Reservation
	expired   []*entity.Reservation
	lowStock  []string
}

func newFakeEvents() *fakeEvents { return &fakeEvents{} }

func (e *fakeEvents) PublishReservationCreated(ctx context.Context, r *entity.Reservation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, r)
	return nil
}

func (e *fakeEvents) PublishReservationRejected(ctx context.Context, userID, sku, idempotencyKey, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejected = append(e.rejected, idempotencyKey)
	return nil
}

func (e *fakeEvents) PublishReservationConfirmed(ctx context.Context, r *entity.Reservation, order *entity.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.confirmed = append(e.confirmed, r)
	return nil
}

func (e *fakeEvents) PublishReservationCancelled(ctx context.Context, r *entity.Reservation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = append(e.cancelled, r)
	return nil
}

func (e *fakeEvents) PublishReservationExpired(ctx context.Context, r *entity.Reservation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expired = append(e.expired, r)
	return nil
}

func (e *fakeEvents) PublishStockLow(ctx context.Context, sku string, available int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lowStock = append(e.lowStock, sku)
	return nil
}

func (e *fakeEvents) Close() error { return nil }

// noopLogger satisfies logger.Logger without printing anything during tests.
type noopLogger struct{}

func (noopLogger) Debug(msg string, kv ...interface{}) {}
func (noopLogger) Info(msg string, kv ...interface{})  {}
func (noopLogger) Warn(msg string, kv ...interface{})  {}
func (noopLogger) Error(msg string, kv ...interface{}) {}
func (noopLogger) Fatal(msg string, kv ...interface{}) {}
func (l noopLogger) With(kv ...interface{}) logger.Logger {
	return l
}
func (l noopLogger) WithCorrelationID(correlationID string) logger.Logger {
	return l
}
