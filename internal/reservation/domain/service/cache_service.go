package service

import "context"

// Cache is the Coordination Cache (spec §4.7): an advisory speed layer in
// front of the Store. Every key it defines has a TTL, and nothing in the
// engine treats a cache hit as authoritative for the write path — only
// the Store's conditional update is.
type Cache interface {
	// GetStock returns the cached available_count for a SKU, or ok=false
	// on a miss.
	GetStock(ctx context.Context, sku string) (count int, ok bool, err error)
	// SetStock populates stock:{sku} with the given TTL.
	SetStock(ctx context.Context, sku string, count int) error
	// DecrementStock atomically decrements stock:{sku} by delta without
	// going negative, returning the resulting value; used as the
	// post-commit side effect after a successful allocation.
	DecrementStock(ctx context.Context, sku string, delta int) (int, error)
	// IncrementStock is DecrementStock's inverse, used when the Expiry
	// Reconciler or Cancel path returns a unit to the pool.
	IncrementStock(ctx context.Context, sku string, delta int) (int, error)

	// HasActiveReservation checks the active_reservation:{user}:{sku}
	// marker.
	HasActiveReservation(ctx context.Context, userID, sku string) (bool, error)
	// SetActiveReservation sets the marker with TTL = hold duration + margin.
	SetActiveReservation(ctx context.Context, userID, sku string, ttlSeconds int) error
	// ClearActiveReservation removes the marker (confirm/cancel/expire).
	ClearActiveReservation(ctx context.Context, userID, sku string) error

	// HasPurchased checks the user_purchased:{user}:{sku} marker.
	HasPurchased(ctx context.Context, userID, sku string) (bool, error)
	// SetPurchased sets the marker with a 24h TTL.
	SetPurchased(ctx context.Context, userID, sku string) error

	// GetRejection returns a cached terminal rejection for an
	// idempotency key, or ok=false on a miss.
	GetRejection(ctx context.Context, idempotencyKey string) (reason string, ok bool, err error)
	// SetRejection caches a terminal rejection outcome with a 3 minute TTL.
	SetRejection(ctx context.Context, idempotencyKey, reason string) error

	Ping(ctx context.Context) error
}
