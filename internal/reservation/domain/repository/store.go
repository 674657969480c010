package repository

import (
	"context"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
)

// AllocationRequest is one validated candidate for admission inside a
// batch, preserving the arrival order the Batch Allocator groups by SKU.
type AllocationRequest struct {
	UserID         string
	SKU            string
	IdempotencyKey string
}

// AllocationOutcome reports, per request in the same order they were
// passed in, whether the two-phase conditional update admitted it.
type AllocationOutcome struct {
	Request      AllocationRequest
	Reservation  *entity.Reservation
	Admitted     bool
	RejectReason string
}

// Store is the Reservation Store (spec §4.4): durable, row-versioned,
// and the sole authority for inventory counters and reservation status.
type Store interface {
	// GetInventory returns the current counters for a SKU.
	GetInventory(ctx context.Context, sku string) (*entity.Inventory, error)

	// CreateInventory arms a SKU's pool for a sale window. TotalCount is
	// immutable afterward (I2) — there is deliberately no UpdateTotalCount.
	CreateInventory(ctx context.Context, inv *entity.Inventory) error

	// AllocateBatch performs the two-phase optimistic conditional update
	// described in spec §4.3 against one SKU partition's batch of
	// already-validated requests, in arrival order, and persists the
	// admitted Reservation rows in the same transaction. It returns one
	// AllocationOutcome per input request, same order, same length.
	AllocateBatch(ctx context.Context, sku string, holdDurationSeconds int, requests []AllocationRequest) ([]AllocationOutcome, error)

	// GetReservation fetches a single reservation by ID.
	GetReservation(ctx context.Context, id string) (*entity.Reservation, error)

	// GetReservationByIdempotencyKey supports R2: a resubmission with the
	// same key must resolve to the original outcome, not a new row.
	GetReservationByIdempotencyKey(ctx context.Context, key string) (*entity.Reservation, error)

	// HasActiveReservation supports R1's read-side: is there a live
	// RESERVED row for this (user, sku) pair right now.
	HasActiveReservation(ctx context.Context, userID, sku string) (bool, error)

	// HasPurchased reports whether the user already holds a CONFIRMED
	// reservation (completed purchase) for this SKU.
	HasPurchased(ctx context.Context, userID, sku string) (bool, error)

	// Confirm transitions RESERVED -> CONFIRMED, moves the unit from
	// reserved_count to sold_count, records the UserPurchase row, and
	// creates the paired Order, all in one transaction. A reservation
	// that is no longer RESERVED is left untouched; the caller is told
	// via the returned status which branch happened.
	Confirm(ctx context.Context, reservationID string, order *entity.Order) (*entity.Reservation, error)

	// Cancel transitions RESERVED -> CANCELLED and returns the unit to
	// reserved_count -= qty, in one transaction. Idempotent against a
	// reservation that already left RESERVED.
	Cancel(ctx context.Context, reservationID string) (*entity.Reservation, error)

	// SweepExpired selects up to `limit` RESERVED rows whose hold has
	// lapsed as of `asOf`, transitions each to EXPIRED and returns its
	// unit, one row-transaction at a time, skipping rows a concurrent
	// Confirm/Cancel already moved out of RESERVED. Returns the rows it
	// actually expired.
	SweepExpired(ctx context.Context, asOf int64, limit int) ([]*entity.Reservation, error)

	// RecordStockTransaction appends one ledger entry.
	RecordStockTransaction(ctx context.Context, txn *entity.StockTransaction) error

	// GetStockTransactions paginates the ledger for a SKU.
	GetStockTransactions(ctx context.Context, sku string, limit, offset int) ([]*entity.StockTransaction, int, error)

	// Product catalog (supplemented feature, spec_full §SUPPLEMENTED FEATURES).
	GetProduct(ctx context.Context, sku string) (*entity.Product, error)
	CreateProduct(ctx context.Context, p *entity.Product) error
	UpdateProduct(ctx context.Context, p *entity.Product) error
	ListActiveProducts(ctx context.Context, limit, offset int) ([]*entity.Product, int, error)
}
