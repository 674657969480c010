package entity

import (
	"time"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/valueobject"
)

// Reservation is a single unit held against a SKU on behalf of a user.
// Qty is always 1 (spec §3): a user never reserves more than one unit of
// a SKU in a single request, by construction.
type Reservation struct {
	ID             string                         `json:"id"`
	SKU            string                         `json:"sku"`
	UserID         string                         `json:"user_id"`
	Qty            int                            `json:"qty"`
	Status         valueobject.ReservationStatus  `json:"status"`
	IdempotencyKey string                         `json:"idempotency_key"`
	CreatedAt      time.Time                      `json:"created_at"`
	ExpiresAt      time.Time                      `json:"expires_at"`
	ConfirmedAt    *time.Time                     `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time                     `json:"cancelled_at,omitempty"`
}

// IsExpired reports whether this reservation's hold has lapsed as of now,
// regardless of whether the Expiry Reconciler has processed it yet.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == valueobject.ReservationStatusReserved && !r.ExpiresAt.After(now)
}

// StockTransaction is an append-only ledger entry recording one movement
// against a SKU's pool (reserve, confirm, expire, cancel).
type StockTransaction struct {
	ID          string                              `json:"id"`
	SKU         string                               `json:"sku"`
	Type        valueobject.StockTransactionType     `json:"type"`
	Qty         int                                   `json:"qty"`
	ReferenceID string                                `json:"reference_id"`
	OccurredAt  time.Time                             `json:"occurred_at"`
}

// UserPurchase records that a user has successfully completed a purchase
// of a SKU (R1: at most one active reservation, plus one confirmed
// purchase, per user per SKU).
type UserPurchase struct {
	UserID        string    `json:"user_id"`
	SKU           string    `json:"sku"`
	ReservationID string    `json:"reservation_id"`
	PurchasedAt   time.Time `json:"purchased_at"`
}
