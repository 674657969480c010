package entity

import "time"

// Order is specified only where it couples to reservation confirmation: a
// CONFIRMED reservation and an Order are created together in one
// transaction. Checkout, pricing, and fulfillment business logic are an
// external collaborator's concern and are intentionally not modeled here.
type Order struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	SKU           string    `json:"sku"`
	CreatedAt     time.Time `json:"created_at"`
}
