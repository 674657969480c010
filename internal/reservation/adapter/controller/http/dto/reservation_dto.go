package dto

import (
	"time"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/usecase"
)

// SubmitReservationRequest is the body of POST /v1/reservations.
type SubmitReservationRequest struct {
	SKU            string `json:"sku" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
}

func (r SubmitReservationRequest) ToSubmitRequest(userID string) usecase.SubmitRequest {
	return usecase.SubmitRequest{
		UserID:         userID,
		SKU:            r.SKU,
		Qty:            1,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// ReservationResponse is the shape every reservation-bearing endpoint returns.
type ReservationResponse struct {
	ID             string     `json:"id"`
	SKU            string     `json:"sku"`
	UserID         string     `json:"user_id"`
	Qty            int        `json:"qty"`
	Status         string     `json:"status"`
	IdempotencyKey string     `json:"idempotency_key"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

func ReservationResponseFromEntity(r *entity.Reservation) ReservationResponse {
	return ReservationResponse{
		ID: r.ID, SKU: r.SKU, UserID: r.UserID, Qty: r.Qty,
		Status:         r.Status.String(),
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt, ExpiresAt: r.ExpiresAt,
		ConfirmedAt: r.ConfirmedAt, CancelledAt: r.CancelledAt,
	}
}

// AvailabilityResponse is the body of GET /v1/inventory/:sku.
type AvailabilityResponse struct {
	SKU       string `json:"sku"`
	Available int    `json:"available"`
}
