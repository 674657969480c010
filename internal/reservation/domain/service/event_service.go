package service

import (
	"context"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
)

// Event type names carried on the reservation-events topic. Consumers
// (the Mongo Order Audit Archive, downstream notification/analytics
// systems) switch on this field rather than the Kafka topic name so a
// single topic can carry the whole reservation lifecycle in order.
const (
	EventTypeReservationCreated   = "reservation.created"
	EventTypeReservationRejected  = "reservation.rejected"
	EventTypeReservationConfirmed = "reservation.confirmed"
	EventTypeReservationCancelled = "reservation.cancelled"
	EventTypeReservationExpired   = "reservation.expired"
	EventTypeStockLow             = "inventory.stock.low"
)

// EventPublisher publishes onto the reservation-events stream (spec
// §4.3 step 6, §4.4, §4.5). Every publish is best-effort from the
// caller's point of view: a failure here is logged, not fatal, because
// the Store transaction has already committed by the time this runs.
type EventPublisher interface {
	PublishReservationCreated(ctx context.Context, r *entity.Reservation) error
	PublishReservationRejected(ctx context.Context, userID, sku, idempotencyKey, reason string) error
	PublishReservationConfirmed(ctx context.Context, r *entity.Reservation, order *entity.Order) error
	PublishReservationCancelled(ctx context.Context, r *entity.Reservation) error
	PublishReservationExpired(ctx context.Context, r *entity.Reservation) error
	PublishStockLow(ctx context.Context, sku string, available int) error
	Close() error
}
