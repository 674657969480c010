package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/service"
)

// ReservationEventPayload is the common envelope every event on the
// reservation-events stream carries, so a single topic can replay the
// whole lifecycle of a reservation in order for a downstream consumer
// like the Order Audit Archive.
type ReservationEventPayload struct {
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	ReservationID string    `json:"reservation_id,omitempty"`
	OrderID       string    `json:"order_id,omitempty"`
	SKU           string    `json:"sku"`
	UserID        string    `json:"user_id,omitempty"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	AvailableQty  int       `json:"available_qty,omitempty"`
}

// KafkaEventPublisher implements service.EventPublisher.
type KafkaEventPublisher struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaEventPublisher(brokers []string, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
		topic: topic,
	}
}

func (k *KafkaEventPublisher) publish(ctx context.Context, payload ReservationEventPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payload.SKU),
		Value: body,
		Time:  time.Now(),
	})
}

func (k *KafkaEventPublisher) PublishReservationCreated(ctx context.Context, r *entity.Reservation) error {
	return k.publish(ctx, ReservationEventPayload{
		EventType: service.EventTypeReservationCreated, Timestamp: time.Now(),
		ReservationID: r.ID, SKU: r.SKU, UserID: r.UserID, IdempotencyKey: r.IdempotencyKey,
	})
}

func (k *KafkaEventPublisher) PublishReservationRejected(ctx context.Context, userID, sku, idempotencyKey, reason string) error {
	return k.publish(ctx, ReservationEventPayload{
		EventType: service.EventTypeReservationRejected, Timestamp: time.Now(),
		SKU: sku, UserID: userID, IdempotencyKey: idempotencyKey, Reason: reason,
	})
}

func (k *KafkaEventPublisher) PublishReservationConfirmed(ctx context.Context, r *entity.Reservation, order *entity.Order) error {
	return k.publish(ctx, ReservationEventPayload{
		EventType: service.EventTypeReservationConfirmed, Timestamp: time.Now(),
		ReservationID: r.ID, OrderID: order.ID, SKU: r.SKU, UserID: r.UserID,
	})
}

func (k *KafkaEventPublisher) PublishReservationCancelled(ctx context.Context, r *entity.Reservation) error {
	return k.publish(ctx, ReservationEventPayload{
		EventType: service.EventTypeReservationCancelled, Timestamp: time.Now(),
		ReservationID: r.ID, SKU: r.SKU, UserID: r.UserID,
	})
}

func (k *KafkaEventPublisher) PublishReservationExpired(ctx context.Context, r *entity.Reservation) error {
	return k.publish(ctx, ReservationEventPayload{
		EventType: service.EventTypeReservationExpired, Timestamp: time.Now(),
		ReservationID: r.ID, SKU: r.SKU, UserID: r.UserID,
	})
}

func (k *KafkaEventPublisher) PublishStockLow(ctx context.Context, sku string, available int) error {
	return k.publish(ctx, ReservationEventPayload{
		EventType: service.EventTypeStockLow, Timestamp: time.Now(),
		SKU: sku, AvailableQty: available,
	})
}

func (k *KafkaEventPublisher) Close() error {
	return k.writer.Close()
}
