package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/flashsale/reservation-engine/pkg/logger"
)

// EventRecord is the denormalized document the Order Audit Archive
// writes for every event on the reservation-events stream (spec_full
// §SUPPLEMENTED FEATURES), following the examples pack's pattern of a
// Mongo collection as a durable, queryable tail of a lifecycle.
type EventRecord struct {
	EventType      string    `bson:"event_type"`
	Timestamp      time.Time `bson:"timestamp"`
	ReservationID  string    `bson:"reservation_id,omitempty"`
	OrderID        string    `bson:"order_id,omitempty"`
	SKU            string    `bson:"sku"`
	UserID         string    `bson:"user_id,omitempty"`
	IdempotencyKey string    `bson:"idempotency_key,omitempty"`
	Reason         string    `bson:"reason,omitempty"`
	AvailableQty   int       `bson:"available_qty,omitempty"`
	RecordedAt     time.Time `bson:"recorded_at"`
}

// Archive appends every reservation-lifecycle event it is handed to a
// Mongo collection. It never rejects a write based on event content —
// its only job is to keep a complete, replayable audit trail.
type Archive struct {
	collection *mongo.Collection
	log        logger.Logger
}

func NewArchive(db *mongo.Database, log logger.Logger) *Archive {
	return &Archive{collection: db.Collection("reservation_events"), log: log}
}

// HandleRaw decodes one reservation-events message body and appends it.
// It is the handler a Kafka consumer loop (wired in cmd/reservation_service)
// passes each fetched message through.
func (a *Archive) HandleRaw(ctx context.Context, raw []byte) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		a.log.Error("archive could not decode event payload", "error", err)
		return err
	}

	record := EventRecord{RecordedAt: time.Now()}
	if v, ok := payload["event_type"].(string); ok {
		record.EventType = v
	}
	if v, ok := payload["sku"].(string); ok {
		record.SKU = v
	}
	if v, ok := payload["user_id"].(string); ok {
		record.UserID = v
	}
	if v, ok := payload["reservation_id"].(string); ok {
		record.ReservationID = v
	}
	if v, ok := payload["order_id"].(string); ok {
		record.OrderID = v
	}
	if v, ok := payload["idempotency_key"].(string); ok {
		record.IdempotencyKey = v
	}
	if v, ok := payload["reason"].(string); ok {
		record.Reason = v
	}
	if v, ok := payload["available_qty"].(float64); ok {
		record.AvailableQty = int(v)
	}
	if v, ok := payload["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			record.Timestamp = t
		}
	}

	_, err := a.collection.InsertOne(ctx, record)
	if err != nil {
		a.log.Error("failed to insert archived event", "event_type", record.EventType, "error", err)
		return err
	}
	return nil
}

// RunConsumer tails the reservation-events topic as an ordinary consumer
// group member — unlike the Partitioned Bus's allocator workers, the
// archive has no ordering or single-writer requirement, so rebalancing
// is harmless here.
func (a *Archive) RunConsumer(ctx context.Context, brokers []string, topic, groupID string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.Error("archive consumer failed to fetch message", "error", err)
			continue
		}

		if err := a.HandleRaw(ctx, msg.Value); err != nil {
			a.log.Error("archive failed to handle event, skipping", "error", err)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			a.log.Error("archive consumer failed to commit offset", "error", err)
		}
	}
}

// EnsureIndexes creates the lookup indexes the archive's read side relies on.
func (a *Archive) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sku", Value: 1}, {Key: "recorded_at", Value: -1}}},
		{Keys: bson.D{{Key: "reservation_id", Value: 1}}},
	})
	return err
}
