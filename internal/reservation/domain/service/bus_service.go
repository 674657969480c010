package service

import "context"

// RequestMessage is one reservation request as it travels the Partitioned
// Bus (spec §4.2), keyed by SKU so every request for a SKU lands on the
// same partition and is processed in arrival order by a single writer.
type RequestMessage struct {
	SKU            string
	UserID         string
	IdempotencyKey string
	EnqueuedAtUnix int64
}

// Bus is the Partitioned Bus: at-least-once delivery, manual ack, batch
// consumption bounded by count or time. PartitionCount is fixed for a
// sale window (spec §4.2) — there is no Repartition method by design.
type Bus interface {
	// Publish enqueues one request, partitioned by SKU.
	Publish(ctx context.Context, msg RequestMessage) error

	// ConsumeBatch pulls up to maxMessages from the given partition,
	// waiting at most maxWait for the batch to fill. It returns fewer
	// messages than maxMessages if maxWait elapses first, and zero
	// messages (not an error) if nothing arrived within maxWait.
	ConsumeBatch(ctx context.Context, partition int, maxMessages int, maxWaitMillis int) ([]BusMessage, error)

	// Ack commits the offsets for a consumed batch. Only called after
	// the batch's allocation outcomes have been durably persisted.
	Ack(ctx context.Context, batch []BusMessage) error

	// DeadLetter moves a batch that repeatedly failed to apply to the
	// poison-batch topic instead of blocking its partition forever.
	DeadLetter(ctx context.Context, batch []BusMessage, reason string) error

	PartitionCount() int
	Close() error
}

// BusMessage pairs a decoded RequestMessage with the transport-level
// handle ConsumeBatch/Ack/DeadLetter need to track delivery.
type BusMessage struct {
	Request RequestMessage
	Raw     []byte
	handle  any
}

// WithHandle and Handle let an adapter attach its own delivery token
// (e.g. a kafka-go Message) without the domain layer knowing the
// transport's type.
func (m BusMessage) WithHandle(h any) BusMessage {
	m.handle = h
	return m
}

func (m BusMessage) Handle() any {
	return m.handle
}
