package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/service"
)

// KafkaConfig holds the Partitioned Bus's connection settings. PartitionN
// is fixed for the sale window (spec §4.2) — there is no rebalance path.
type KafkaConfig struct {
	Brokers         []string
	RequestTopic    string
	DeadLetterTopic string
	PartitionN      int
}

type kafkaHandle struct {
	partition int
	offset    int64
}

// KafkaBus implements service.Bus. Requests are SKU-keyed and hashed onto
// a fixed partition by kafka.Hash, so every request for a SKU lands on
// the same partition and is read by exactly one RunPartition worker.
// Readers are pinned to a single partition with no GroupID — the
// examples pack's subscriber uses consumer groups for independent order
// and inventory streams, but a flash sale needs the stronger guarantee
// that nothing ever rebalances a SKU's partition mid-sale. Offsets are
// checkpointed in Redis rather than committed to the broker, since there
// is no consumer group to commit through.
type KafkaBus struct {
	writer   *kafka.Writer
	dlWriter *kafka.Writer
	readers  map[int]*kafka.Reader
	rdb      redis.Cmdable
	cfg      KafkaConfig
}

func NewKafkaBus(cfg KafkaConfig, rdb redis.Cmdable) *KafkaBus {
	return &KafkaBus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.RequestTopic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
		dlWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DeadLetterTopic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
		readers: make(map[int]*kafka.Reader),
		rdb:     rdb,
		cfg:     cfg,
	}
}

func (b *KafkaBus) offsetKey(partition int) string {
	return fmt.Sprintf("bus:offset:%s:%d", b.cfg.RequestTopic, partition)
}

func (b *KafkaBus) readerFor(ctx context.Context, partition int) *kafka.Reader {
	if r, ok := b.readers[partition]; ok {
		return r
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   b.cfg.Brokers,
		Topic:     b.cfg.RequestTopic,
		Partition: partition,
		MinBytes:  1,
		MaxBytes:  10e6,
	})

	if raw, err := b.rdb.Get(ctx, b.offsetKey(partition)).Int64(); err == nil {
		_ = r.SetOffset(raw)
	} else {
		_ = r.SetOffset(kafka.FirstOffset)
	}

	b.readers[partition] = r
	return r
}

func (b *KafkaBus) Publish(ctx context.Context, msg service.RequestMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal request message: %w", err)
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.SKU),
		Value: payload,
		Time:  time.Now(),
	})
}

func (b *KafkaBus) ConsumeBatch(ctx context.Context, partition int, maxMessages int, maxWaitMillis int) ([]service.BusMessage, error) {
	reader := b.readerFor(ctx, partition)

	deadlineCtx, cancel := context.WithTimeout(ctx, time.Duration(maxWaitMillis)*time.Millisecond)
	defer cancel()

	batch := make([]service.BusMessage, 0, maxMessages)
	for len(batch) < maxMessages {
		raw, err := reader.FetchMessage(deadlineCtx)
		if err != nil {
			if deadlineCtx.Err() != nil {
				break
			}
			return batch, err
		}

		var req service.RequestMessage
		if err := json.Unmarshal(raw.Value, &req); err != nil {
			// A message that doesn't even decode can't be retried its way
			// out of a poison batch; treat it as already acked and move on.
			continue
		}

		batch = append(batch, service.BusMessage{Request: req, Raw: raw.Value}.WithHandle(kafkaHandle{partition: partition, offset: raw.Offset}))
	}

	return batch, nil
}

func (b *KafkaBus) Ack(ctx context.Context, batch []service.BusMessage) error {
	highest := make(map[int]int64)
	for _, m := range batch {
		h, ok := m.Handle().(kafkaHandle)
		if !ok {
			continue
		}
		if h.offset+1 > highest[h.partition] {
			highest[h.partition] = h.offset + 1
		}
	}
	for partition, nextOffset := range highest {
		if err := b.rdb.Set(ctx, b.offsetKey(partition), nextOffset, 0).Err(); err != nil {
			return fmt.Errorf("checkpoint partition %d: %w", partition, err)
		}
	}
	return nil
}

func (b *KafkaBus) DeadLetter(ctx context.Context, batch []service.BusMessage, reason string) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, m := range batch {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(m.Request.SKU),
			Value: m.Raw,
			Headers: []kafka.Header{
				{Key: "reject_reason", Value: []byte(reason)},
			},
			Time: time.Now(),
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := b.dlWriter.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	return b.Ack(ctx, batch)
}

func (b *KafkaBus) PartitionCount() int {
	return b.cfg.PartitionN
}

func (b *KafkaBus) Close() error {
	if err := b.writer.Close(); err != nil {
		return err
	}
	if err := b.dlWriter.Close(); err != nil {
		return err
	}
	for _, r := range b.readers {
		if err := r.Close(); err != nil {
			return err
		}
	}
	return nil
}
