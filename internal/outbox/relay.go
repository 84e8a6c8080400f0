package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Store is the outbox side of the repository.
type Store interface {
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
}

// Relay publishes committed outbox events to kafka and marks them processed.
// Delivery is at-least-once: an event whose mark fails is sent again.
type Relay struct {
	store     Store
	writer    MessageWriter
	log       *zap.SugaredLogger
	batchSize int
	interval  time.Duration
}

func NewRelay(store Store, writer MessageWriter, logger *zap.SugaredLogger, batchSize int, interval time.Duration) *Relay {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Relay{store: store, writer: writer, log: logger, batchSize: batchSize, interval: interval}
}

// Flush publishes one batch and returns how many events were marked processed.
// It stops at the first failed publish so ordering per poll is preserved.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.PollOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, evt := range events {
		msg := kafka.Message{
			Key:   []byte(evt.AggregateID),
			Value: []byte(evt.Payload),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(evt.EventType)},
				{Key: "aggregate", Value: []byte(evt.Aggregate)},
			},
			Time: evt.CreatedAt,
		}
		if err := r.writer.WriteMessages(ctx, msg); err != nil {
			return sent, err
		}
		if err := r.store.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Run flushes every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Infow("outbox relay started", "batch_size", r.batchSize, "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
		n, err := r.Flush(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			r.log.Errorw("flush outbox", "published", n, "error", err)
		case n > 0:
			r.log.Infow("outbox events published", "count", n)
		}
	}
}
