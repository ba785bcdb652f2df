package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mindcare/realtime/pkg/store"
)

// Consumer drains the room-events topic into Scylla. The topic is keyed by
// room id, so each room's records arrive in accepted order and land in the
// table in that order.
type Consumer struct {
	reader   *kafka.Reader
	appender store.Appender
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

func newConsumer(brokers []string, topic, groupID string, appender store.Appender, cfg Config, log *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:   r,
		appender: appender,
		attempts: cfg.WriteAttempts,
		backoff:  cfg.WriteBackoff,
		log:      log,
	}
}

// Run consumes until the context is cancelled. Writes are at-least-once:
// a record that fails past the retry budget is logged and skipped rather
// than wedging the partition.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("read failed, retrying", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var rec store.Record
		if err := json.Unmarshal(m.Value, &rec); err != nil {
			c.log.Error("skipping undecodable record", "offset", m.Offset, "err", err)
			continue
		}

		if err := store.AppendWithRetry(ctx, c.appender, rec, c.attempts, c.backoff); err != nil {
			c.log.Error("record lost after retries", "room_id", rec.RoomID, "event_id", rec.ID, "err", err)
			continue
		}
		c.log.Debug("record archived", "room_id", rec.RoomID, "event_id", rec.ID, "kind", rec.Kind)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
