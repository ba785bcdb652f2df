package store

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// KafkaAppender publishes durable records to the room-events topic. Records
// are keyed by room id so one room stays on one partition and the archiver
// observes it in accepted order.
type KafkaAppender struct {
	writer *kafka.Writer
}

func NewKafkaAppender(brokers []string, topic string) *KafkaAppender {
	return &KafkaAppender{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (a *KafkaAppender) Append(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return a.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.RoomID),
		Value: payload,
	})
}

func (a *KafkaAppender) Close() error {
	return a.writer.Close()
}
