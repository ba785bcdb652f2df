package crisis

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// KafkaDispatcher publishes alerts to the crisis escalation topic, consumed
// by the on-call response tooling outside the room.
type KafkaDispatcher struct {
	writer *kafka.Writer
}

func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (d *KafkaDispatcher) Escalate(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.RoomID),
		Value: payload,
	})
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
