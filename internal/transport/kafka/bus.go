package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Bus publishes to Kafka, using the message topic rather than a fixed writer topic.
type Bus struct {
	writer *kafka.Writer
}

func NewBus(brokers []string) *Bus {
	return &Bus{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, data []byte) error {
	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Value: data,
	})
}

func (b *Bus) Close() error {
	return b.writer.Close()
}
