package nats

import (
	"context"

	"github.com/nats-io/nats.go"
)

type Bus struct {
	nc *nats.Conn
}

func NewBus(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

// Publish is fire-and-forget; ctx is unused because core NATS publishes
// only buffer locally.
func (b *Bus) Publish(_ context.Context, topic string, data []byte) error {
	return b.nc.Publish(topic, data)
}
