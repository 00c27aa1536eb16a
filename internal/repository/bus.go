package repository

import "context"

// TopicCharges carries a ChargeEvent for every authorized charge.
const TopicCharges = "ledger.charges"

type MessageBus interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// NopBus drops every message. It is used when no bus provider is configured.
type NopBus struct{}

func (NopBus) Publish(context.Context, string, []byte) error { return nil }
