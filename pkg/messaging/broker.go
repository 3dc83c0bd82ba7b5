package messaging

import (
	"context"
)

// Broker publishes outbox events to downstream consumers. Consumers live in
// other services and subscribe on their own connections.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// Message is the envelope published for every outbox event.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Channel names
const (
	ChannelAccessEvents = "medihub.access"
)
