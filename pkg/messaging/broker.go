package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// QueueChannel names the pub/sub channel carrying queue updates for a
// doctor. Real-time subscribers (waiting-room displays, doctor dashboards)
// listen per doctor.
func QueueChannel(doctorID string) string {
	return "queue." + doctorID
}

// ChatChannel is the channel the chat-message gateway consumes.
const ChatChannel = "chat.outbound"
