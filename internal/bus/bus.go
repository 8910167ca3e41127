// Package bus is the thin adapter to the external message bus. The bus
// itself (delivery guarantees, subject routing) is an external
// collaborator; this package only subscribes and hands raw payloads to
// the router.
package bus

import "context"

// Message is one inbound bus message.
type Message struct {
	// Subject is the fully qualified subject the message was published on.
	Subject string `json:"subject"`
	// Data is the raw event payload.
	Data []byte `json:"data"`
}

// Subscriber delivers messages matching wildcard subject patterns.
// Delivery is at-least-once with no ordering guarantee across subjects.
type Subscriber interface {
	// Subscribe registers the subject patterns and returns a channel of
	// inbound messages. The channel is closed when the subscriber closes.
	Subscribe(ctx context.Context, subjects ...string) (<-chan Message, error)

	// Close tears down the connection and closes the message channel.
	Close() error
}
