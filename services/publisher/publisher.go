package publisher

import "context"

// Publisher announces newly stored listings to downstream consumers
type Publisher interface {
	// Publish appends a message under field key to the stream
	Publish(ctx context.Context, key string, message []byte) error

	// TrimStreams trims the stream to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}

// Nop discards every message. Used when no Redis is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
func (Nop) TrimStreams(context.Context) error { return nil }
func (Nop) Close() error { return nil }
