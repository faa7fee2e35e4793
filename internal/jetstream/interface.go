package jetstream

import (
	"context"

	"github.com/nats-io/nats.go"
)

// ClientInterface is the JetStream surface the rest of the service depends on,
// kept narrow so tests can mock it.
type ClientInterface interface {
	// SetupStream ensures the stream exists and matches streamConfig.
	SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error

	// SetupConsumer ensures a durable consumer exists on streamName and
	// matches consumerConfig.
	SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error

	// Subscribe attaches a durable queue subscription to a subject.
	Subscribe(subject, consumer, group string, handler nats.MsgHandler) (*nats.Subscription, error)

	// SubscribePush binds a push consumer on the named stream.
	SubscribePush(subject, consumer, group, stream string, handler nats.MsgHandler) (*nats.Subscription, error)

	// SubscribePull binds a pull consumer on the named stream.
	SubscribePull(streamName, subject, consumer string) (*nats.Subscription, error)

	// Publish sends data to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error

	// Close drains and closes the NATS connection.
	Close()

	// NatsConn exposes the underlying connection for request/reply use.
	NatsConn() *nats.Conn
}
