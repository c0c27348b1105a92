package transport

// Capabilities describes the delivery behavior of a transport backend, for
// operators and embedders sizing a run. The pipeline itself compensates for
// the worst case unconditionally: it opens its subscriptions before the first
// publish and discards duplicate results by correlation id, so it works the
// same over a non-retaining or at-least-once backend without consulting
// these flags.
type Capabilities struct {
	// Name is the registered transport name.
	Name string

	// Retained indicates a message published while no subscription is open
	// is held by the broker and delivered once one opens. When false, the
	// result subscription must exist before the first request is dispatched
	// or early results are lost.
	Retained bool

	// AtLeastOnce indicates the backend may redeliver a message, so
	// duplicate deliveries are an expected condition.
	AtLeastOnce bool

	// SupportsOrdering indicates messages within a partition or stream
	// arrive in publish order. The correlation table never relies on this.
	SupportsOrdering bool

	// SupportsAck indicates the backend honors explicit acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the backend redelivers on negative
	// acknowledgment.
	SupportsNack bool

	// SupportsBatching indicates the backend can batch publishes.
	SupportsBatching bool

	// SupportsPartitioning indicates the backend partitions topics.
	SupportsPartitioning bool

	// MaxMessageSize is the maximum message size in bytes (0 = unknown).
	// Image payloads are base64-encoded JSON and can get close to broker
	// limits.
	MaxMessageSize int64
}

// RequiresEarlySubscribe reports whether subscriptions must be open before
// the first publish because the backend keeps nothing for late subscribers.
func (c Capabilities) RequiresEarlySubscribe() bool {
	return !c.Retained
}

// MayDuplicate reports whether the collector should expect duplicate result
// deliveries from this backend.
func (c Capabilities) MayDuplicate() bool {
	return c.AtLeastOnce
}

// Predefined capability sets for the bundled transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		Retained:         false,
		AtLeastOnce:      false,
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	// KafkaCapabilities for the Apache Kafka transport.
	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		Retained:             true,
		AtLeastOnce:          true,
		SupportsOrdering:     true,
		SupportsAck:          true,
		SupportsBatching:     true,
		SupportsPartitioning: true,
		MaxMessageSize:       1048576,
	}

	// RabbitMQCapabilities for the RabbitMQ/AMQP transport.
	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		Retained:         true,
		AtLeastOnce:      true,
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	// NATSCapabilities for the NATS Core transport. Core NATS is fire and
	// forget: no retention, no redelivery, lost results are recovered only
	// by timeout eviction.
	NATSCapabilities = Capabilities{
		Name:           "nats",
		MaxMessageSize: 1048576,
	}

	// NATSJetStreamCapabilities for the NATS JetStream transport.
	NATSJetStreamCapabilities = Capabilities{
		Name:             "nats-jetstream",
		Retained:         true,
		AtLeastOnce:      true,
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsBatching: true,
		MaxMessageSize:   1048576,
	}

	// AWSCapabilities for the AWS SNS/SQS transport.
	AWSCapabilities = Capabilities{
		Name:             "aws",
		Retained:         true,
		AtLeastOnce:      true,
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsBatching: true,
		MaxMessageSize:   262144,
	}
)

// GetCapabilities returns the capabilities for a transport by name, looked
// up in the default registry. Unknown names return a zero struct carrying
// only the name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
