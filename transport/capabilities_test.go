package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities_RequiresEarlySubscribe(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want bool
	}{
		{
			name: "retained backend",
			caps: Capabilities{Retained: true},
			want: false,
		},
		{
			name: "non-retaining backend",
			caps: Capabilities{Retained: false},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.RequiresEarlySubscribe())
		})
	}
}

func TestCapabilities_MayDuplicate(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want bool
	}{
		{
			name: "at-least-once backend",
			caps: Capabilities{AtLeastOnce: true},
			want: true,
		},
		{
			name: "fire-and-forget backend",
			caps: Capabilities{AtLeastOnce: false},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.MayDuplicate())
		})
	}
}

func TestPredefinedCapabilities(t *testing.T) {
	t.Run("channel", func(t *testing.T) {
		assert.Equal(t, "channel", ChannelCapabilities.Name)
		assert.True(t, ChannelCapabilities.RequiresEarlySubscribe())
		assert.False(t, ChannelCapabilities.MayDuplicate())
	})

	t.Run("kafka", func(t *testing.T) {
		assert.Equal(t, "kafka", KafkaCapabilities.Name)
		assert.True(t, KafkaCapabilities.Retained)
		assert.True(t, KafkaCapabilities.AtLeastOnce)
		assert.True(t, KafkaCapabilities.SupportsPartitioning)
	})

	t.Run("rabbitmq", func(t *testing.T) {
		assert.Equal(t, "rabbitmq", RabbitMQCapabilities.Name)
		assert.True(t, RabbitMQCapabilities.Retained)
		assert.True(t, RabbitMQCapabilities.SupportsNack)
	})

	t.Run("nats core is fire and forget", func(t *testing.T) {
		assert.Equal(t, "nats", NATSCapabilities.Name)
		assert.False(t, NATSCapabilities.Retained)
		assert.False(t, NATSCapabilities.AtLeastOnce)
		assert.False(t, NATSCapabilities.SupportsAck)
	})

	t.Run("jetstream", func(t *testing.T) {
		assert.Equal(t, "nats-jetstream", NATSJetStreamCapabilities.Name)
		assert.True(t, NATSJetStreamCapabilities.Retained)
		assert.True(t, NATSJetStreamCapabilities.AtLeastOnce)
	})

	t.Run("aws", func(t *testing.T) {
		assert.Equal(t, "aws", AWSCapabilities.Name)
		assert.Equal(t, int64(262144), AWSCapabilities.MaxMessageSize)
	})
}

func TestGetCapabilities_RegisteredTransport(t *testing.T) {
	originalRegistry := DefaultRegistry
	defer func() { DefaultRegistry = originalRegistry }()
	DefaultRegistry = NewRegistry()

	DefaultRegistry.RegisterWithCapabilities("test", nil, Capabilities{
		Name:     "test",
		Retained: true,
	})

	caps := GetCapabilities("test")
	assert.Equal(t, "test", caps.Name)
	assert.True(t, caps.Retained)
}

func TestGetCapabilities_UnknownTransport(t *testing.T) {
	caps := GetCapabilities("no-such-transport")
	assert.Equal(t, "no-such-transport", caps.Name)
	assert.False(t, caps.Retained)
}
