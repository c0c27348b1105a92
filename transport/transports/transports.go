// Package transports imports all built-in transports for auto-registration.
// Import this package to have every bundled backend registered with the
// default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/streambench/inferbench/transport/aws"
	_ "github.com/streambench/inferbench/transport/channel"
	_ "github.com/streambench/inferbench/transport/jetstream"
	_ "github.com/streambench/inferbench/transport/kafka"
	_ "github.com/streambench/inferbench/transport/nats"
	_ "github.com/streambench/inferbench/transport/rabbitmq"
)
