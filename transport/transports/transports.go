// Package transports imports every built-in transport so each registers
// itself with the default registry.
package transports

import (
	_ "github.com/drblury/flowgate/transport/aws"
	_ "github.com/drblury/flowgate/transport/channel"
	_ "github.com/drblury/flowgate/transport/http"
	_ "github.com/drblury/flowgate/transport/kafka"
	_ "github.com/drblury/flowgate/transport/nats"
	_ "github.com/drblury/flowgate/transport/rabbitmq"
)
