// Package transport builds the pub/sub pair the bridge strategy talks through.
// Each backend lives in its own sub-package and registers a Builder under the
// name used in the PubSubSystem config value.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// MetadataKeyPartitionKey carries the partition key of an outbound message.
// Backends that support keyed publishing route on it; others ignore it.
const MetadataKeyPartitionKey = "partition_key"

// Transport combines the publisher used for bridged requests with the
// subscriber used for the reply topic.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values transports read.
type Config interface {
	GetPubSubSystem() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that report their
// capabilities directly.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// AssignmentHandler receives the partitions of topic currently owned by this
// process. It is called again after every rebalance.
type AssignmentHandler func(topic string, partitions []int32)

// AssignmentReporter is implemented by subscribers that learn their partition
// assignment from the broker. Subscribers without it are treated as owning
// the whole reply topic from the start.
type AssignmentReporter interface {
	OnAssignment(handler AssignmentHandler)
}
