// Package kafka provides the Kafka transport: keyed publishing for bridged
// requests and a consumer-group reply subscriber that reports its partition
// assignment.
package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowgate/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

func init() {
	Register()
}

// Register adds the Kafka transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates the Kafka transport. The reply subscriber connects lazily on
// Subscribe.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return transport.Transport{}, fmt.Errorf("kafka: at least one broker is required")
	}

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             KeyedMarshaler{},
			OverwriteSaramaConfig: PublisherSaramaConfig(cfg.GetKafkaClientID()),
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("kafka publisher: %w", err)
	}

	subscriber, err := NewReplySubscriber(ReplySubscriberConfig{
		Brokers:       brokers,
		ConsumerGroup: cfg.GetKafkaConsumerGroup(),
		ClientID:      cfg.GetKafkaClientID(),
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// PublisherSaramaConfig is the producer setup for bridged requests: no broker
// acknowledgement and LZ4 compression.
func PublisherSaramaConfig(clientID string) *sarama.Config {
	cfg := kafka.DefaultSaramaSyncPublisherConfig()
	cfg.Producer.RequiredAcks = sarama.NoResponse
	cfg.Producer.Compression = sarama.CompressionLZ4
	if clientID != "" {
		cfg.ClientID = clientID
	}
	return cfg
}

// KeyedMarshaler is the watermill default marshaler plus the partition key
// taken from transport.MetadataKeyPartitionKey. Messages without a key are
// left to the partitioner.
type KeyedMarshaler struct {
	kafka.DefaultMarshaler
}

func (m KeyedMarshaler) Marshal(topic string, msg *message.Message) (*sarama.ProducerMessage, error) {
	pm, err := m.DefaultMarshaler.Marshal(topic, msg)
	if err != nil {
		return nil, err
	}
	if key := msg.Metadata.Get(transport.MetadataKeyPartitionKey); key != "" {
		pm.Key = sarama.StringEncoder(key)
	}
	return pm, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
