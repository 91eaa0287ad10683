package transport

// Capabilities describes what a backend offers the bridge.
type Capabilities struct {
	Name string

	// SupportsKeyedPublish means MetadataKeyPartitionKey decides placement, so
	// messages sharing a key stay ordered.
	SupportsKeyedPublish bool

	// SupportsReplyAddressing means the reply subscriber reports its partition
	// assignment, letting responders target one gateway instance.
	SupportsReplyAddressing bool

	SupportsOrdering bool
	SupportsTracing  bool
	SupportsAck      bool

	// MaxMessageSize in bytes; 0 means unknown.
	MaxMessageSize int64
}

// FitsMessage reports whether a payload of size bytes can be published.
func (c Capabilities) FitsMessage(size int) bool {
	return c.MaxMessageSize <= 0 || int64(size) <= c.MaxMessageSize
}

// SharesReplyTopic reports whether replies meant for other gateway instances
// may be delivered here. The broker drops those as unknown correlations.
func (c Capabilities) SharesReplyTopic() bool {
	return !c.SupportsReplyAddressing
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
	}

	KafkaCapabilities = Capabilities{
		Name:                    "kafka",
		SupportsKeyedPublish:    true,
		SupportsReplyAddressing: true,
		SupportsOrdering:        true,
		SupportsTracing:         true,
		SupportsAck:             true,
		MaxMessageSize:          1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		MaxMessageSize:   262144,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}
)

// GetCapabilities looks a transport up in the default registry.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
