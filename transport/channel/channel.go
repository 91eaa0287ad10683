// Package channel provides the in-process transport. Requests and replies
// share one Watermill GoChannel, so a responder running in the same process
// can answer bridged calls without a broker.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/flowgate/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// OutputBuffer is the per-subscription buffer of the shared GoChannel.
const OutputBuffer = 64

// Factory allows overriding the channel creation for testing.
var Factory = func(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return NewPubSub(logger)
}

func init() {
	Register()
}

// Register adds the channel transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// NewPubSub creates a GoChannel suitable for both request and reply topics.
func NewPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)
}

// FromPubSub wraps an existing GoChannel, letting tests and embedded
// responders share it with the gateway.
func FromPubSub(ps *gochannel.GoChannel) transport.Transport {
	return transport.Transport{Publisher: ps, Subscriber: ps}
}

// Build creates a fresh in-process transport.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return FromPubSub(Factory(logger)), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
