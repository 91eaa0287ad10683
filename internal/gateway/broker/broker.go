// Package broker turns fire-and-forget pub/sub into request/response calls.
//
// Every awaited call publishes an envelope stamped with a fresh correlation
// id and the reply address of this instance, then parks on a one-shot
// continuation until a reply with the same id arrives on the reply topic or
// the call times out. Exactly one of the two wins: whichever removes the
// pending entry first.
package broker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowgate/internal/gateway/envelope"
	errspkg "github.com/drblury/flowgate/internal/runtime/errors"
	"github.com/drblury/flowgate/internal/runtime/ids"
	"github.com/drblury/flowgate/internal/runtime/logging"
	"github.com/drblury/flowgate/internal/runtime/metadata"
	"github.com/drblury/flowgate/transport"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultReplyTopic = "api-gw-responses"
	DefaultTimeout    = 30 * time.Second
)

// Config tunes a Broker.
type Config struct {
	// ReplyTopic is the topic this instance consumes replies from.
	ReplyTopic string
	// DefaultTopic receives calls that name no topic.
	DefaultTopic string
	// DefaultTimeout bounds awaited calls that set no timeout.
	DefaultTimeout time.Duration
	// MaxMessageSize rejects larger encoded envelopes before publishing;
	// 0 disables the check.
	MaxMessageSize int64
}

// Call describes one bridged request.
type Call struct {
	Topic   string
	Data    any
	Headers envelope.Headers
	// PartitionKeyPath is a dot-separated path into Data; see PartitionKey.
	PartitionKeyPath string
	Timeout          time.Duration
	// NoWait publishes without registering for a reply.
	NoWait bool
}

// Broker correlates outbound calls with replies.
type Broker struct {
	cfg       Config
	publisher message.Publisher
	logger    logging.ServiceLogger

	// correlation id -> chan envelope.Message (capacity 1)
	pending  sync.Map
	inFlight atomic.Int64

	addrMu     sync.RWMutex
	partitions []int32
	ready      chan struct{}
	readyOnce  sync.Once
}

// New creates a Broker publishing through publisher. Call WatchAssignments
// with the reply subscriber before the first awaited call.
func New(cfg Config, publisher message.Publisher, logger logging.ServiceLogger) (*Broker, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if cfg.ReplyTopic == "" {
		cfg.ReplyTopic = DefaultReplyTopic
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	return &Broker{
		cfg:       cfg,
		publisher: publisher,
		logger:    logging.WithComponent(logger, "broker"),
		ready:     make(chan struct{}),
	}, nil
}

// ReplyTopic returns the topic replies are expected on.
func (b *Broker) ReplyTopic() string { return b.cfg.ReplyTopic }

// WatchAssignments hooks the broker into the reply subscriber. Subscribers
// that report partition assignments make the broker wait for the first
// assignment; all others make it ready at once.
func (b *Broker) WatchAssignments(sub message.Subscriber) {
	reporter, ok := sub.(transport.AssignmentReporter)
	if !ok {
		b.markReady()
		return
	}
	reporter.OnAssignment(b.assign)
}

func (b *Broker) assign(topic string, partitions []int32) {
	if topic != b.cfg.ReplyTopic {
		return
	}
	sorted := slices.Clone(partitions)
	slices.Sort(sorted)

	b.addrMu.Lock()
	b.partitions = sorted
	b.addrMu.Unlock()

	b.logger.Info("Reply partitions assigned", logging.LogFields{
		"topic":      topic,
		"partitions": sorted,
	})
	if len(sorted) > 0 {
		b.markReady()
	}
}

func (b *Broker) markReady() {
	b.readyOnce.Do(func() { close(b.ready) })
}

// Ready is closed once the broker can address replies to itself.
func (b *Broker) Ready() <-chan struct{} { return b.ready }

// ReplyPartition returns the partition responders should reply to, if one
// has been assigned.
func (b *Broker) ReplyPartition() (int32, bool) {
	b.addrMu.RLock()
	defer b.addrMu.RUnlock()
	if len(b.partitions) == 0 {
		return 0, false
	}
	return b.partitions[0], true
}

// Pending returns the number of calls awaiting a reply.
func (b *Broker) Pending() int {
	return int(b.inFlight.Load())
}

// Request publishes call and, unless call.NoWait is set, waits for the
// correlated reply. A missing reply yields an error wrapping
// errors.ErrTimeout.
func (b *Broker) Request(ctx context.Context, call Call) (envelope.Message, error) {
	topic := call.Topic
	if topic == "" {
		topic = b.cfg.DefaultTopic
	}
	if topic == "" {
		return envelope.Message{}, errspkg.ErrTopicRequired
	}

	headers := call.Headers.Clone()
	headers[envelope.HeaderAwaitsResponse] = !call.NoWait

	key, hasKey := PartitionKey(call.PartitionKeyPath, call.Data)

	if call.NoWait {
		msg := envelope.NewCorrelated(call.Data, headers)
		return envelope.Message{}, b.publish(ctx, topic, msg, key, hasKey)
	}

	timeout := call.Timeout
	if timeout <= 0 {
		timeout = b.cfg.DefaultTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-b.ready:
	case <-waitCtx.Done():
		return envelope.Message{}, b.waitError(waitCtx, "", timeout)
	}

	headers[envelope.HeaderTopicToRespond] = b.cfg.ReplyTopic
	if partition, ok := b.ReplyPartition(); ok {
		headers[envelope.HeaderPartitionToRespond] = partition
	}
	msg := envelope.NewCorrelated(call.Data, headers)
	id := msg.CorrelationID()

	reply := make(chan envelope.Message, 1)
	b.pending.Store(id, reply)
	b.inFlight.Add(1)

	if err := b.publish(waitCtx, topic, msg, key, hasKey); err != nil {
		b.claim(id)
		return envelope.Message{}, err
	}

	select {
	case m := <-reply:
		return m, nil
	case <-waitCtx.Done():
		if _, ok := b.claim(id); ok {
			b.logger.Debug("Call deregistered without reply", logging.LogFields{
				"correlation_id": id,
				"topic":          topic,
			})
			return envelope.Message{}, b.waitError(waitCtx, id, timeout)
		}
		// A reply claimed the entry first; its send never blocks.
		return <-reply, nil
	}
}

func (b *Broker) waitError(ctx context.Context, id string, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: correlation %q after %s", errspkg.ErrTimeout, id, timeout)
	}
	return ctx.Err()
}

// claim removes the pending entry for id. Only the first caller gets it.
func (b *Broker) claim(id string) (chan envelope.Message, bool) {
	v, ok := b.pending.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	b.inFlight.Add(-1)
	return v.(chan envelope.Message), true
}

func (b *Broker) publish(ctx context.Context, topic string, msg envelope.Correlated, key string, hasKey bool) error {
	payload, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %w", errspkg.ErrPublish, err)
	}
	if b.cfg.MaxMessageSize > 0 && int64(len(payload)) > b.cfg.MaxMessageSize {
		return fmt.Errorf("%w: envelope of %d bytes exceeds %d", errspkg.ErrPublish, len(payload), b.cfg.MaxMessageSize)
	}

	md := metadata.New(metadata.KeyCorrelationID, msg.CorrelationID())
	if hasKey {
		md = md.With(transport.MetadataKeyPartitionKey, key)
	}
	if name, ok := msg.Message().Headers["messageName"].(string); ok && name != "" {
		md = md.With(metadata.KeyMessageName, name)
	}

	wm := message.NewMessage(ids.CreateULID(), payload)
	wm.Metadata = metadata.ToWatermill(md)
	wm.SetContext(ctx)

	if err := b.publisher.Publish(topic, wm); err != nil {
		return fmt.Errorf("%w: topic %s: %w", errspkg.ErrPublish, topic, err)
	}
	b.logger.Trace("Published bridged call", logging.LogFields{
		"correlation_id": msg.CorrelationID(),
		"topic":          topic,
		"keyed":          hasKey,
	})
	return nil
}

// HandleReply routes a reply to its waiting call. It never fails: undecodable
// replies and replies for unknown or expired calls are dropped.
func (b *Broker) HandleReply(msg *message.Message) error {
	reply, err := envelope.Decode(msg.Payload)
	if err != nil {
		b.logger.Debug("Dropping undecodable reply", logging.LogFields{
			"message_uuid": msg.UUID,
			"error":        err.Error(),
		})
		return nil
	}
	id, ok := reply.CorrelationID()
	if !ok {
		b.logger.Debug("Dropping reply without correlation id", logging.LogFields{"message_uuid": msg.UUID})
		return nil
	}
	ch, ok := b.claim(id)
	if !ok {
		b.logger.Trace("No pending call for reply", logging.LogFields{"correlation_id": id})
		return nil
	}
	ch <- reply
	return nil
}
