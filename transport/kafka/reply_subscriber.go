package kafka

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowgate/transport"
)

// ConsumerGroup is the part of sarama.ConsumerGroup the reply subscriber uses.
type ConsumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	Errors() <-chan error
	Close() error
}

// ConsumerGroupFactory allows overriding the consumer group creation for
// testing.
var ConsumerGroupFactory = func(brokers []string, group string, cfg *sarama.Config) (ConsumerGroup, error) {
	return sarama.NewConsumerGroup(brokers, group, cfg)
}

const rejoinBackoff = time.Second

// ReplySubscriberConfig configures a ReplySubscriber.
type ReplySubscriberConfig struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string
	// OverwriteSaramaConfig replaces ReplySaramaConfig when set.
	OverwriteSaramaConfig *sarama.Config
	Unmarshaler           kafka.Unmarshaler
}

// ReplySaramaConfig starts from the newest offset and commits every 10ms so a
// restarted gateway does not replay replies nobody waits for.
func ReplySaramaConfig(clientID string) *sarama.Config {
	cfg := kafka.DefaultSaramaSubscriberConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	cfg.Consumer.Offsets.AutoCommit.Interval = 10 * time.Millisecond
	cfg.Consumer.Return.Errors = true
	if clientID != "" {
		cfg.ClientID = clientID
	}
	return cfg
}

// ReplySubscriber consumes a reply topic through a consumer group and tells
// registered handlers which partitions this process owns.
type ReplySubscriber struct {
	config ReplySubscriberConfig
	sarama *sarama.Config
	logger watermill.LoggerAdapter

	mu       sync.Mutex
	handlers []transport.AssignmentHandler
	closing  chan struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewReplySubscriber validates cfg. Nothing connects until Subscribe.
func NewReplySubscriber(cfg ReplySubscriberConfig, logger watermill.LoggerAdapter) (*ReplySubscriber, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, errors.New("kafka: reply consumer group is required")
	}
	if cfg.Unmarshaler == nil {
		cfg.Unmarshaler = kafka.DefaultMarshaler{}
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	saramaCfg := cfg.OverwriteSaramaConfig
	if saramaCfg == nil {
		saramaCfg = ReplySaramaConfig(cfg.ClientID)
	}
	return &ReplySubscriber{
		config:  cfg,
		sarama:  saramaCfg,
		logger:  logger.With(watermill.LogFields{"consumer_group": cfg.ConsumerGroup}),
		closing: make(chan struct{}),
	}, nil
}

// OnAssignment registers h. It is called after every rebalance.
func (s *ReplySubscriber) OnAssignment(h transport.AssignmentHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *ReplySubscriber) notify(topic string, partitions []int32) {
	owned := slices.Clone(partitions)
	slices.Sort(owned)

	s.mu.Lock()
	handlers := slices.Clone(s.handlers)
	s.mu.Unlock()

	s.logger.Info("Reply partitions assigned", watermill.LogFields{"topic": topic, "partitions": owned})
	for _, h := range handlers {
		h(topic, owned)
	}
}

// Subscribe joins the consumer group for topic. The channel closes when ctx
// is done or the subscriber is closed.
func (s *ReplySubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("kafka: reply subscriber closed")
	}
	s.wg.Add(1)
	s.mu.Unlock()

	group, err := ConsumerGroupFactory(s.config.Brokers, s.config.ConsumerGroup, s.sarama)
	if err != nil {
		s.wg.Done()
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *message.Message)
	handler := &claimHandler{topic: topic, out: out, sub: s}

	go func() {
		select {
		case <-s.closing:
		case <-ctx.Done():
		}
		cancel()
	}()

	go func() {
		for err := range group.Errors() {
			s.logger.Error("Reply consumer error", err, watermill.LogFields{"topic": topic})
		}
	}()

	go func() {
		defer s.wg.Done()
		defer close(out)
		defer func() {
			if err := group.Close(); err != nil {
				s.logger.Error("Closing reply consumer group failed", err, nil)
			}
		}()

		for {
			err := group.Consume(ctx, []string{topic}, handler)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
				return
			}
			if err != nil {
				s.logger.Error("Reply consumer session ended", err, watermill.LogFields{"topic": topic})
				select {
				case <-ctx.Done():
					return
				case <-time.After(rejoinBackoff):
				}
			}
		}
	}()

	return out, nil
}

// Close stops every subscription and waits for them to finish.
func (s *ReplySubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

type claimHandler struct {
	topic string
	out   chan<- *message.Message
	sub   *ReplySubscriber
}

func (h *claimHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.sub.notify(h.topic, sess.Claims()[h.topic])
	return nil
}

func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim hands each record to the router and waits for its ack.
// Replies are never redelivered: a nacked reply is logged and committed.
func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case record, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !h.deliver(ctx, record) {
				return nil
			}
			sess.MarkMessage(record, "")
		}
	}
}

func (h *claimHandler) deliver(ctx context.Context, record *sarama.ConsumerMessage) bool {
	fields := watermill.LogFields{"topic": record.Topic, "partition": record.Partition, "offset": record.Offset}

	msg, err := h.sub.config.Unmarshaler.Unmarshal(record)
	if err != nil {
		h.sub.logger.Error("Dropping undecodable reply", err, fields)
		return true
	}
	msg.SetContext(ctx)

	select {
	case h.out <- msg:
	case <-ctx.Done():
		return false
	}

	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		h.sub.logger.Info("Reply nacked, not redelivering", fields)
	case <-ctx.Done():
		return false
	}
	return true
}
