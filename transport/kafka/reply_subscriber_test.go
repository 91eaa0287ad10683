package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClaim struct {
	topic     string
	partition int32
	messages  chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return c.topic }
func (c *fakeClaim) Partition() int32                         { return c.partition }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type fakeSession struct {
	ctx    context.Context
	claims map[string][]int32

	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return s.claims }
func (s *fakeSession) MemberID() string           { return "member-1" }
func (s *fakeSession) GenerationID() int32        { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string) {
}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {
}
func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) markedOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

// fakeGroup runs one session per Consume call over a single claim.
type fakeGroup struct {
	claim   *fakeClaim
	owned   []int32
	session chan *fakeSession
	errs    chan error
	closed  chan struct{}
	once    sync.Once
}

func newFakeGroup(topic string, owned ...int32) *fakeGroup {
	return &fakeGroup{
		claim:   &fakeClaim{topic: topic, partition: owned[0], messages: make(chan *sarama.ConsumerMessage, 4)},
		owned:   owned,
		session: make(chan *fakeSession, 1),
		errs:    make(chan error),
		closed:  make(chan struct{}),
	}
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	sess := &fakeSession{ctx: ctx, claims: map[string][]int32{topics[0]: g.owned}}
	if err := handler.Setup(sess); err != nil {
		return err
	}
	g.session <- sess
	err := handler.ConsumeClaim(sess, g.claim)
	_ = handler.Cleanup(sess)
	return err
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	g.once.Do(func() {
		close(g.errs)
		close(g.closed)
	})
	return nil
}

func withFakeGroup(t *testing.T, g *fakeGroup) {
	t.Helper()
	original := ConsumerGroupFactory
	ConsumerGroupFactory = func(brokers []string, group string, cfg *sarama.Config) (ConsumerGroup, error) {
		assert.Equal(t, "gateways", group)
		assert.Equal(t, sarama.OffsetNewest, cfg.Consumer.Offsets.Initial)
		return g, nil
	}
	t.Cleanup(func() { ConsumerGroupFactory = original })
}

func newTestSubscriber(t *testing.T) *ReplySubscriber {
	t.Helper()
	sub, err := NewReplySubscriber(ReplySubscriberConfig{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "gateways",
	}, watermill.NopLogger{})
	require.NoError(t, err)
	return sub
}

func TestNewReplySubscriberValidates(t *testing.T) {
	_, err := NewReplySubscriber(ReplySubscriberConfig{ConsumerGroup: "g"}, nil)
	assert.Error(t, err)
	_, err = NewReplySubscriber(ReplySubscriberConfig{Brokers: []string{"b"}}, nil)
	assert.Error(t, err)
}

func TestReplySubscriberReportsAssignment(t *testing.T) {
	group := newFakeGroup("api-gw-responses", 5, 2)
	withFakeGroup(t, group)
	sub := newTestSubscriber(t)
	defer sub.Close()

	assigned := make(chan []int32, 1)
	sub.OnAssignment(func(topic string, partitions []int32) {
		assert.Equal(t, "api-gw-responses", topic)
		assigned <- partitions
	})

	_, err := sub.Subscribe(context.Background(), "api-gw-responses")
	require.NoError(t, err)

	select {
	case got := <-assigned:
		assert.Equal(t, []int32{2, 5}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("assignment was not reported")
	}
}

func TestReplySubscriberDeliversAndCommits(t *testing.T) {
	group := newFakeGroup("api-gw-responses", 0)
	withFakeGroup(t, group)
	sub := newTestSubscriber(t)
	defer sub.Close()

	out, err := sub.Subscribe(context.Background(), "api-gw-responses")
	require.NoError(t, err)
	sess := <-group.session

	group.claim.messages <- &sarama.ConsumerMessage{
		Topic:  "api-gw-responses",
		Offset: 41,
		Value:  []byte(`{"headers":{"id":"c-1"},"data":{"ok":true}}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte("correlation_id"), Value: []byte("c-1")},
		},
	}

	select {
	case msg := <-out:
		assert.JSONEq(t, `{"headers":{"id":"c-1"},"data":{"ok":true}}`, string(msg.Payload))
		assert.Equal(t, "c-1", msg.Metadata.Get("correlation_id"))
		assert.Empty(t, sess.markedOffsets())
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("reply was not delivered")
	}

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]int64{41}, sess.markedOffsets())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReplySubscriberCommitsNackedReplies(t *testing.T) {
	group := newFakeGroup("replies", 0)
	withFakeGroup(t, group)
	sub := newTestSubscriber(t)
	defer sub.Close()

	out, err := sub.Subscribe(context.Background(), "replies")
	require.NoError(t, err)
	sess := <-group.session

	group.claim.messages <- &sarama.ConsumerMessage{Topic: "replies", Offset: 7, Value: []byte(`{}`)}
	(<-out).Nack()

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]int64{7}, sess.markedOffsets())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReplySubscriberStopsOnContextCancel(t *testing.T) {
	group := newFakeGroup("replies", 0)
	withFakeGroup(t, group)
	sub := newTestSubscriber(t)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out, err := sub.Subscribe(ctx, "replies")
	require.NoError(t, err)
	<-group.session

	cancel()
	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("output channel was not closed")
	}
	<-group.closed
}

func TestReplySubscriberClose(t *testing.T) {
	group := newFakeGroup("replies", 0)
	withFakeGroup(t, group)
	sub := newTestSubscriber(t)

	out, err := sub.Subscribe(context.Background(), "replies")
	require.NoError(t, err)
	<-group.session

	require.NoError(t, sub.Close())
	_, ok := <-out
	assert.False(t, ok)
	require.NoError(t, sub.Close())

	_, err = sub.Subscribe(context.Background(), "replies")
	assert.Error(t, err)
}
