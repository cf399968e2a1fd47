package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	pubErr    error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return nil, errors.New("not used")
}

func (f *fakeChannel) Close() error { return nil }

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func newTestAMQPClient(ch *fakeChannel) *AMQPClient {
	return &AMQPClient{
		ch:         ch,
		queue:      "letters_import",
		MaxRetries: 2,
		RetryDelay: func(int) time.Duration { return 0 },
	}
}

func delivery(ack amqp.Acknowledger, headers amqp.Table) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		Headers:      headers,
		MessageId:    "b1",
		Body:         []byte(`{"batchId":"b1"}`),
	}
}

func TestAMQPSendPublishesPersistentMessage(t *testing.T) {
	ch := &fakeChannel{}
	client := newTestAMQPClient(ch)

	require.NoError(t, client.Send(context.Background(), Message{BatchID: "b1", Version: 1}))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "letters_import", ch.keys[0])
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "b1", ch.published[0].MessageId)
}

func TestAMQPDeliveryAckedOnSuccess(t *testing.T) {
	ack := &fakeAcknowledger{}
	client := newTestAMQPClient(&fakeChannel{})

	client.handleDelivery(context.Background(), delivery(ack, nil), func(context.Context, []byte) error { return nil })

	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 0, ack.nacks)
}

func TestAMQPDeliveryRepublishedWithRetryHeader(t *testing.T) {
	ack := &fakeAcknowledger{}
	ch := &fakeChannel{}
	client := newTestAMQPClient(ch)

	client.handleDelivery(context.Background(), delivery(ack, amqp.Table{retryHeader: int32(1)}), func(context.Context, []byte) error {
		return errors.New("registry unavailable")
	})

	require.Len(t, ch.published, 1)
	assert.Equal(t, int32(2), ch.published[0].Headers[retryHeader])
	assert.Equal(t, 1, ack.acks)
}

func TestAMQPDeliveryDroppedAfterMaxRetries(t *testing.T) {
	ack := &fakeAcknowledger{}
	ch := &fakeChannel{}
	client := newTestAMQPClient(ch)

	client.handleDelivery(context.Background(), delivery(ack, amqp.Table{retryHeader: int32(2)}), func(context.Context, []byte) error {
		return errors.New("still failing")
	})

	assert.Empty(t, ch.published)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}

func TestAMQPDeliveryDroppedWhenNotRetryable(t *testing.T) {
	ack := &fakeAcknowledger{}
	ch := &fakeChannel{}
	client := newTestAMQPClient(ch)
	client.Retryable = func(error) bool { return false }

	client.handleDelivery(context.Background(), delivery(ack, nil), func(context.Context, []byte) error {
		return errors.New("decode message")
	})

	assert.Empty(t, ch.published)
	assert.Equal(t, 1, ack.nacks)
}

func TestAMQPDeliveryRequeuedWhenRepublishFails(t *testing.T) {
	ack := &fakeAcknowledger{}
	client := newTestAMQPClient(&fakeChannel{pubErr: errors.New("channel closed")})

	client.handleDelivery(context.Background(), delivery(ack, nil), func(context.Context, []byte) error {
		return errors.New("boom")
	})

	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue)
}

func TestRetryCountHeaderTypes(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 3, retryCount(amqp.Table{retryHeader: int32(3)}))
	assert.Equal(t, 4, retryCount(amqp.Table{retryHeader: int64(4)}))
	assert.Equal(t, 0, retryCount(amqp.Table{retryHeader: "x"}))
}
