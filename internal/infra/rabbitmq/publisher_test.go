package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bindery-orders/internal/domain"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (c *recordingChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	ch := &recordingChannel{}
	p := &Publisher{channel: ch, exchange: "order.exchange"}

	evt := domain.OrderEvent{Type: domain.EventOrderCreated, OrderID: "o1", Status: domain.StatusPaid, Total: 27000, OccurredAt: time.Now()}
	require.NoError(t, p.Publish(context.Background(), domain.EventOrderCreated, evt))

	assert.Equal(t, "order.exchange", ch.exchange)
	assert.Equal(t, "order.created", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var got struct {
		Pattern string            `json:"pattern"`
		Data    domain.OrderEvent `json:"data"`
		ID      string            `json:"id"`
	}
	require.NoError(t, json.Unmarshal(ch.msg.Body, &got))
	assert.Equal(t, "order.created", got.Pattern)
	assert.Equal(t, "o1", got.Data.OrderID)
	assert.Equal(t, ch.msg.MessageId, got.ID)

	p.Close()
	assert.True(t, ch.closed)
}

func TestPublisher_PublishError(t *testing.T) {
	p := &Publisher{channel: &recordingChannel{err: errors.New("channel closed")}, exchange: "x"}
	err := p.Publish(context.Background(), "order.created", map[string]any{})
	assert.ErrorContains(t, err, "channel closed")
}
