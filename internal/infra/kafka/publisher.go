package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"

	"github.com/segmentio/kafka-go"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes order events to one topic, keyed by order id so that every
// event of an order lands on the same partition.
type Publisher struct {
	writer writer
}

var _ infra.EventPublisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}}
}

func (p *Publisher) Publish(ctx context.Context, pattern string, data any) error {
	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := pattern
	if evt, ok := data.(domain.OrderEvent); ok {
		key = evt.OrderID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "pattern", Value: []byte(pattern)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", pattern, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
