package rabbitmq

import (
	"bindery-orders/internal/infra"

	"github.com/streadway/amqp"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var (
	_ infra.EventPublisher = (*Publisher)(nil)
	_ channel              = (*amqp.Channel)(nil)
)
