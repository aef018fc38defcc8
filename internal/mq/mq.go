package mq

import (
	"context"
	"fmt"

	"github.com/nebulasphere007-cell/MockZen/config"
)

// Message is a broker-agnostic delivery.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to nack it for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by every broker.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Open connects to the configured broker. An empty backend yields Discard.
func Open(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch cfg.Backend {
	case "":
		return Discard{}, nil
	case "rabbitmq":
		return NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Discard drops published messages and never delivers any.
type Discard struct{}

func (Discard) Publish(context.Context, string, []byte, map[string]string) (string, error) {
	return "", nil
}

func (Discard) Subscribe(ctx context.Context, _ string, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (Discard) Close() error { return nil }

var (
	_ Backend = Discard{}
	_ Backend = (*RabbitMQClient)(nil)
	_ Backend = (*PubSubClient)(nil)
)
