package mq

import (
	"context"
	"fmt"

	"github.com/civictrack/apiserver/config"
)

// Open connects to the broker selected by cfg.Backend. It returns nil when
// no backend is configured.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return New(client), nil
	case "pubsub":
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return New(client), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
