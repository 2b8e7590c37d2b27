package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/civictrack/apiserver/config"
	"google.golang.org/api/option"
)

// PubSubClient wraps the Google Cloud Pub/Sub SDK client. Topics are created
// on first use and cached for the life of the client.
type PubSubClient struct {
	client             *pubsub.Client
	subscriptionSuffix string

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubClient{
		client:             client,
		subscriptionSuffix: cfg.SubscriptionSuffix,
		topics:             make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends a message to the named topic. The ordering key attribute, when
// present, becomes the Pub/Sub ordering key instead of a plain attribute.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}

	msg := &pubsub.Message{Data: data, Attributes: make(map[string]string, len(attrs))}
	for key, value := range attrs {
		if key == AttrOrderingKey {
			msg.OrderingKey = value
			continue
		}
		msg.Attributes[key] = value
	}

	result := topic.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		topic.ResumePublish(msg.OrderingKey)
	}
	return id, err
}

// Subscribe consumes messages from the named channel until ctx is done.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return err
	}

	sub, err := p.ensureSubscription(ctx, p.subscriptionName(channel), topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		attrs := msg.Attributes
		if msg.OrderingKey != "" {
			attrs = make(map[string]string, len(msg.Attributes)+1)
			for k, v := range msg.Attributes {
				attrs[k] = v
			}
			attrs[AttrOrderingKey] = msg.OrderingKey
		}
		message := Message{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: attrs,
		}
		if err := handler(ctx, message); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close flushes pending publishes and closes the client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	for _, topic := range p.topics {
		topic.Stop()
	}
	p.topics = make(map[string]*pubsub.Topic)
	p.mu.Unlock()
	return p.client.Close()
}

func (p *PubSubClient) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if topic, ok := p.topics[name]; ok {
		return topic, nil
	}

	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		topic, err = p.client.CreateTopic(ctx, name)
		if err != nil {
			return nil, err
		}
	}
	topic.EnableMessageOrdering = true
	p.topics[name] = topic
	return topic, nil
}

func (p *PubSubClient) ensureSubscription(ctx context.Context, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
			Topic:                 topic,
			EnableMessageOrdering: true,
		})
	}
	return sub, nil
}

func (p *PubSubClient) subscriptionName(channel string) string {
	if p.subscriptionSuffix == "" {
		return channel
	}
	return channel + p.subscriptionSuffix
}
