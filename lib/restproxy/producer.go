package restproxy

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/flachnetz/transit/lib/events"
	"github.com/flachnetz/transit/lib/kafka"
)

// Producer is an events.Publisher that sends every record with its own
// http request. Publish returns after the rest proxy accepted the record.
type Producer struct {
	client *Client
	config events.ProducerConfig

	mu     sync.RWMutex
	closed bool
}

var _ events.Publisher = (*Producer)(nil)

// NewProducer ensures that the topic exists before returning a producer for it.
func NewProducer(ctx context.Context, topics *kafka.TopicRegistry, client *Client, config events.ProducerConfig) (*Producer, error) {
	if err := topics.EnsureExists(ctx, config.Topic); err != nil {
		return nil, errors.WithMessage(err, "ensure topic")
	}

	return &Producer{client: client, config: config}, nil
}

func (p *Producer) Publish(ctx context.Context, key, value interface{}) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.WithMessagef(events.ErrInvalidState, "publish to %s", p.config.Topic.Name)
	}

	return p.client.Publish(ctx, p.config.Topic.Name, p.config.KeySchema, p.config.ValueSchema,
		Record{Key: key, Value: value})
}

// Close marks the producer as closed. There is nothing to flush, every
// publish is synchronous.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return nil
}
