package events

import (
	"context"
	"sync"
	"time"

	rdkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/flachnetz/transit/lib/clock"
	"github.com/flachnetz/transit/lib/events/avro"
	"github.com/flachnetz/transit/lib/kafka"
)

// Client is the part of the kafka producer a Producer needs. It is implemented
// by *kafka.Connection and can be shared by many producers.
type Client interface {
	Produce(msg *rdkafka.Message, deliveryChan chan rdkafka.Event) error
	Flush(timeoutMs int) int
}

type ProducerConfig struct {
	Topic kafka.Topic

	// Schemas of key and value, nil for schema-less topics.
	KeySchema   *avro.Schema
	ValueSchema *avro.Schema

	// Publish fails if the message could not be queued within this time.
	SendTimeout time.Duration

	// Maximum time Close waits for pending messages.
	FlushTimeout time.Duration
}

// Producer publishes key/value pairs to exactly one topic.
type Producer struct {
	log     *logrus.Entry
	config  ProducerConfig
	encoder Encoder
	client  Client

	mu     sync.RWMutex
	closed bool
}

// NewProducer ensures that the topic exists before returning a producer for it.
func NewProducer(ctx context.Context, topics *kafka.TopicRegistry, client Client, encoder Encoder, config ProducerConfig) (*Producer, error) {
	if config.SendTimeout <= 0 {
		config.SendTimeout = 5 * time.Second
	}

	if config.FlushTimeout <= 0 {
		config.FlushTimeout = 15 * time.Second
	}

	if err := topics.EnsureExists(ctx, config.Topic); err != nil {
		return nil, errors.WithMessage(err, "ensure topic")
	}

	producer := &Producer{
		log:     logrus.WithField("prefix", "producer").WithField("topic", config.Topic.Name),
		config:  config,
		encoder: encoder,
		client:  client,
	}

	return producer, nil
}

func (p *Producer) Topic() string {
	return p.config.Topic.Name
}

// Publish encodes the key and value and hands them to the kafka client. This does not
// wait for the delivery but blocks at most SendTimeout if the clients queue is full.
func (p *Producer) Publish(ctx context.Context, key, value interface{}) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.WithMessagef(ErrInvalidState, "publish to %s", p.config.Topic.Name)
	}

	msg, err := p.buildKafkaMsg(key, value)
	if err != nil {
		return err
	}

	return p.produce(ctx, msg)
}

func (p *Producer) buildKafkaMsg(key, value interface{}) (*rdkafka.Message, error) {
	topic := p.config.Topic.Name

	encodedKey, err := p.encoder.Encode(KeySubject(topic), p.config.KeySchema, key)
	if err != nil {
		return nil, errors.WithMessagef(err, "encode key for %s", topic)
	}

	encodedValue, err := p.encoder.Encode(ValueSubject(topic), p.config.ValueSchema, value)
	if err != nil {
		return nil, errors.WithMessagef(err, "encode value for %s", topic)
	}

	msg := &rdkafka.Message{
		TopicPartition: rdkafka.TopicPartition{
			Topic:     &topic,
			Partition: rdkafka.PartitionAny,
		},
		Key:   encodedKey,
		Value: encodedValue,
		Headers: []rdkafka.Header{
			{Key: "event-id", Value: []byte(clock.GenerateId())},
		},
	}

	return msg, nil
}

func (p *Producer) produce(ctx context.Context, msg *rdkafka.Message) error {
	deadline := time.Now().Add(p.config.SendTimeout)

	for {
		err := p.client.Produce(msg, nil)
		if err == nil {
			return nil
		}

		var kafkaErr rdkafka.Error
		if !errors.As(err, &kafkaErr) || kafkaErr.Code() != rdkafka.ErrQueueFull {
			return errors.WithMessagef(err, "produce to %s", p.config.Topic.Name)
		}

		// if the internal queue is full, we block a moment and then try again
		wait := 100 * time.Millisecond
		if remaining := time.Until(deadline); remaining < wait {
			if remaining <= 0 {
				return errors.WithMessagef(err, "queue full for %s after %s", p.config.Topic.Name, p.config.SendTimeout)
			}

			wait = remaining
		}

		select {
		case <-ctx.Done():
			return errors.WithMessage(ctx.Err(), "waiting for producer queue")
		case <-time.After(wait):
		}
	}
}

// Close flushes all messages that are not yet delivered. Publishing after
// Close fails with ErrInvalidState. Closing twice is a no-op.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	p.log.Debug("Flush the producer")
	if remaining := p.client.Flush(int(p.config.FlushTimeout.Milliseconds())); remaining > 0 {
		return errors.Errorf("%d messages still queued after flushing %s", remaining, p.config.Topic.Name)
	}

	return nil
}
