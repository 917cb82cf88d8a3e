package consumer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	rdkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	transitclock "github.com/flachnetz/transit/lib/clock"
	"github.com/flachnetz/transit/lib/events/avro"
	"github.com/flachnetz/transit/startup_logrus"
)

var (
	// ErrClosed is returned when a consumer is used or closed after Close.
	ErrClosed = errors.New("consumer is closed")

	// ErrInvalidState is returned for calls that do not fit the consumers lifecycle.
	ErrInvalidState = errors.New("invalid consumer state")
)

type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Headers   map[string][]byte

	Key   []byte
	Value []byte

	// Decoded key and value, only set for schema typed consumers.
	KeyData   map[string]interface{}
	ValueData map[string]interface{}
}

// Handler processes a single message. An error stops the consumer.
type Handler func(ctx context.Context, msg *Message) error

type Config struct {
	// Time to wait for a single message.
	PollTimeout time.Duration

	// Time to sleep once the topic is drained.
	IdleSleep time.Duration

	// Decodes key and value of schema typed topics. Leave nil for raw topics.
	Decoder *avro.Converter

	Clock   clock.Clock
	Metrics metrics.Registry
}

type state int

const (
	stateCreated state = iota
	stateSubscribed
	stateConsuming
	stateClosed
)

// Consumer drains a subscription until no message is left, sleeps for the
// idle interval and starts over.
type Consumer struct {
	log    *logrus.Entry
	client Client
	config Config

	pattern string
	policy  AssignmentPolicy

	mu      sync.Mutex
	state   state
	cancel  context.CancelFunc
	stopped chan struct{}

	consumed       metrics.Counter
	pollErrors     metrics.Counter
	deliveryErrors metrics.Counter
}

func New(client Client, config Config) *Consumer {
	if config.PollTimeout <= 0 {
		config.PollTimeout = 100 * time.Millisecond
	}

	if config.IdleSleep <= 0 {
		config.IdleSleep = time.Second
	}

	if config.Clock == nil {
		config.Clock = transitclock.GlobalClock
	}

	if config.Metrics == nil {
		config.Metrics = metrics.DefaultRegistry
	}

	return &Consumer{
		log:    logrus.WithField("prefix", "consumer"),
		client: client,
		config: config,
		state:  stateCreated,
	}
}

// Subscribe registers the consumer for all topics matching the pattern. The
// policy is applied to every assignment the broker hands out.
func (c *Consumer) Subscribe(pattern string, policy AssignmentPolicy) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateClosed:
		return ErrClosed
	case stateConsuming:
		return errors.WithMessage(ErrInvalidState, "subscribe while consuming")
	}

	if policy == nil {
		policy = BrokerDefault
	}

	c.log = logrus.WithField("prefix", "consumer").WithField("topic", pattern)
	c.pattern = pattern
	c.policy = policy

	name := metricName(pattern)
	c.consumed = metrics.GetOrRegisterCounter("consumer."+name+".consumed", c.config.Metrics)
	c.pollErrors = metrics.GetOrRegisterCounter("consumer."+name+".poll_errors", c.config.Metrics)
	c.deliveryErrors = metrics.GetOrRegisterCounter("consumer."+name+".delivery_errors", c.config.Metrics)

	if err := c.client.Subscribe(pattern, c.onAssign); err != nil {
		return errors.WithMessage(err, "subscribe")
	}

	c.state = stateSubscribed
	return nil
}

func (c *Consumer) onAssign(assigner Assigner, partitions []rdkafka.TopicPartition) error {
	resolved := c.policy(partitions)

	c.log.Infof("Partitions assigned for %s: %s", c.pattern, describe(resolved))
	return errors.Wrap(assigner.Assign(resolved), "assign partitions")
}

// Run consumes messages until the context is cancelled, the consumer is closed
// or the handler fails. Handler errors are returned as is.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	ctx, err := c.start(ctx)
	if err != nil {
		return err
	}

	defer c.finish()

	c.log.Infof("Start consuming %s", c.pattern)

	for {
		// drain phase: poll back to back as long as there are messages
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			more, err := c.consume(ctx, handler)
			if err != nil {
				return err
			}

			if !more {
				break
			}
		}

		// idle phase
		if err := ctx.Err(); err != nil {
			return err
		}

		if !transitclock.Sleep(c.config.Clock, c.config.IdleSleep, ctx.Done()) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) start(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateClosed:
		return nil, ErrClosed
	case stateCreated:
		return nil, errors.WithMessage(ErrInvalidState, "run before subscribe")
	case stateConsuming:
		return nil, errors.WithMessage(ErrInvalidState, "already consuming")
	}

	ctx, cancel := context.WithCancel(ctx)

	c.state = stateConsuming
	c.cancel = cancel
	c.stopped = make(chan struct{})

	return ctx, nil
}

func (c *Consumer) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
	close(c.stopped)

	if c.state == stateConsuming {
		c.state = stateSubscribed
	}
}

// consume polls a single event. Returns false once the drain phase should end.
func (c *Consumer) consume(ctx context.Context, handler Handler) (bool, error) {
	event := c.client.Poll(c.config.PollTimeout)

	switch ev := event.(type) {
	case nil:
		return false, nil

	case rdkafka.Error:
		c.pollErrors.Inc(1)
		c.log.Errorf("Message poll failed for %s: %s", c.pattern, ev)
		return false, nil

	case *rdkafka.Message:
		if err := ev.TopicPartition.Error; err != nil {
			c.deliveryErrors.Inc(1)
			c.log.Errorf("Error from consumer: %s", err)
			return false, nil
		}

		msg, err := c.messageOf(ev)
		if err != nil {
			c.pollErrors.Inc(1)
			c.log.Errorf("Failed to decode message from %s: %s", msg.Topic, err)
			return false, nil
		}

		logger := c.log.WithFields(logrus.Fields{"partition": msg.Partition, "offset": msg.Offset})

		if err := handler(startup_logrus.WithLogger(ctx, logger), msg); err != nil {
			return false, errors.WithMessagef(err, "handle message from %s", msg.Topic)
		}

		c.consumed.Inc(1)
		c.log.Debugf("Consumed message from %s [%d] at offset %d", msg.Topic, msg.Partition, msg.Offset)
		return true, nil

	default:
		// informational events do not end the drain phase
		c.log.Debugf("Ignoring kafka event: %s", ev)
		return true, nil
	}
}

func (c *Consumer) messageOf(ev *rdkafka.Message) (*Message, error) {
	msg := &Message{
		Partition: ev.TopicPartition.Partition,
		Offset:    int64(ev.TopicPartition.Offset),
		Timestamp: ev.Timestamp,
		Key:       ev.Key,
		Value:     ev.Value,
	}

	if ev.TopicPartition.Topic != nil {
		msg.Topic = *ev.TopicPartition.Topic
	}

	if len(ev.Headers) > 0 {
		msg.Headers = make(map[string][]byte, len(ev.Headers))
		for _, header := range ev.Headers {
			msg.Headers[header.Key] = header.Value
		}
	}

	if c.config.Decoder == nil {
		return msg, nil
	}

	var err error

	if len(msg.Key) > 0 {
		msg.KeyData, err = c.config.Decoder.Parse(msg.Key)
		if err != nil {
			return msg, errors.WithMessage(err, "decode key")
		}
	}

	msg.ValueData, err = c.config.Decoder.Parse(msg.Value)
	if err != nil {
		return msg, errors.WithMessage(err, "decode value")
	}

	return msg, nil
}

// Close stops a running Run call, waits for it to return and releases the
// subscription. Calling Close a second time returns ErrClosed.
func (c *Consumer) Close() error {
	c.mu.Lock()

	if c.state == stateClosed {
		c.mu.Unlock()
		return ErrClosed
	}

	wasConsuming := c.state == stateConsuming
	c.state = stateClosed

	cancel, stopped := c.cancel, c.stopped
	c.mu.Unlock()

	if wasConsuming {
		cancel()
		<-stopped
	}

	c.log.Infof("Closing consumer for %s", c.pattern)
	return errors.Wrap(c.client.Close(), "close kafka consumer")
}

func describe(partitions []rdkafka.TopicPartition) string {
	var parts []string
	for _, partition := range partitions {
		topic := "<nil>"
		if partition.Topic != nil {
			topic = *partition.Topic
		}

		parts = append(parts, fmt.Sprintf("%s[%d]@%s", topic, partition.Partition, partition.Offset))
	}

	return strings.Join(parts, ", ")
}

func metricName(pattern string) string {
	return strings.Trim(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			return r
		}
		return '_'
	}, pattern), "._")
}
