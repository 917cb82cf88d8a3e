package consumer

import (
	"strings"
	"time"

	rdkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/pkg/errors"
)

// Client is the subscription handle of a consumer.
type Client interface {
	// Subscribe to all topics matching the pattern. onAssign is invoked directly
	// by the client for every partition assignment, possibly more than once.
	Subscribe(pattern string, onAssign AssignFunc) error

	// Poll waits at most timeout for the next event. Returns nil if there is none.
	Poll(timeout time.Duration) rdkafka.Event

	// Close releases the subscription so the group can rebalance.
	Close() error
}

// Assigner activates a partition assignment. Implemented by *kafka.Consumer.
type Assigner interface {
	Assign(partitions []rdkafka.TopicPartition) error
}

type AssignFunc func(assigner Assigner, partitions []rdkafka.TopicPartition) error

type KafkaConfig struct {
	BootstrapServers []string

	// Consumer group, defaults to the topic pattern.
	GroupID string

	// Additional librdkafka properties, applied last.
	Extra rdkafka.ConfigMap
}

func (c KafkaConfig) ConfigMap(pattern string) *rdkafka.ConfigMap {
	groupID := c.GroupID
	if groupID == "" {
		groupID = pattern
	}

	configMap := rdkafka.ConfigMap{
		"bootstrap.servers": strings.Join(c.BootstrapServers, ","),
		"group.id":          groupID,
		"auto.offset.reset": "earliest",
	}

	for key, value := range c.Extra {
		configMap[key] = value
	}

	return &configMap
}

type kafkaClient struct {
	consumer *rdkafka.Consumer
}

// NewKafkaClient creates a Client backed by a confluent kafka consumer.
func NewKafkaClient(config KafkaConfig, pattern string) (Client, error) {
	consumer, err := rdkafka.NewConsumer(config.ConfigMap(pattern))
	if err != nil {
		return nil, errors.Wrap(err, "create kafka consumer")
	}

	return kafkaClient{consumer: consumer}, nil
}

func (c kafkaClient) Subscribe(pattern string, onAssign AssignFunc) error {
	rebalance := func(consumer *rdkafka.Consumer, event rdkafka.Event) error {
		switch ev := event.(type) {
		case rdkafka.AssignedPartitions:
			return onAssign(consumer, ev.Partitions)

		case rdkafka.RevokedPartitions:
			return consumer.Unassign()
		}

		return nil
	}

	return errors.Wrapf(c.consumer.SubscribeTopics([]string{pattern}, rebalance), "subscribe to %s", pattern)
}

func (c kafkaClient) Poll(timeout time.Duration) rdkafka.Event {
	return c.consumer.Poll(int(timeout.Milliseconds()))
}

func (c kafkaClient) Close() error {
	return c.consumer.Close()
}
