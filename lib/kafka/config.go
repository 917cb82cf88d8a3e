package kafka

import (
	"strings"
	"sync"
	"time"

	rdkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type ConnectionConfig struct {
	BootstrapServers []string

	// Upper bound for the delivery of a single message, including retries.
	SendTimeout time.Duration

	// Additional librdkafka properties, applied last.
	Extra rdkafka.ConfigMap
}

func (c ConnectionConfig) ProducerConfig() *rdkafka.ConfigMap {
	sendTimeout := c.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}

	configMap := rdkafka.ConfigMap{
		"bootstrap.servers":  strings.Join(c.BootstrapServers, ","),
		"message.timeout.ms": int(sendTimeout.Milliseconds()),
		"linger.ms":          100,
	}

	for key, value := range c.Extra {
		configMap[key] = value
	}

	return &configMap
}

// Connection is the broker connection shared by all producers of a process.
// The underlying librdkafka producer is safe for concurrent use.
type Connection struct {
	log      *logrus.Entry
	producer *rdkafka.Producer

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewConnection(config ConnectionConfig) (*Connection, error) {
	producer, err := rdkafka.NewProducer(config.ProducerConfig())
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}

	conn := &Connection{
		log:      logrus.WithField("prefix", "kafka"),
		producer: producer,
	}

	conn.wg.Add(1)
	go conn.handleDeliveryReports()

	return conn, nil
}

func (c *Connection) Produce(msg *rdkafka.Message, deliveryChan chan rdkafka.Event) error {
	return c.producer.Produce(msg, deliveryChan)
}

func (c *Connection) Flush(timeoutMs int) int {
	return c.producer.Flush(timeoutMs)
}

// Admin creates a new admin client that shares the connection of the producer.
func (c *Connection) Admin() (*rdkafka.AdminClient, error) {
	admin, err := rdkafka.NewAdminClientFromProducer(c.producer)
	return admin, errors.Wrap(err, "create admin client")
}

// Close flushes all pending messages and closes the producer.
func (c *Connection) Close() error {
	var remaining int

	c.closeOnce.Do(func() {
		remaining = c.producer.Flush(15 * 1000)
		c.producer.Close()
		c.wg.Wait()
	})

	if remaining > 0 {
		return errors.Errorf("%d messages still queued after flush", remaining)
	}

	return nil
}

func (c *Connection) handleDeliveryReports() {
	defer c.wg.Done()

	for event := range c.producer.Events() {
		switch ev := event.(type) {
		case *rdkafka.Message:
			if err := ev.TopicPartition.Error; err != nil {
				c.log.Errorf("Delivery to %s failed: %s", topicOf(ev), err)
			}

		case rdkafka.Error:
			c.log.Warnf("Kafka producer error: %s", ev)
		}
	}
}

func topicOf(msg *rdkafka.Message) string {
	if msg.TopicPartition.Topic == nil {
		return "<unknown>"
	}

	return *msg.TopicPartition.Topic
}
