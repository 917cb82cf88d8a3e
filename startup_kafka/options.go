package startup_kafka

import (
	"context"
	"net/http"
	"sync"
	"time"

	schemaregistry "github.com/Landoop/schema-registry"
	rdkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/hashicorp/go-multierror"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/flachnetz/transit/lib/consumer"
	"github.com/flachnetz/transit/lib/events"
	"github.com/flachnetz/transit/lib/events/avro"
	"github.com/flachnetz/transit/lib/kafka"
	"github.com/flachnetz/transit/lib/restproxy"
	"github.com/flachnetz/transit/startup_base"
)

var log = logrus.WithField("prefix", "kafka")

type KafkaOptions struct {
	KafkaAddresses      []string      `long:"kafka-address" default:"localhost:9092" validate:"dive,hostport" description:"Address of kafka server to use. Can be specified multiple times to connect to multiple brokers."`
	KafkaConsumerGroup  string        `long:"kafka-consumer-group" description:"Consumer group of kafka messages. Defaults to the topic pattern of the consumer."`
	KafkaOffsetEarliest bool          `long:"kafka-offset-earliest" description:"Start new partition assignments at the earliest offset instead of the broker default."`
	KafkaPollTimeout    time.Duration `long:"kafka-poll-timeout" default:"100ms" description:"Time to wait for a single message."`
	KafkaIdleSleep      time.Duration `long:"kafka-idle-sleep" default:"1s" description:"Time to sleep after a topic was drained."`
	KafkaSchemaTyped    bool          `long:"kafka-schema-typed" description:"Decode consumed messages as confluent avro records."`
	KafkaSendTimeout    time.Duration `long:"kafka-send-timeout" default:"5s" description:"Maximum time a publish may block if the producer queue is full."`

	SchemaRegistryURL string `long:"schema-registry-url" validate:"omitempty,url" description:"Url of the confluent schema registry. Schemas are only kept in memory if not set."`
	RestProxyURL      string `long:"rest-proxy-url" default:"http://localhost:8082" validate:"omitempty,url" description:"Url of the kafka rest proxy."`

	connectionOnce sync.Once
	connection     *kafka.Connection
	admin          *rdkafka.AdminClient

	topicsOnce sync.Once
	topics     *kafka.TopicRegistry

	schemasOnce sync.Once
	schemas     avro.Registry

	restOnce sync.Once
	rest     *restproxy.Client
}

// ConnectionConfig returns the producer settings derived from the command line.
func (opts *KafkaOptions) ConnectionConfig() kafka.ConnectionConfig {
	return kafka.ConnectionConfig{
		BootstrapServers: opts.KafkaAddresses,
		SendTimeout:      opts.KafkaSendTimeout,
	}
}

// Connection returns the broker connection shared by all producers of this process.
func (opts *KafkaOptions) Connection() *kafka.Connection {
	opts.connectionOnce.Do(func() {
		log.Infof("Connecting to kafka at %v", opts.KafkaAddresses)

		connection, err := kafka.NewConnection(opts.ConnectionConfig())

		startup_base.FatalOnError(err, "Cannot connect to kafka")
		opts.connection = connection
	})

	return opts.connection
}

// Topics returns the topic registry of this process.
func (opts *KafkaOptions) Topics() *kafka.TopicRegistry {
	opts.topicsOnce.Do(func() {
		admin, err := opts.Connection().Admin()
		startup_base.FatalOnError(err, "Cannot create kafka admin client")

		opts.admin = admin
		opts.topics = kafka.NewTopicRegistry(admin, kafka.TopicRegistryConfig{})
	})

	return opts.topics
}

func (opts *KafkaOptions) SchemaRegistry() avro.Registry {
	opts.schemasOnce.Do(func() {
		if opts.SchemaRegistryURL == "" {
			log.Warn("No schema registry configured, keeping schemas in memory")
			opts.schemas = avro.NewMemoryRegistry()
			return
		}

		httpClient := &http.Client{Timeout: 10 * time.Second}

		client, err := schemaregistry.NewClient(opts.SchemaRegistryURL, schemaregistry.UsingClient(httpClient))
		startup_base.FatalOnError(err, "Cannot create schema registry client")

		opts.schemas = avro.NewSchemaRegistry(client)
	})

	return opts.schemas
}

func (opts *KafkaOptions) RestProxy() *restproxy.Client {
	opts.restOnce.Do(func() {
		client, err := restproxy.NewClient(restproxy.Config{
			URL:      opts.RestProxyURL,
			RetryMax: 1,
			Debug:    logrus.IsLevelEnabled(logrus.DebugLevel),
		})

		startup_base.FatalOnError(err, "Cannot create rest proxy client")
		opts.rest = client
	})

	return opts.rest
}

// NewProducer creates a producer for the topic, creating the topic if needed.
// Topics with schemas are written as confluent avro, all others as json.
func (opts *KafkaOptions) NewProducer(ctx context.Context, config events.ProducerConfig) (*events.Producer, error) {
	config.SendTimeout = opts.KafkaSendTimeout

	var encoder events.Encoder
	if config.KeySchema != nil || config.ValueSchema != nil {
		encoder = events.NewAvroConfluentEncoder(opts.SchemaRegistry())
	} else {
		encoder = events.NewJSONEncoder()
	}

	return events.NewProducer(ctx, opts.Topics(), opts.Connection(), encoder, config)
}

// NewRestProducer creates a producer that publishes through the rest proxy.
func (opts *KafkaOptions) NewRestProducer(ctx context.Context, config events.ProducerConfig) (*restproxy.Producer, error) {
	return restproxy.NewProducer(ctx, opts.Topics(), opts.RestProxy(), config)
}

// NewConsumer creates a consumer subscribed to all topics matching the pattern.
func (opts *KafkaOptions) NewConsumer(pattern string, registry metrics.Registry) (*consumer.Consumer, error) {
	client, err := consumer.NewKafkaClient(consumer.KafkaConfig{
		BootstrapServers: opts.KafkaAddresses,
		GroupID:          opts.KafkaConsumerGroup,
	}, pattern)

	if err != nil {
		return nil, err
	}

	config := consumer.Config{
		PollTimeout: opts.KafkaPollTimeout,
		IdleSleep:   opts.KafkaIdleSleep,
		Metrics:     registry,
	}

	if opts.KafkaSchemaTyped {
		config.Decoder = avro.NewConverter(opts.SchemaRegistry(), avro.ConverterOptions{})
	}

	c := consumer.New(client, config)

	if err := c.Subscribe(pattern, consumer.PolicyFor(opts.KafkaOffsetEarliest)); err != nil {
		startup_base.Close(c, "close consumer after failed subscribe")
		return nil, err
	}

	return c, nil
}

// Close releases the admin client and flushes the shared connection.
func (opts *KafkaOptions) Close() error {
	var result error

	if opts.admin != nil {
		opts.admin.Close()
	}

	if opts.connection != nil {
		if err := opts.connection.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result
}
