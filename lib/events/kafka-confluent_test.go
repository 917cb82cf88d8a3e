package events

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	rdkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/flachnetz/transit/lib/events/avro"
	"github.com/flachnetz/transit/lib/kafka"
)

type fakeAdmin struct {
	creates atomic.Int64
	topics  sync.Map
}

func (f *fakeAdmin) GetMetadata(topic *string, allTopics bool, timeoutMs int) (*rdkafka.Metadata, error) {
	metadata := &rdkafka.Metadata{Topics: map[string]rdkafka.TopicMetadata{}}
	f.topics.Range(func(key, value interface{}) bool {
		metadata.Topics[key.(string)] = rdkafka.TopicMetadata{Topic: key.(string)}
		return true
	})

	return metadata, nil
}

func (f *fakeAdmin) CreateTopics(ctx context.Context, topics []rdkafka.TopicSpecification, options ...rdkafka.CreateTopicsAdminOption) ([]rdkafka.TopicResult, error) {
	f.creates.Inc()

	var results []rdkafka.TopicResult
	for _, spec := range topics {
		f.topics.Store(spec.Topic, spec)
		results = append(results, rdkafka.TopicResult{Topic: spec.Topic, Error: rdkafka.NewError(rdkafka.ErrNoError, "", false)})
	}

	return results, nil
}

type fakeClient struct {
	mu       sync.Mutex
	messages []*rdkafka.Message

	// number of produce calls failing with a full queue
	queueFull int
	flushes   atomic.Int64
	pending   int
}

func (f *fakeClient) Produce(msg *rdkafka.Message, deliveryChan chan rdkafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queueFull > 0 {
		f.queueFull--
		return rdkafka.NewError(rdkafka.ErrQueueFull, "queue full", false)
	}

	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeClient) Flush(timeoutMs int) int {
	f.flushes.Inc()
	return f.pending
}

var weatherTopic = kafka.Topic{Name: "com.udacity.weather", NumPartitions: 2, ReplicationFactor: 1}

func TestProducer_SecondProducerDoesNotCreateTopic(t *testing.T) {
	admin := &fakeAdmin{}
	topics := kafka.NewTopicRegistry(admin, kafka.TopicRegistryConfig{})

	config := ProducerConfig{Topic: weatherTopic}

	_, err := NewProducer(context.Background(), topics, &fakeClient{}, NewJSONEncoder(), config)
	require.NoError(t, err)

	_, err = NewProducer(context.Background(), topics, &fakeClient{}, NewJSONEncoder(), config)
	require.NoError(t, err)

	require.EqualValues(t, 1, admin.creates.Load())
}

func TestProducer_PublishJSON(t *testing.T) {
	topics := kafka.NewTopicRegistry(&fakeAdmin{}, kafka.TopicRegistryConfig{})
	client := &fakeClient{}

	producer, err := NewProducer(context.Background(), topics, client, NewJSONEncoder(),
		ProducerConfig{Topic: weatherTopic})
	require.NoError(t, err)

	require.Equal(t, "com.udacity.weather", producer.Topic())

	err = producer.Publish(context.Background(), "1", map[string]interface{}{"status": "sunny"})
	require.NoError(t, err)

	require.Len(t, client.messages, 1)

	msg := client.messages[0]
	require.Equal(t, "com.udacity.weather", *msg.TopicPartition.Topic)
	require.Equal(t, rdkafka.PartitionAny, msg.TopicPartition.Partition)
	require.Equal(t, []byte("1"), msg.Key)
	require.JSONEq(t, `{"status": "sunny"}`, string(msg.Value))

	require.Len(t, msg.Headers, 1)
	require.Equal(t, "event-id", msg.Headers[0].Key)
	require.Len(t, msg.Headers[0].Value, 26)
}

func TestProducer_PublishAvro(t *testing.T) {
	keySchema := avro.MustParseSchema(`{
		"type": "record", "name": "weather.key",
		"fields": [{"name": "timestamp", "type": "long"}]
	}`)

	valueSchema := avro.MustParseSchema(`{
		"type": "record", "name": "weather.value",
		"fields": [{"name": "temperature", "type": "float"}, {"name": "status", "type": "string"}]
	}`)

	registry := avro.NewMemoryRegistry()
	topics := kafka.NewTopicRegistry(&fakeAdmin{}, kafka.TopicRegistryConfig{})
	client := &fakeClient{}

	producer, err := NewProducer(context.Background(), topics, client, NewAvroConfluentEncoder(registry), ProducerConfig{
		Topic:       weatherTopic,
		KeySchema:   keySchema,
		ValueSchema: valueSchema,
	})
	require.NoError(t, err)

	type weatherValue struct {
		Temperature float32 `json:"temperature"`
		Status      string  `json:"status"`
	}

	err = producer.Publish(context.Background(),
		map[string]interface{}{"timestamp": 1500},
		weatherValue{Temperature: 40, Status: "snow"})

	require.NoError(t, err)
	require.Len(t, client.messages, 1)

	msg := client.messages[0]

	// confluent framing: magic byte and the schema id
	require.EqualValues(t, 0, msg.Value[0])
	valueId := binary.BigEndian.Uint32(msg.Value[1:5])
	require.EqualValues(t, 0, msg.Key[0])
	keyId := binary.BigEndian.Uint32(msg.Key[1:5])
	require.NotEqual(t, keyId, valueId)

	converter := avro.NewConverter(registry, avro.ConverterOptions{})
	decoded, err := converter.Parse(msg.Value)
	require.NoError(t, err)
	require.Equal(t, "snow", decoded["status"])
}

func TestProducer_AvroWithoutSchemaFails(t *testing.T) {
	topics := kafka.NewTopicRegistry(&fakeAdmin{}, kafka.TopicRegistryConfig{})

	producer, err := NewProducer(context.Background(), topics, &fakeClient{},
		NewAvroConfluentEncoder(avro.NewMemoryRegistry()), ProducerConfig{Topic: weatherTopic})
	require.NoError(t, err)

	require.Error(t, producer.Publish(context.Background(), "key", "value"))
}

func TestProducer_PublishAfterClose(t *testing.T) {
	topics := kafka.NewTopicRegistry(&fakeAdmin{}, kafka.TopicRegistryConfig{})
	client := &fakeClient{}

	producer, err := NewProducer(context.Background(), topics, client, NewJSONEncoder(),
		ProducerConfig{Topic: weatherTopic})
	require.NoError(t, err)

	require.NoError(t, producer.Close())
	require.NoError(t, producer.Close())
	require.EqualValues(t, 1, client.flushes.Load())

	err = producer.Publish(context.Background(), "key", "value")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Empty(t, client.messages)
}

func TestProducer_CloseReportsPendingMessages(t *testing.T) {
	topics := kafka.NewTopicRegistry(&fakeAdmin{}, kafka.TopicRegistryConfig{})
	client := &fakeClient{pending: 3}

	producer, err := NewProducer(context.Background(), topics, client, NewJSONEncoder(),
		ProducerConfig{Topic: weatherTopic, FlushTimeout: time.Millisecond})
	require.NoError(t, err)

	require.Error(t, producer.Close())
}

func TestProducer_RetriesFullQueue(t *testing.T) {
	topics := kafka.NewTopicRegistry(&fakeAdmin{}, kafka.TopicRegistryConfig{})
	client := &fakeClient{queueFull: 2}

	producer, err := NewProducer(context.Background(), topics, client, NewJSONEncoder(),
		ProducerConfig{Topic: weatherTopic, SendTimeout: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, producer.Publish(context.Background(), "key", "value"))
	require.Len(t, client.messages, 1)
}

func TestProducer_FullQueueTimesOut(t *testing.T) {
	topics := kafka.NewTopicRegistry(&fakeAdmin{}, kafka.TopicRegistryConfig{})
	client := &fakeClient{queueFull: 1000}

	producer, err := NewProducer(context.Background(), topics, client, NewJSONEncoder(),
		ProducerConfig{Topic: weatherTopic, SendTimeout: 150 * time.Millisecond})
	require.NoError(t, err)

	err = producer.Publish(context.Background(), "key", "value")

	var kafkaErr rdkafka.Error
	require.ErrorAs(t, err, &kafkaErr)
	require.Equal(t, rdkafka.ErrQueueFull, kafkaErr.Code())
	require.Empty(t, client.messages)
}

func TestPublishers_CloseAll(t *testing.T) {
	topics := kafka.NewTopicRegistry(&fakeAdmin{}, kafka.TopicRegistryConfig{})

	healthy, err := NewProducer(context.Background(), topics, &fakeClient{}, NewJSONEncoder(),
		ProducerConfig{Topic: weatherTopic})
	require.NoError(t, err)

	broken, err := NewProducer(context.Background(), topics, &fakeClient{pending: 1}, NewJSONEncoder(),
		ProducerConfig{Topic: weatherTopic})
	require.NoError(t, err)

	err = Publishers{broken, healthy}.Close()
	require.Error(t, err)

	// the healthy one was closed anyway
	require.ErrorIs(t, healthy.Publish(context.Background(), "k", "v"), ErrInvalidState)
}
