package kafka

import (
	"context"
	"sync"
	"time"

	rdkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/flachnetz/transit/lib/set"
)

// Admin is the part of the kafka admin client used to provision topics.
// It is implemented by *rdkafka.AdminClient.
type Admin interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*rdkafka.Metadata, error)
	CreateTopics(ctx context.Context, topics []rdkafka.TopicSpecification, options ...rdkafka.CreateTopicsAdminOption) ([]rdkafka.TopicResult, error)
}

type TopicRegistryConfig struct {
	// Timeout for listing the topics known to the broker.
	MetadataTimeout time.Duration

	// Time the broker has to acknowledge a create request.
	CreateTimeout time.Duration
}

// TopicRegistry records the topics known to exist for the lifetime of the process.
// Create one instance at startup and pass it to every producer.
type TopicRegistry struct {
	log    *logrus.Entry
	admin  Admin
	config TopicRegistryConfig

	// guards the complete check-then-create sequence, not only the set.
	mu       sync.Mutex
	existing set.Set[string]
}

func NewTopicRegistry(admin Admin, config TopicRegistryConfig) *TopicRegistry {
	if config.MetadataTimeout <= 0 {
		config.MetadataTimeout = 30 * time.Second
	}

	if config.CreateTimeout <= 0 {
		config.CreateTimeout = 30 * time.Second
	}

	return &TopicRegistry{
		log:    logrus.WithField("prefix", "topics"),
		admin:  admin,
		config: config,
	}
}

// Contains returns true, if the topic was already ensured by this registry.
func (r *TopicRegistry) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.existing.Contains(name)
}

// EnsureExists makes sure that the topic exists on the broker. The broker is only
// contacted the first time a topic is seen; later calls return immediately.
// Failures are returned as is and are not retried.
func (r *TopicRegistry) EnsureExists(ctx context.Context, topic Topic) error {
	if err := topic.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.existing.Contains(topic.Name) {
		return nil
	}

	exists, err := r.topicExists(topic.Name)
	if err != nil {
		return errors.WithMessagef(err, "lookup topic %s", topic.Name)
	}

	if exists {
		r.log.Infof("Kafka topic '%s' exists, skipping creation", topic.Name)
	} else {
		if err := r.create(ctx, topic); err != nil {
			return errors.WithMessagef(err, "create topic %s", topic.Name)
		}
	}

	r.existing.Add(topic.Name)
	return nil
}

func (r *TopicRegistry) topicExists(name string) (bool, error) {
	metadata, err := r.admin.GetMetadata(nil, true, int(r.config.MetadataTimeout.Milliseconds()))
	if err != nil {
		return false, errors.Wrap(err, "fetch metadata")
	}

	_, ok := metadata.Topics[name]
	return ok, nil
}

func (r *TopicRegistry) create(ctx context.Context, topic Topic) error {
	r.log.Infof("Creating kafka topic '%s' with %d partitions and replication factor %d",
		topic.Name, topic.NumPartitions, topic.ReplicationFactor)

	results, err := r.admin.CreateTopics(ctx,
		[]rdkafka.TopicSpecification{topic.Specification()},
		rdkafka.SetAdminOperationTimeout(r.config.CreateTimeout))

	if err != nil {
		return errors.Wrap(err, "topic creation")
	}

	if len(results) != 1 {
		return errors.Errorf("expected one topic result, got %+v", results)
	}

	switch result := results[0]; result.Error.Code() {
	case rdkafka.ErrNoError:
		r.log.Infof("Kafka topic '%s' created", result.Topic)

	case rdkafka.ErrTopicAlreadyExists:
		// somebody else was faster, that is fine.
		r.log.Infof("Kafka topic '%s' already exists", result.Topic)

	default:
		return errors.Errorf("topic creation failed: %s", result.Error)
	}

	return nil
}
