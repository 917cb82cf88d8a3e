package kafka

import (
	rdkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/pkg/errors"
)

type Topic struct {
	Name              string
	NumPartitions     int32
	ReplicationFactor int16
	// https://docs.confluent.io/platform/current/installation/configuration/topic-configs.html
	Config map[string]*string
}

// Validate checks that the topic can be sent to the broker in a create request.
func (topic Topic) Validate() error {
	if topic.Name == "" {
		return errors.New("topic name must not be empty")
	}

	if topic.NumPartitions < 1 {
		return errors.Errorf("topic %s: number of partitions must be positive, got %d", topic.Name, topic.NumPartitions)
	}

	if topic.ReplicationFactor < 1 {
		return errors.Errorf("topic %s: replication factor must be positive, got %d", topic.Name, topic.ReplicationFactor)
	}

	return nil
}

// Specification converts the topic into the admin client representation,
// skipping config entries without a value.
func (topic Topic) Specification() rdkafka.TopicSpecification {
	config := map[string]string{}
	for k, v := range topic.Config {
		if v != nil {
			config[k] = *v
		}
	}

	return rdkafka.TopicSpecification{
		Topic:             topic.Name,
		NumPartitions:     int(topic.NumPartitions),
		ReplicationFactor: int(topic.ReplicationFactor),
		Config:            config,
	}
}
