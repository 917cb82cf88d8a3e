package consumer

import (
	rdkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// AssignmentPolicy resolves the start offsets of an assignment before it is activated.
type AssignmentPolicy func(partitions []rdkafka.TopicPartition) []rdkafka.TopicPartition

// OffsetEarliest starts every assigned partition at the oldest retained record.
func OffsetEarliest(partitions []rdkafka.TopicPartition) []rdkafka.TopicPartition {
	result := make([]rdkafka.TopicPartition, len(partitions))
	for idx, partition := range partitions {
		partition.Offset = rdkafka.OffsetBeginning
		result[idx] = partition
	}

	return result
}

// BrokerDefault keeps the offsets the broker assigned.
func BrokerDefault(partitions []rdkafka.TopicPartition) []rdkafka.TopicPartition {
	return partitions
}

func PolicyFor(offsetEarliest bool) AssignmentPolicy {
	if offsetEarliest {
		return OffsetEarliest
	}

	return BrokerDefault
}
