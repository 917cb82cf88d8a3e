package events

import (
	"github.com/flachnetz/transit/lib/events/avro"
)

type Encoder interface {
	// Encodes a key or value of the given subject into its binary representation.
	// The schema is nil for schema-less topics.
	Encode(subject string, schema *avro.Schema, value interface{}) ([]byte, error)
}

// KeySubject returns the schema registry subject of a topics key.
func KeySubject(topic string) string {
	return topic + "-key"
}

// ValueSubject returns the schema registry subject of a topics value.
func ValueSubject(topic string) string {
	return topic + "-value"
}
