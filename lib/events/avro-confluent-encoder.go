package events

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/flachnetz/transit/lib/events/avro"
)

type avroConfluentEncoder struct {
	registry avro.Registry
}

func NewAvroConfluentEncoder(registry avro.Registry) Encoder {
	return &avroConfluentEncoder{
		registry: registry,
	}
}

func (enc *avroConfluentEncoder) Encode(subject string, schema *avro.Schema, value interface{}) ([]byte, error) {
	if schema == nil {
		return nil, errors.Errorf("no avro schema for subject %s", subject)
	}

	schemaId, err := enc.registry.Register(subject, schema)
	if err != nil {
		return nil, errors.WithMessage(err, "register avro schema")
	}

	// write the magic byte followed by the 4 byte id.
	// see https://docs.confluent.io/current/schema-registry/docs/serializer-formatter.html
	// for a description of the format.
	buf := make([]byte, 5, 64)
	binary.BigEndian.PutUint32(buf[1:5], schemaId)

	buf, err = schema.AppendBinary(buf, value)
	if err != nil {
		return nil, errors.WithMessage(err, "encoding avro event")
	}

	return buf, nil
}
