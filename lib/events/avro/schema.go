package avro

import (
	"encoding/json"

	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

// Schema is a parsed avro schema. A nil *Schema marks a schema-less topic.
type Schema struct {
	name  string
	codec *goavro.Codec
}

func ParseSchema(source string) (*Schema, error) {
	codec, err := goavro.NewCodec(source)
	if err != nil {
		return nil, errors.WithMessage(err, "parse avro schema")
	}

	var named struct{ Name string }
	_ = json.Unmarshal([]byte(source), &named)

	return &Schema{name: named.Name, codec: codec}, nil
}

// MustParseSchema parses a schema known at compile time and panics on error.
func MustParseSchema(source string) *Schema {
	schema, err := ParseSchema(source)
	if err != nil {
		panic(err)
	}

	return schema
}

// Name returns the record name of the schema, or an empty string for unnamed schemas.
func (s *Schema) Name() string {
	return s.name
}

// String returns the schema as written to the schema registry.
func (s *Schema) String() string {
	return s.codec.Schema()
}

func (s *Schema) Codec() *goavro.Codec {
	return s.codec
}

// AppendBinary serializes the value into avro binary and appends it to buf.
// The value is mapped to avro through its json representation, so structs
// with json tags matching the schema fields work as well as plain maps.
func (s *Schema) AppendBinary(buf []byte, value interface{}) ([]byte, error) {
	textual, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "marshal value to json")
	}

	native, _, err := s.codec.NativeFromTextual(textual)
	if err != nil {
		return nil, errors.Wrapf(err, "value does not match schema %s", s.name)
	}

	buf, err = s.codec.BinaryFromNative(buf, native)
	if err != nil {
		return nil, errors.Wrapf(err, "encode value with schema %s", s.name)
	}

	return buf, nil
}
