package avro

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Converter struct {
	log      *logrus.Entry
	registry Registry
	options  ConverterOptions
}

type ConverterOptions struct {
	AvroNamespace string // prefix for namespace prefix which will be used to identify self defined records
	ToLowerCase   bool   // map all field names to lower case
}

func NewConverter(registry Registry, options ConverterOptions) *Converter {
	return &Converter{log: logrus.WithField("prefix", "avro-converter"), registry: registry, options: options}
}

// Parse decodes a confluent framed avro record: magic byte 0, 4 byte schema id, avro binary.
func (c *Converter) Parse(data []byte) (map[string]interface{}, error) {
	if bytes.HasPrefix(data, []byte("Obj\x01")) {
		return nil, errors.New("events in avro container format not supported")
	}

	if len(data) < 5 || data[0] != 0 {
		return nil, errors.Errorf("not a confluent avro record (%d bytes)", len(data))
	}

	schemaId := binary.BigEndian.Uint32(data[1:5])

	codec, err := c.registry.Codec(schemaId)
	if err != nil {
		return nil, err
	}

	original, _, err := codec.NativeFromBinary(data[5:])
	if err != nil {
		return nil, errors.Wrapf(err, "decode record with schema %d", schemaId)
	}

	// convert form "avro native" to a clean go value.
	parsed, ok := c.ConvertAvroToGo(original).(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("record with schema %d is not an avro record", schemaId)
	}

	return parsed, nil
}

func (c *Converter) ConvertAvroToGo(input interface{}) interface{} {
	switch input := input.(type) {
	case map[string]interface{}:
		if result, ok := c.simplifyAvroType(input); ok {
			return c.ConvertAvroToGo(result)
		}

		result := make(map[string]interface{}, len(input))

		for key, value := range input {
			if c.options.ToLowerCase {
				key = strings.ToLower(key)
			}
			result[key] = c.ConvertAvroToGo(value)
		}

		return result

	case []interface{}:
		result := make([]interface{}, 0, len(input))
		for _, value := range input {
			result = append(result, c.ConvertAvroToGo(value))
		}

		return result

	default:
		return input
	}
}

// unwraps union values like {"string": "foo"} into their actual value.
func (c *Converter) simplifyAvroType(value map[string]interface{}) (interface{}, bool) {
	if len(value) == 1 {
		for key, actualValue := range value {
			switch key {
			case "string", "boolean", "int", "long", "float", "double", "bytes", "array":
				return actualValue, true
			}

			if c.options.AvroNamespace != "" {
				if strings.HasPrefix(key, c.options.AvroNamespace) {
					return actualValue, true
				}
			}
		}
	}

	return nil, false
}
