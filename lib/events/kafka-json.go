package events

import (
	"encoding/json"

	"github.com/flachnetz/transit/lib/events/avro"
)

type jsonEncoder struct{}

// NewJSONEncoder returns an encoder for raw topics. Schemas are ignored.
func NewJSONEncoder() Encoder {
	return jsonEncoder{}
}

func (jsonEncoder) Encode(subject string, schema *avro.Schema, value interface{}) ([]byte, error) {
	switch value := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return value, nil
	case string:
		return []byte(value), nil
	}

	return json.Marshal(value)
}
