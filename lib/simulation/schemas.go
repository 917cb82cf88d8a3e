package simulation

import (
	_ "embed"

	"github.com/flachnetz/transit/lib/events/avro"
)

var (
	//go:embed schemas/turnstile_key.json
	turnstileKeySource string

	//go:embed schemas/turnstile_value.json
	turnstileValueSource string

	//go:embed schemas/weather_key.json
	weatherKeySource string

	//go:embed schemas/weather_value.json
	weatherValueSource string
)

var (
	TurnstileKeySchema   = avro.MustParseSchema(turnstileKeySource)
	TurnstileValueSchema = avro.MustParseSchema(turnstileValueSource)

	WeatherKeySchema   = avro.MustParseSchema(weatherKeySource)
	WeatherValueSchema = avro.MustParseSchema(weatherValueSource)
)

// TimestampKey is the key of all simulation events.
type TimestampKey struct {
	Timestamp int64 `json:"timestamp"`
}
