package simulation

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/flachnetz/transit/lib"
	"github.com/flachnetz/transit/lib/clock"
	"github.com/flachnetz/transit/lib/events"
	"github.com/flachnetz/transit/lib/kafka"
)

type WeatherStatus int

const (
	Sunny WeatherStatus = iota
	PartlyCloudy
	Cloudy
	Windy
	Precipitation
)

var WeatherStatuses = []WeatherStatus{Sunny, PartlyCloudy, Cloudy, Windy, Precipitation}

func (s WeatherStatus) String() string {
	switch s {
	case Sunny:
		return "sunny"
	case PartlyCloudy:
		return "partly_cloudy"
	case Cloudy:
		return "cloudy"
	case Windy:
		return "windy"
	case Precipitation:
		return "precipitation"
	}

	panic(errors.Errorf("unknown weather status %d", int(s)))
}

func ParseWeatherStatus(value string) (WeatherStatus, error) {
	for _, status := range WeatherStatuses {
		if value == status.String() {
			return status, nil
		}
	}

	return 0, errors.Errorf("unknown weather status %q", value)
}

func (s WeatherStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *WeatherStatus) UnmarshalText(text []byte) error {
	status, err := ParseWeatherStatus(string(text))
	if err != nil {
		return err
	}

	*s = status
	return nil
}

const (
	minTemperature = -20.0
	maxTemperature = 100.0
)

type season int

const (
	spring season = iota
	winter
	summer
)

func seasonOf(month time.Month) season {
	switch month {
	case time.January, time.February, time.March, time.April, time.November, time.December:
		return winter
	case time.July, time.August, time.September:
		return summer
	default:
		return spring
	}
}

func initialTemperature(month time.Month) float64 {
	switch seasonOf(month) {
	case winter:
		return 40
	case summer:
		return 85
	default:
		return 70
	}
}

// drift mode of the temperature per season
func driftMode(month time.Month) float64 {
	switch seasonOf(month) {
	case winter:
		return -1
	case summer:
		return 1
	default:
		return 0
	}
}

// triangular draws a sample of the triangular distribution using inverse transform sampling.
func triangular(rnd *rand.Rand, low, high, mode float64) float64 {
	u := rnd.Float64()

	c := (mode - low) / (high - low)
	if u < c {
		return low + math.Sqrt(u*(high-low)*(mode-low))
	}

	return high - math.Sqrt((1-u)*(high-low)*(high-mode))
}

// WeatherProducerConfig describes the topic weather readings are written to.
func WeatherProducerConfig() events.ProducerConfig {
	return events.ProducerConfig{
		Topic: kafka.Topic{
			Name:              "com.udacity.weather",
			NumPartitions:     2,
			ReplicationFactor: 1,
		},
		KeySchema:   WeatherKeySchema,
		ValueSchema: WeatherValueSchema,
	}
}

type WeatherReading struct {
	Temperature float64       `json:"temperature"`
	Status      WeatherStatus `json:"status"`
}

// Weather simulates the weather and publishes one reading per tick.
type Weather struct {
	log       *logrus.Entry
	publisher events.Publisher

	mu      sync.Mutex
	rand    *rand.Rand
	current WeatherReading
}

func NewWeather(month time.Month, seed int64, publisher events.Publisher) *Weather {
	return &Weather{
		log:       logrus.WithField("prefix", "weather"),
		publisher: publisher,
		rand:      rand.New(rand.NewSource(seed)),
		current: WeatherReading{
			Temperature: initialTemperature(month),
			Status:      Sunny,
		},
	}
}

// Current returns the last simulated reading.
func (w *Weather) Current() WeatherReading {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.current
}

func (w *Weather) advance(month time.Month) WeatherReading {
	w.mu.Lock()
	defer w.mu.Unlock()

	drift := triangular(w.rand, -10, 10, driftMode(month))

	w.current = WeatherReading{
		Temperature: lib.Clamp(w.current.Temperature+drift, minTemperature, maxTemperature),
		Status:      WeatherStatuses[w.rand.Intn(len(WeatherStatuses))],
	}

	return w.current
}

func (w *Weather) Tick(ctx context.Context, simulatedTime time.Time, step time.Duration) error {
	reading := w.advance(simulatedTime.Month())

	key := TimestampKey{Timestamp: clock.TimeMillis()}
	if err := w.publisher.Publish(ctx, key, reading); err != nil {
		return errors.WithMessage(err, "publish weather")
	}

	w.log.Debugf("Sent weather data, temp: %.1f, status: %s", reading.Temperature, reading.Status)
	return nil
}
