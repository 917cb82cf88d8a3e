package simulation

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/flachnetz/transit/lib/clock"
	"github.com/flachnetz/transit/lib/events"
	"github.com/flachnetz/transit/lib/kafka"
)

// EntryModel computes how many riders entered a station during one step.
type EntryModel interface {
	Entries(station Station, simulatedTime time.Time, step time.Duration) int
}

// RandomEntries draws the number of entries around a mean per hour. Rush
// hours in the morning and evening are weighted higher.
type RandomEntries struct {
	MeanPerHour float64

	mu   sync.Mutex
	rand *rand.Rand
}

func NewRandomEntries(meanPerHour float64, seed int64) *RandomEntries {
	return &RandomEntries{
		MeanPerHour: meanPerHour,
		rand:        rand.New(rand.NewSource(seed)),
	}
}

func (r *RandomEntries) Entries(station Station, simulatedTime time.Time, step time.Duration) int {
	expected := r.MeanPerHour * step.Hours() * hourWeight(simulatedTime.Hour())
	if expected <= 0 {
		return 0
	}

	r.mu.Lock()
	jitter := 0.5 + r.rand.Float64()
	r.mu.Unlock()

	return int(math.Round(expected * jitter))
}

func hourWeight(hour int) float64 {
	switch {
	case hour >= 7 && hour < 10, hour >= 16 && hour < 19:
		return 2.0
	case hour >= 1 && hour < 5:
		return 0.1
	default:
		return 1.0
	}
}

type turnstileValue struct {
	StationID   int    `json:"station_id"`
	StationName string `json:"station_name"`
	Line        Line   `json:"line"`
}

// TurnstileProducerConfig describes the topic turnstile events of the station are written to.
func TurnstileProducerConfig(station Station) events.ProducerConfig {
	return events.ProducerConfig{
		Topic: kafka.Topic{
			Name:              "com.udacity." + station.TopicName() + ".turnstile",
			NumPartitions:     5,
			ReplicationFactor: 1,
		},
		KeySchema:   TurnstileKeySchema,
		ValueSchema: TurnstileValueSchema,
	}
}

// Turnstile publishes one event for every rider entering the station.
type Turnstile struct {
	log       *logrus.Entry
	station   Station
	model     EntryModel
	publisher events.Publisher
}

func NewTurnstile(station Station, model EntryModel, publisher events.Publisher) *Turnstile {
	return &Turnstile{
		log:       logrus.WithField("prefix", "turnstile").WithField("station", station.Name),
		station:   station,
		model:     model,
		publisher: publisher,
	}
}

func (t *Turnstile) Tick(ctx context.Context, simulatedTime time.Time, step time.Duration) error {
	entries := t.model.Entries(t.station, simulatedTime, step)
	t.log.Debugf("Total entries in %s: %d", t.station.Name, entries)

	value := turnstileValue{
		StationID:   t.station.StationID,
		StationName: t.station.Name,
		Line:        t.station.Line,
	}

	for idx := 0; idx < entries; idx++ {
		key := TimestampKey{Timestamp: clock.TimeMillis()}

		if err := t.publisher.Publish(ctx, key, value); err != nil {
			return errors.WithMessagef(err, "turnstile entry %d of %d at %s", idx+1, entries, t.station.Name)
		}
	}

	return nil
}
