package views

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/flachnetz/transit/lib/consumer"
	"github.com/flachnetz/transit/lib/simulation"
	"github.com/flachnetz/transit/startup_logrus"
)

// decode reads the value of a message into target. Schema typed messages are
// already decoded by the consumer, raw messages are expected to be json.
func decode(msg *consumer.Message, target interface{}) error {
	payload := msg.Value

	if msg.ValueData != nil {
		encoded, err := json.Marshal(msg.ValueData)
		if err != nil {
			return errors.Wrap(err, "encode avro record")
		}

		payload = encoded
	}

	return errors.Wrapf(json.Unmarshal(payload, target), "decode message from %s", msg.Topic)
}

// Weather keeps the most recent weather reading.
type Weather struct {
	mu      sync.RWMutex
	reading simulation.WeatherReading
}

func NewWeather() *Weather {
	return &Weather{
		reading: simulation.WeatherReading{Temperature: 70, Status: simulation.Sunny},
	}
}

func (w *Weather) Current() simulation.WeatherReading {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.reading
}

// Handle applies a weather reading. Readings that can not be decoded are skipped.
func (w *Weather) Handle(ctx context.Context, msg *consumer.Message) error {
	log := startup_logrus.GetLogger(ctx, "weather")

	var reading simulation.WeatherReading
	if err := decode(msg, &reading); err != nil {
		log.Warnf("Skipping weather reading: %s", err)
		return nil
	}

	w.mu.Lock()
	w.reading = reading
	w.mu.Unlock()

	log.Infof("Temperature: %.1f, Status: %s", reading.Temperature, reading.Status)
	return nil
}

type turnstileEntry struct {
	StationID   int    `json:"station_id"`
	StationName string `json:"station_name"`
	Line        string `json:"line"`
}

// TurnstileCounts counts the turnstile entries per station.
type TurnstileCounts struct {
	mu     sync.RWMutex
	counts map[int]*atomic.Int64
}

func NewTurnstileCounts() *TurnstileCounts {
	return &TurnstileCounts{counts: map[int]*atomic.Int64{}}
}

func (t *TurnstileCounts) Handle(ctx context.Context, msg *consumer.Message) error {
	var entry turnstileEntry
	if err := decode(msg, &entry); err != nil {
		startup_logrus.GetLogger(ctx, "turnstile").Warnf("Skipping turnstile entry: %s", err)
		return nil
	}

	t.counterOf(entry.StationID).Inc()
	return nil
}

func (t *TurnstileCounts) counterOf(stationID int) *atomic.Int64 {
	t.mu.RLock()
	counter, ok := t.counts[stationID]
	t.mu.RUnlock()

	if ok {
		return counter
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if counter, ok := t.counts[stationID]; ok {
		return counter
	}

	counter = atomic.NewInt64(0)
	t.counts[stationID] = counter
	return counter
}

// Count returns the number of entries seen for the station.
func (t *TurnstileCounts) Count(stationID int) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if counter, ok := t.counts[stationID]; ok {
		return counter.Load()
	}

	return 0
}
