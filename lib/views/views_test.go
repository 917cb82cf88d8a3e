package views

import (
	"context"
	"sync"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/flachnetz/transit/lib/consumer"
	"github.com/flachnetz/transit/lib/simulation"
)

func TestWeather_Handle(t *testing.T) {
	g := NewWithT(t)

	weather := NewWeather()
	g.Expect(weather.Current()).To(Equal(simulation.WeatherReading{Temperature: 70, Status: simulation.Sunny}))

	msg := &consumer.Message{
		Topic:     "com.udacity.weather",
		ValueData: map[string]interface{}{"temperature": float32(41.5), "status": "precipitation"},
	}

	g.Expect(weather.Handle(context.Background(), msg)).To(Succeed())
	g.Expect(weather.Current().Temperature).To(BeNumerically("~", 41.5, 0.001))
	g.Expect(weather.Current().Status).To(Equal(simulation.Precipitation))

	// an unknown status keeps the last reading
	msg = &consumer.Message{Topic: "com.udacity.weather", Value: []byte(`{"temperature": 12, "status": "hail"}`)}
	g.Expect(weather.Handle(context.Background(), msg)).To(Succeed())
	g.Expect(weather.Current().Status).To(Equal(simulation.Precipitation))

	msg = &consumer.Message{Topic: "com.udacity.weather", Value: []byte(`{"temperature": 12, "status": "cloudy"}`)}
	g.Expect(weather.Handle(context.Background(), msg)).To(Succeed())
	g.Expect(weather.Current()).To(Equal(simulation.WeatherReading{Temperature: 12, Status: simulation.Cloudy}))
}

func TestTurnstileCounts_Handle(t *testing.T) {
	g := NewWithT(t)

	counts := NewTurnstileCounts()

	entry := func(stationID int32) *consumer.Message {
		return &consumer.Message{
			Topic: "com.udacity.damen.turnstile",
			ValueData: map[string]interface{}{
				"station_id":   stationID,
				"station_name": "Damen",
				"line":         "blue",
			},
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Expect(counts.Handle(context.Background(), entry(40590))).To(Succeed())
		}()
	}

	wg.Wait()

	g.Expect(counts.Handle(context.Background(), entry(40380))).To(Succeed())
	g.Expect(counts.Handle(context.Background(), &consumer.Message{Value: []byte("garbage")})).To(Succeed())

	g.Expect(counts.Count(40590)).To(BeEquivalentTo(50))
	g.Expect(counts.Count(40380)).To(BeEquivalentTo(1))
	g.Expect(counts.Count(1)).To(BeEquivalentTo(0))
}
