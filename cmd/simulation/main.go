package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/flachnetz/transit"
	"github.com/flachnetz/transit/lib/events"
	"github.com/flachnetz/transit/lib/simulation"
	"github.com/flachnetz/transit/startup_base"
	"github.com/flachnetz/transit/startup_kafka"
	"github.com/flachnetz/transit/startup_metrics"
)

var log = logrus.WithField("prefix", "main")

func main() {
	var opts struct {
		Base    startup_base.BaseOptions
		Metrics startup_metrics.MetricsOptions
		Kafka   startup_kafka.KafkaOptions

		Simulation struct {
			Interval     time.Duration `long:"simulation-interval" default:"5s" description:"Real time between two simulation steps, at least one second."`
			Step         time.Duration `long:"simulation-step" default:"5m" description:"Simulated time that passes with every step."`
			MeanEntries  float64       `long:"turnstile-mean-entries" default:"60" description:"Average number of turnstile entries per station and hour."`
			Seed         int64         `long:"seed" description:"Seed of the random models, defaults to the current time."`
			AbortOnError bool          `long:"abort-on-error" description:"Stop the simulation if a step fails."`
		}
	}

	opts.Metrics.Inputs.MetricsPrefix = "transit.simulation"
	transit.MustParseCommandLine(&opts)

	ctx, cancel := startup_base.SignalContext()
	defer cancel()

	seed := opts.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	start := time.Now().Truncate(time.Hour)

	var drivers []simulation.Driver
	var publishers events.Publishers

	entries := simulation.NewRandomEntries(opts.Simulation.MeanEntries, seed)

	for _, station := range simulation.DefaultStations {
		producer, err := opts.Kafka.NewProducer(ctx, simulation.TurnstileProducerConfig(station))
		startup_base.FatalOnError(err, "Cannot create turnstile producer for %s", station.Name)

		publishers = append(publishers, producer)
		drivers = append(drivers, simulation.NewTurnstile(station, entries, producer))
	}

	weatherProducer, err := opts.Kafka.NewRestProducer(ctx, simulation.WeatherProducerConfig())
	startup_base.FatalOnError(err, "Cannot create weather producer")

	publishers = append(publishers, weatherProducer)
	drivers = append(drivers, simulation.NewWeather(start.Month(), seed, weatherProducer))

	scheduler := simulation.NewScheduler(simulation.SchedulerConfig{
		Interval:     opts.Simulation.Interval,
		Step:         opts.Simulation.Step,
		Start:        start,
		AbortOnError: opts.Simulation.AbortOnError,
	}, drivers...)

	err = scheduler.Run(ctx)

	log.Infof("Simulation stopped at %s, flushing producers", scheduler.SimulatedTime().Format(time.RFC3339))
	startup_base.Close(publishers, "Cannot flush producers")
	startup_base.Close(&opts.Kafka, "Cannot close kafka connection")
	startup_base.Close(&opts.Metrics, "Cannot stop metrics endpoint")

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Simulation failed: %s", err)
	}
}
