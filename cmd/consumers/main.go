package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/flachnetz/transit"
	"github.com/flachnetz/transit/lib/consumer"
	"github.com/flachnetz/transit/lib/views"
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

		Topics struct {
			Weather    string `long:"weather-topic" default:"com.udacity.weather" description:"Topic with the weather readings."`
			Turnstiles string `long:"turnstile-topics" default:"^com\\.udacity\\..*\\.turnstile$" description:"Pattern of all turnstile topics."`
		}

		ReportInterval time.Duration `long:"report-interval" default:"30s" description:"Interval to log the current views."`
	}

	opts.Metrics.Inputs.MetricsPrefix = "transit.consumers"
	transit.MustParseCommandLine(&opts)

	ctx, cancel := startup_base.SignalContext()
	defer cancel()

	weather := views.NewWeather()
	turnstiles := views.NewTurnstileCounts()

	weatherConsumer, err := opts.Kafka.NewConsumer(opts.Topics.Weather, opts.Metrics.Registry())
	startup_base.FatalOnError(err, "Cannot consume %s", opts.Topics.Weather)

	turnstileConsumer, err := opts.Kafka.NewConsumer(opts.Topics.Turnstiles, opts.Metrics.Registry())
	startup_base.FatalOnError(err, "Cannot consume %s", opts.Topics.Turnstiles)

	g, ctx := errgroup.WithContext(ctx)

	run := func(c *consumer.Consumer, handler consumer.Handler) func() error {
		return func() error {
			defer startup_base.Close(c, "Cannot close consumer")
			return c.Run(ctx, handler)
		}
	}

	g.Go(run(weatherConsumer, weather.Handle))
	g.Go(run(turnstileConsumer, turnstiles.Handle))

	g.Go(func() error {
		ticker := time.NewTicker(opts.ReportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil

			case <-ticker.C:
				reading := weather.Current()
				log.Infof("Weather is %s at %.1f degrees", reading.Status, reading.Temperature)
			}
		}
	})

	err = g.Wait()

	startup_base.Close(&opts.Kafka, "Cannot close kafka connection")
	startup_base.Close(&opts.Metrics, "Cannot stop metrics endpoint")

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Consumer failed: %s", err)
	}
}
