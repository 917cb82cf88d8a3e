package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/flachnetz/transit"
	"github.com/flachnetz/transit/lib/stream"
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

		InputTopic string `long:"stations-topic" default:"org.chicago.cta.stations" description:"Topic with the stations published by kafka connect."`
	}

	opts.Metrics.Inputs.MetricsPrefix = "transit.stations"
	transit.MustParseCommandLine(&opts)

	ctx, cancel := startup_base.SignalContext()
	defer cancel()

	changelog, err := opts.Kafka.NewProducer(ctx, stream.ChangelogProducerConfig())
	startup_base.FatalOnError(err, "Cannot create changelog producer")

	table := stream.NewTable(changelog)
	agent := stream.NewAgent(table, opts.Metrics.Registry())

	stations, err := opts.Kafka.NewConsumer(opts.InputTopic, opts.Metrics.Registry())
	startup_base.FatalOnError(err, "Cannot consume %s", opts.InputTopic)

	err = stations.Run(ctx, agent.Handle)

	log.Infof("Stopped with %d stations in the table", table.Len())

	startup_base.Close(stations, "Cannot close consumer")
	startup_base.Close(changelog, "Cannot flush changelog")
	startup_base.Close(&opts.Kafka, "Cannot close kafka connection")
	startup_base.Close(&opts.Metrics, "Cannot stop metrics endpoint")

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Stations stream failed: %s", err)
	}
}
