package stream

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/flachnetz/transit/lib/consumer"
	"github.com/flachnetz/transit/startup_logrus"
)

// Agent folds the stations stream into the table. Its Handle method is used
// as the handler of a consumer subscribed to InputTopic.
type Agent struct {
	table *Table

	transformed metrics.Counter
	dropped     metrics.Counter
	invalid     metrics.Counter
}

func NewAgent(table *Table, registry metrics.Registry) *Agent {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}

	return &Agent{
		table:       table,
		transformed: metrics.GetOrRegisterCounter("stations.transformed", registry),
		dropped:     metrics.GetOrRegisterCounter("stations.dropped", registry),
		invalid:     metrics.GetOrRegisterCounter("stations.invalid", registry),
	}
}

func (a *Agent) Handle(ctx context.Context, msg *consumer.Message) error {
	log := startup_logrus.GetLogger(ctx, "stations")

	station, err := decodeStation(msg)
	if err != nil {
		a.invalid.Inc(1)
		log.Warnf("Skipping invalid station record at %s[%d]@%d: %s", msg.Topic, msg.Partition, msg.Offset, err)
		return nil
	}

	transformed, ok := Transform(station)
	if !ok {
		a.dropped.Inc(1)
		log.Infof("Dropping station %d (%s), line must be one of red, green or blue",
			station.StationID, station.StationName)
		return nil
	}

	if err := a.table.Put(ctx, transformed); err != nil {
		return err
	}

	a.transformed.Inc(1)
	return nil
}

// decodeStation reads the station from the decoded avro record of schema typed
// topics or from the raw json value otherwise.
func decodeStation(msg *consumer.Message) (Station, error) {
	payload := msg.Value

	if msg.ValueData != nil {
		encoded, err := json.Marshal(msg.ValueData)
		if err != nil {
			return Station{}, errors.Wrap(err, "encode avro record")
		}

		payload = encoded
	}

	var station Station
	if err := json.Unmarshal(payload, &station); err != nil {
		return Station{}, errors.Wrap(err, "decode station")
	}

	return station, nil
}
