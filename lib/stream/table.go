package stream

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/flachnetz/transit/lib"
	"github.com/flachnetz/transit/lib/events"
	"github.com/flachnetz/transit/lib/kafka"
)

// ChangelogProducerConfig describes the compacted topic backing the table.
func ChangelogProducerConfig() events.ProducerConfig {
	return events.ProducerConfig{
		Topic: kafka.Topic{
			Name:              "com.udacity.stations.transformed",
			NumPartitions:     1,
			ReplicationFactor: 1,
			Config: map[string]*string{
				"cleanup.policy": lib.PtrOf("compact"),
			},
		},
	}
}

// Table is an in memory table of transformed stations keyed by station id.
// Every write is published to the changelog before it becomes visible.
type Table struct {
	changelog events.Publisher

	mu   sync.RWMutex
	rows map[int]TransformedStation
}

func NewTable(changelog events.Publisher) *Table {
	return &Table{
		changelog: changelog,
		rows:      map[int]TransformedStation{},
	}
}

func (t *Table) Put(ctx context.Context, station TransformedStation) error {
	key := strconv.Itoa(station.StationID)
	if err := t.changelog.Publish(ctx, key, station); err != nil {
		return errors.WithMessagef(err, "write station %d to changelog", station.StationID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows[station.StationID] = station
	return nil
}

func (t *Table) Get(stationID int) (TransformedStation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	station, ok := t.rows[stationID]
	return station, ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.rows)
}
