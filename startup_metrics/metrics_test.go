package startup_metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	registry := metrics.NewPrefixedChildRegistry(metrics.NewRegistry(), "transit.")
	metrics.GetOrRegisterCounter("consumer.com.udacity.weather.consumed", registry).Inc(3)
	metrics.GetOrRegisterGauge("stations.table", registry).Update(7)

	prom := prometheus.NewRegistry()
	require.NoError(t, prom.Register(NewCollector(registry)))

	families, err := prom.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	require.Equal(t, map[string]float64{
		"transit_consumer_com_udacity_weather_consumed": 3,
		"transit_stations_table":                        7,
	}, values)
}

func TestSanitizeMetricName(t *testing.T) {
	require.Equal(t, "consumer_com_udacity__turnstile_poll_errors", sanitizeMetricName("consumer.com.udacity._turnstile.poll-errors"))
}

func TestPrefixRegistry(t *testing.T) {
	base := metrics.NewRegistry()
	counter := metrics.GetOrRegisterCounter("existing", base)

	prefixed := prefixRegistry(base, "simulation")
	counter.Inc(1)

	var names []string
	prefixed.Each(func(name string, metric interface{}) {
		names = append(names, name)
		require.EqualValues(t, 1, metric.(metrics.Counter).Count())
	})

	require.Equal(t, []string{"simulation.existing"}, names)
}
