package startup_metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"
)

var errMissingPrefix = errors.New("metrics prefix must be set")

type PrometheusConfig struct {
	Enabled bool   `long:"prometheus" description:"Enable Prometheus metrics"`
	Path    string `long:"prometheus-path" default:"/metrics" description:"Path for Prometheus metrics endpoint"`
	Address string `long:"prometheus-address" default:":9090" description:"Listen address for Prometheus metrics endpoint"`
}

// collector exposes the metrics of a go-metrics registry to prometheus.
type collector struct {
	registry metrics.Registry
}

func NewCollector(registry metrics.Registry) prometheus.Collector {
	return collector{registry: registry}
}

func (c collector) Describe(ch chan<- *prometheus.Desc) {
	// unchecked collector, the set of metrics changes at runtime.
}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	c.registry.Each(func(name string, i interface{}) {
		safeName := sanitizeMetricName(name)

		switch metric := i.(type) {
		case metrics.Counter:
			ch <- constMetric(safeName, "Counter from go-metrics", prometheus.CounterValue, float64(metric.Count()))

		case metrics.Gauge:
			ch <- constMetric(safeName, "Gauge from go-metrics", prometheus.GaugeValue, float64(metric.Value()))

		case metrics.GaugeFloat64:
			ch <- constMetric(safeName, "GaugeFloat64 from go-metrics", prometheus.GaugeValue, metric.Value())

		case metrics.Histogram:
			snapshot := metric.Snapshot()
			ch <- constMetric(safeName+"_count", "Histogram count", prometheus.CounterValue, float64(snapshot.Count()))
			ch <- constMetric(safeName+"_mean", "Histogram mean", prometheus.GaugeValue, snapshot.Mean())

		case metrics.Timer:
			snapshot := metric.Snapshot()
			ch <- constMetric(safeName+"_count", "Timer count", prometheus.CounterValue, float64(snapshot.Count()))
			ch <- constMetric(safeName+"_mean", "Timer mean", prometheus.GaugeValue, snapshot.Mean()/float64(time.Millisecond))
			ch <- constMetric(safeName+"_95th_percentile", "Timer 95th percentile", prometheus.GaugeValue, snapshot.Percentile(0.95)/float64(time.Millisecond))

		case metrics.Meter:
			snapshot := metric.Snapshot()
			ch <- constMetric(safeName+"_rate1", "Meter 1m rate", prometheus.GaugeValue, snapshot.Rate1())
			ch <- constMetric(safeName+"_count", "Meter count", prometheus.CounterValue, float64(snapshot.Count()))
		}
	})
}

func constMetric(name, help string, valueType prometheus.ValueType, value float64) prometheus.Metric {
	return prometheus.MustNewConstMetric(prometheus.NewDesc(name, help, nil, nil), valueType, value)
}

func sanitizeMetricName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

func startPrometheusMetrics(opts PrometheusConfig, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(opts.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              opts.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("Starting Prometheus metrics endpoint on %s%s", opts.Address, opts.Path)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Prometheus HTTP server failed")
		}
	}()

	return server
}
