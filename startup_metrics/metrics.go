package startup_metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/flachnetz/transit/startup_base"
)

var log = logrus.WithField("prefix", "metrics")

type MetricsOptions struct {
	Prometheus PrometheusConfig

	Inputs struct {
		// Prefix to apply to all metrics, e.g. the name of the binary.
		MetricsPrefix string `validate:"required"`

		// Disable capture of runtime metrics for some reasons
		NoRuntimeMetrics bool
	}

	once       sync.Once
	registry   metrics.Registry
	httpServer *http.Server
}

func (opts *MetricsOptions) Initialize() {
	opts.once.Do(func() {
		prefix := strings.TrimSuffix(opts.Inputs.MetricsPrefix, ".")
		if prefix == "" {
			startup_base.PanicOnError(errMissingPrefix, "initialize metrics")
		}

		log.Debugf("Prefixing all metrics with '%s'", prefix)
		opts.registry = prefixRegistry(metrics.DefaultRegistry, prefix)
		metrics.DefaultRegistry = opts.registry

		if !opts.Inputs.NoRuntimeMetrics {
			captureRuntimeMetrics(opts.registry)
		}

		if opts.Prometheus.Enabled {
			registry := prometheus.NewRegistry()
			startup_base.PanicOnError(registry.Register(NewCollector(opts.registry)), "register go-metrics collector")

			opts.httpServer = startPrometheusMetrics(opts.Prometheus, registry)
		}
	})
}

// Registry returns the registry all metrics of this process are registered in.
func (opts *MetricsOptions) Registry() metrics.Registry {
	opts.Initialize()
	return opts.registry
}

// Close stops the prometheus endpoint, if it was started.
func (opts *MetricsOptions) Close() error {
	if opts.httpServer == nil {
		return nil
	}

	return opts.httpServer.Close()
}

func captureRuntimeMetrics(registry metrics.Registry) {
	log.Debug("Start capturing of golang runtime metrics")

	// start capturing of metrics
	metrics.RegisterRuntimeMemStats(registry)
	go metrics.CaptureRuntimeMemStats(registry, 5*time.Second)
}

func prefixRegistry(r metrics.Registry, prefix string) metrics.Registry {
	// get a copy of all metrics
	backup := make(map[string]interface{})
	r.Each(func(name string, metric interface{}) {
		backup[name] = metric
	})

	// We must not unregister everything from this metrics, as this would
	// stop the Meters from updating.

	// insert them all into the prefixed registry
	prefixed := metrics.NewPrefixedChildRegistry(metrics.NewRegistry(), prefix+".")
	for name, metric := range backup {
		err := prefixed.Register(name, metric)
		startup_base.PanicOnError(err, "init prefixed registry")
	}

	return prefixed
}
