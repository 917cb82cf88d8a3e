package transit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flachnetz/transit/startup_kafka"
)

type metricsGroup struct {
	Prefix string `long:"prefix" default:"test"`

	initialized bool
}

func (m *metricsGroup) Initialize() {
	m.initialized = true
}

type consumerGroup struct {
	Topic string `long:"topic" validate:"required"`

	metrics *metricsGroup
}

func (c *consumerGroup) Initialize(metrics *metricsGroup) {
	c.metrics = metrics
}

func TestParseCommandLine_InjectsOptionGroups(t *testing.T) {
	var opts struct {
		Metrics  metricsGroup
		Consumer consumerGroup
	}

	err := ParseCommandLine(&opts, []string{"--topic", "com.udacity.weather"})
	require.NoError(t, err)

	require.True(t, opts.Metrics.initialized)
	require.Equal(t, "test", opts.Metrics.Prefix)
	require.Same(t, &opts.Metrics, opts.Consumer.metrics)
	require.Equal(t, "com.udacity.weather", opts.Consumer.Topic)
}

func TestParseCommandLine_MissingDependency(t *testing.T) {
	var opts struct {
		Consumer consumerGroup
		Metrics  metricsGroup
	}

	err := ParseCommandLine(&opts, []string{"--topic", "t"})
	require.Error(t, err)
}

func TestParseCommandLine_Validates(t *testing.T) {
	var opts struct {
		Consumer consumerGroup
	}

	require.Error(t, ParseCommandLine(&opts, nil))
	require.Error(t, ParseCommandLine(opts, []string{"--topic", "t"}))
}

func TestParseCommandLine_KafkaOptions(t *testing.T) {
	var opts struct {
		Kafka startup_kafka.KafkaOptions
	}

	err := ParseCommandLine(&opts, []string{
		"--kafka-address", "broker-1:9092",
		"--kafka-address", "broker-2:9092",
		"--kafka-offset-earliest",
		"--kafka-idle-sleep", "2s",
	})

	require.NoError(t, err)

	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, opts.Kafka.KafkaAddresses)
	require.True(t, opts.Kafka.KafkaOffsetEarliest)
	require.Equal(t, 100*time.Millisecond, opts.Kafka.KafkaPollTimeout)
	require.Equal(t, 2*time.Second, opts.Kafka.KafkaIdleSleep)
	require.Equal(t, "http://localhost:8082", opts.Kafka.RestProxyURL)
	require.Empty(t, opts.Kafka.KafkaConsumerGroup)
}

func TestParseCommandLine_RejectsInvalidBrokerAddress(t *testing.T) {
	var opts struct {
		Kafka startup_kafka.KafkaOptions
	}

	err := ParseCommandLine(&opts, []string{"--kafka-address", "no-port"})
	require.Error(t, err)
}

func TestParseCommandLine_KafkaSendTimeout(t *testing.T) {
	var opts struct {
		Kafka startup_kafka.KafkaOptions
	}

	err := ParseCommandLine(&opts, []string{"--kafka-send-timeout", "2500ms"})
	require.NoError(t, err)

	config := opts.Kafka.ConnectionConfig()
	require.Equal(t, []string{"localhost:9092"}, config.BootstrapServers)
	require.Equal(t, 2500*time.Millisecond, config.SendTimeout)

	timeout, err := config.ProducerConfig().Get("message.timeout.ms", nil)
	require.NoError(t, err)
	require.Equal(t, 2500, timeout)
}
