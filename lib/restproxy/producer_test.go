package restproxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	rdkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	. "github.com/onsi/gomega"
	"go.uber.org/atomic"

	"github.com/flachnetz/transit/lib/events"
	"github.com/flachnetz/transit/lib/events/avro"
	"github.com/flachnetz/transit/lib/kafka"
)

type fakeAdmin struct {
	creates atomic.Int64
}

func (f *fakeAdmin) GetMetadata(topic *string, allTopics bool, timeoutMs int) (*rdkafka.Metadata, error) {
	return &rdkafka.Metadata{Topics: map[string]rdkafka.TopicMetadata{}}, nil
}

func (f *fakeAdmin) CreateTopics(ctx context.Context, topics []rdkafka.TopicSpecification, options ...rdkafka.CreateTopicsAdminOption) ([]rdkafka.TopicResult, error) {
	f.creates.Inc()
	return []rdkafka.TopicResult{{Topic: topics[0].Topic, Error: rdkafka.NewError(rdkafka.ErrNoError, "", false)}}, nil
}

type capturedRequest struct {
	Path        string
	ContentType string
	Body        map[string]interface{}
}

func proxyServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	var mu sync.Mutex
	var requests []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		var decoded map[string]interface{}
		_ = json.Unmarshal(body, &decoded)

		mu.Lock()
		requests = append(requests, capturedRequest{
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
			Body:        decoded,
		})
		mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error_code": 42201, "message": "schema mismatch"}`))
	}))

	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), requests...)
	}
}

var (
	keySchema = avro.MustParseSchema(`{
		"type": "record", "name": "weather.key",
		"fields": [{"name": "timestamp", "type": "long"}]
	}`)

	valueSchema = avro.MustParseSchema(`{
		"type": "record", "name": "weather.value",
		"fields": [{"name": "temperature", "type": "float"}, {"name": "status", "type": "string"}]
	}`)

	weatherConfig = events.ProducerConfig{
		Topic:       kafka.Topic{Name: "com.udacity.weather", NumPartitions: 2, ReplicationFactor: 1},
		KeySchema:   keySchema,
		ValueSchema: valueSchema,
	}
)

func newTestProducer(t *testing.T, server *httptest.Server) (*Producer, *fakeAdmin) {
	g := NewWithT(t)

	client, err := NewClient(Config{URL: server.URL, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
	g.Expect(err).NotTo(HaveOccurred())

	admin := &fakeAdmin{}
	topics := kafka.NewTopicRegistry(admin, kafka.TopicRegistryConfig{})

	producer, err := NewProducer(context.Background(), topics, client, weatherConfig)
	g.Expect(err).NotTo(HaveOccurred())

	return producer, admin
}

func TestProducer_Publish(t *testing.T) {
	g := NewWithT(t)

	server, requests := proxyServer(t, http.StatusOK)
	producer, admin := newTestProducer(t, server)

	g.Expect(admin.creates.Load()).To(BeEquivalentTo(1))

	err := producer.Publish(context.Background(),
		map[string]interface{}{"timestamp": 1500},
		map[string]interface{}{"temperature": 40.0, "status": "windy"})

	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(requests()).To(HaveLen(1))

	request := requests()[0]
	g.Expect(request.Path).To(Equal("/topics/com.udacity.weather"))
	g.Expect(request.ContentType).To(Equal("application/vnd.kafka.avro.v2+json"))

	g.Expect(request.Body).To(HaveKeyWithValue("key_schema", keySchema.String()))
	g.Expect(request.Body).To(HaveKeyWithValue("value_schema", valueSchema.String()))

	g.Expect(request.Body["records"]).To(ConsistOf(map[string]interface{}{
		"key":   map[string]interface{}{"timestamp": 1500.0},
		"value": map[string]interface{}{"temperature": 40.0, "status": "windy"},
	}))
}

func TestProducer_PublishFailsOnErrorStatus(t *testing.T) {
	g := NewWithT(t)

	server, _ := proxyServer(t, http.StatusUnprocessableEntity)
	producer, _ := newTestProducer(t, server)

	err := producer.Publish(context.Background(), map[string]interface{}{"timestamp": 1}, nil)
	g.Expect(err).To(HaveOccurred())

	var statusErr StatusError
	g.Expect(err).To(BeAssignableToTypeOf(StatusError{}))
	g.Expect(err).To(MatchError(ContainSubstring("schema mismatch")))

	statusErr = err.(StatusError)
	g.Expect(statusErr.Status).To(Equal(http.StatusUnprocessableEntity))
	g.Expect(statusErr.Topic).To(Equal("com.udacity.weather"))
}

type countingTransport struct {
	opened atomic.Int64
	closed atomic.Int64
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	c.opened.Inc()
	resp.Body = &countingBody{ReadCloser: resp.Body, closed: &c.closed}
	return resp, nil
}

type countingBody struct {
	io.ReadCloser
	closed *atomic.Int64
	once   sync.Once
}

func (b *countingBody) Close() error {
	b.once.Do(func() { b.closed.Inc() })
	return b.ReadCloser.Close()
}

func TestClient_PublishGivesUpAfterRetries(t *testing.T) {
	g := NewWithT(t)

	server, requests := proxyServer(t, http.StatusServiceUnavailable)

	client, err := NewClient(Config{
		URL:          server.URL,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
	})
	g.Expect(err).NotTo(HaveOccurred())

	transport := &countingTransport{}
	client.http.HTTPClient.Transport = transport

	err = client.Publish(context.Background(), "com.udacity.weather", keySchema, valueSchema,
		Record{Key: map[string]interface{}{"timestamp": 1}})

	// the last response is reported with its status
	var statusErr StatusError
	g.Expect(errors.As(err, &statusErr)).To(BeTrue())
	g.Expect(statusErr.Status).To(Equal(http.StatusServiceUnavailable))
	g.Expect(statusErr.Body).To(ContainSubstring("schema mismatch"))

	g.Expect(requests()).To(HaveLen(3))

	// every response body was released
	g.Expect(transport.opened.Load()).To(BeEquivalentTo(3))
	g.Expect(transport.closed.Load()).To(Equal(transport.opened.Load()))
}

func TestProducer_PublishAfterClose(t *testing.T) {
	g := NewWithT(t)

	server, requests := proxyServer(t, http.StatusOK)
	producer, _ := newTestProducer(t, server)

	g.Expect(producer.Close()).To(Succeed())

	err := producer.Publish(context.Background(), nil, nil)
	g.Expect(err).To(MatchError(events.ErrInvalidState))
	g.Expect(requests()).To(BeEmpty())
}

func TestNewClient_InvalidURL(t *testing.T) {
	g := NewWithT(t)

	_, err := NewClient(Config{URL: "not a url"})
	g.Expect(err).To(HaveOccurred())
}
