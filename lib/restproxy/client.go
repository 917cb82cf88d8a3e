package restproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/flachnetz/transit/lib/events/avro"
)

const ContentTypeAvro = "application/vnd.kafka.avro.v2+json"

type Config struct {
	// Base url of the kafka rest proxy, e.g. http://localhost:8082
	URL string

	Timeout  time.Duration
	RetryMax int

	// Minimum and maximum wait time between two tries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Log request and response bodies.
	Debug bool
}

// StatusError is returned if the rest proxy answers with a non 2xx status code.
type StatusError struct {
	Topic  string
	Status int
	Body   string
}

func (err StatusError) Error() string {
	return "publish to " + err.Topic + " failed with status " + http.StatusText(err.Status) + ": " + err.Body
}

type Record struct {
	Key   interface{} `json:"key"`
	Value interface{} `json:"value"`
}

type publishRequest struct {
	KeySchema   string   `json:"key_schema,omitempty"`
	ValueSchema string   `json:"value_schema,omitempty"`
	Records     []Record `json:"records"`
}

// Client publishes avro records through the http interface of the kafka rest proxy.
type Client struct {
	log     *logrus.Entry
	baseURL string
	http    *retryablehttp.Client
}

func NewClient(config Config) (*Client, error) {
	if _, err := url.ParseRequestURI(config.URL); err != nil {
		return nil, errors.Wrapf(err, "invalid rest proxy url %q", config.URL)
	}

	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	log := logrus.WithField("prefix", "rest-proxy")

	return &Client{
		log:     log,
		baseURL: strings.TrimSuffix(config.URL, "/"),
		http:    retryableHttpClient(log, config),
	}, nil
}

func retryableHttpClient(log *logrus.Entry, config Config) *retryablehttp.Client {
	httpClient := retryablehttp.NewClient()
	httpClient.HTTPClient = &http.Client{Timeout: config.Timeout}
	httpClient.RetryMax = config.RetryMax

	if config.RetryWaitMin > 0 {
		httpClient.RetryWaitMin = config.RetryWaitMin
	}

	if config.RetryWaitMax > 0 {
		httpClient.RetryWaitMax = config.RetryWaitMax
	}

	if config.Debug {
		httpClient.Logger = log

		httpClient.RequestLogHook = func(l retryablehttp.Logger, request *http.Request, i int) {
			log.Debugf("%s %s (%d. try)", request.Method, request.URL, i+1)
		}

		httpClient.ResponseLogHook = func(l retryablehttp.Logger, resp *http.Response) {
			body, _ := io.ReadAll(resp.Body)
			log.Debugf("Response:\n %s", string(body))
			resp.Body = io.NopCloser(bytes.NewReader(body))
		}
	} else {
		httpClient.Logger = nil
	}

	// keep the last response so the caller can report its status and body
	httpClient.ErrorHandler = func(resp *http.Response, err error, numTries int) (*http.Response, error) {
		if resp == nil {
			return nil, errors.Wrapf(err, "giving up after %d tries", numTries)
		}

		log.Warnf("Giving up after %d tries: %s", numTries, err)
		return resp, nil
	}

	return httpClient
}

// Publish sends the records to the topic in a single request. The schemas are
// sent with every request, the rest proxy registers them if needed.
func (c *Client) Publish(ctx context.Context, topic string, keySchema, valueSchema *avro.Schema, records ...Record) error {
	payload := publishRequest{Records: records}

	if keySchema != nil {
		payload.KeySchema = keySchema.String()
	}

	if valueSchema != nil {
		payload.ValueSchema = valueSchema.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode rest proxy request")
	}

	target := c.baseURL + "/topics/" + url.PathEscape(topic)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return errors.Wrap(err, "create request")
	}

	req.Header.Set("Content-Type", ContentTypeAvro)
	req.Header.Set("Accept", "application/vnd.kafka.v2+json")

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}

		return errors.WithMessagef(err, "publish to %s", topic)
	}

	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read response for %s", topic)
	}

	if resp.StatusCode/100 != 2 {
		c.log.Errorf("HTTP failed with status %d: %s", resp.StatusCode, string(responseBody))
		return StatusError{Topic: topic, Status: resp.StatusCode, Body: string(responseBody)}
	}

	return nil
}
