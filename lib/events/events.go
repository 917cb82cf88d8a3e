package events

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ErrInvalidState is returned when publishing to a producer that was already closed.
var ErrInvalidState = errors.New("producer is closed")

type Publisher interface {
	// Publish the key/value pair to the topic of this publisher.
	Publish(ctx context.Context, key, value interface{}) error

	// Close the publisher and flush all pending events.
	// Waits for all events to be send out.
	Close() error
}

// A slice of publishers. Closing it closes every publisher.
type Publishers []Publisher

func (publishers Publishers) Close() error {
	var result error

	for _, publisher := range publishers {
		if err := publisher.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result
}
