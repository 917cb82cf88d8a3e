package startup_base

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "startup-base")

func FatalOnError(err error, reason string, args ...interface{}) {
	if err != nil {
		log.Fatalf("%s: %s", fmt.Sprintf(reason, args...), err)
	}
}

func PanicOnError(err error, msg string, args ...interface{}) {
	if err != nil {
		panic(errors.WithMessagef(err, msg, args...))
	}
}

func OpenWriter(name string) (*os.File, error) {
	switch name {
	case "", "/dev/stderr":
		return os.Stderr, nil

	case "/dev/stdout", "-":
		return os.Stdout, nil

	case "/dev/null":
		return nil, nil

	default:
		// some output file
		file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		return file, errors.Wrap(err, "open log file")
	}
}

// Close closes the closer and logs a failure instead of returning it.
func Close(closer io.Closer, onErrorMessage string) {
	if err := closer.Close(); err != nil {
		log.WithError(err).Warn(onErrorMessage)
	}
}

// SignalContext returns a context that is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	go func() {
		<-ctx.Done()
		log.Info("Shutting down")
	}()

	return ctx, cancel
}
