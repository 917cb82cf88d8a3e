package simulation

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Driver is invoked once per simulation step. A tick publishes zero or more
// events synchronously in the order they were generated.
type Driver interface {
	Tick(ctx context.Context, simulatedTime time.Time, step time.Duration) error
}

type DriverFunc func(ctx context.Context, simulatedTime time.Time, step time.Duration) error

func (fn DriverFunc) Tick(ctx context.Context, simulatedTime time.Time, step time.Duration) error {
	return fn(ctx, simulatedTime, step)
}

type SchedulerConfig struct {
	// Real time between two ticks, at least one second.
	Interval time.Duration

	// Simulated time that passes with every tick.
	Step time.Duration

	// Simulated time of the first tick.
	Start time.Time

	// Stop the simulation on the first failing tick.
	AbortOnError bool
}

type Scheduler struct {
	log     *logrus.Entry
	config  SchedulerConfig
	drivers []Driver

	mu        sync.Mutex
	simulated time.Time
}

func NewScheduler(config SchedulerConfig, drivers ...Driver) *Scheduler {
	if config.Step <= 0 {
		config.Step = 5 * time.Minute
	}

	if config.Start.IsZero() {
		config.Start = time.Now().Truncate(time.Hour)
	}

	return &Scheduler{
		log:       logrus.WithField("prefix", "scheduler"),
		config:    config,
		drivers:   drivers,
		simulated: config.Start,
	}
}

// SimulatedTime returns the time the next tick will run at.
func (s *Scheduler) SimulatedTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.simulated
}

// Step runs one tick of every driver and advances the simulated time. All
// drivers are ticked, even if an earlier one failed.
func (s *Scheduler) Step(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result error
	for _, driver := range s.drivers {
		if err := driver.Tick(ctx, s.simulated, s.config.Step); err != nil {
			result = multierror.Append(result, err)
		}
	}

	s.simulated = s.simulated.Add(s.config.Step)
	return result
}

// Run ticks all drivers in the configured interval until the context is
// cancelled. A failing tick is logged, with AbortOnError it stops the
// scheduler and is returned.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return errors.Errorf("invalid simulation interval %s", s.config.Interval)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cronLogger{s.log}

	scheduler := cron.New(cron.WithLogger(logger), cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))

	failed := make(chan error, 1)

	_, err := scheduler.AddFunc("@every "+s.config.Interval.String(), func() {
		err := s.Step(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		s.log.Warnf("Simulation step failed: %s", err)

		if s.config.AbortOnError {
			select {
			case failed <- err:
			default:
			}

			cancel()
		}
	})

	if err != nil {
		return errors.Wrapf(err, "schedule simulation every %s", s.config.Interval)
	}

	s.log.Infof("Starting simulation at %s, %s per tick", s.SimulatedTime().Format(time.RFC3339), s.config.Step)

	scheduler.Start()
	<-ctx.Done()

	// wait for a running tick to finish
	<-scheduler.Stop().Done()

	select {
	case err := <-failed:
		return errors.WithMessage(err, "simulation aborted")
	default:
		return ctx.Err()
	}
}

type cronLogger struct {
	log *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fieldsOf(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fieldsOf(keysAndValues)).WithError(err).Error(msg)
}

func fieldsOf(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for idx := 0; idx+1 < len(keysAndValues); idx += 2 {
		if key, ok := keysAndValues[idx].(string); ok {
			fields[key] = keysAndValues[idx+1]
		}
	}

	return fields
}
