// Package scheduler runs periodic jobs and event consumers.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fintrack/backend/pkg/events"
	"github.com/googleapis/gax-go/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PeriodicHandler is run on a schedule with the time it was triggered at.
type PeriodicHandler func(ctx context.Context, now time.Time) error

// Scheduler triggers periodic handlers with cron expressions and runs
// event consumers. Handlers are independent of each other: a slow or failing
// handler never delays another one.
type Scheduler struct {
	cron      *cron.Cron
	source    events.Source
	consumers []consumer

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type consumer struct {
	topic   string
	handler events.Handler
}

// New returns a Scheduler that evaluates schedules in UTC and consumes events
// from source.
func New(source events.Source) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log.Logger})),
		),
		source: source,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterPeriodic runs handler on a standard five field cron schedule, e.g.
// "0 */6 * * *". Runs of the same handler never overlap, a trigger that fires
// while the previous run is still going is skipped.
func (s *Scheduler) RegisterPeriodic(name, schedule string, handler PeriodicHandler) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.runPeriodic(name, handler)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, name, err)
	}

	log.Debug().Str("job", name).Str("schedule", schedule).Msg("Scheduler")
	return nil
}

func (s *Scheduler) runPeriodic(name string, handler PeriodicHandler) {
	logger := log.With().Str("job", name).Logger()
	start := time.Now().UTC()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Msgf("Job panicked: %v", r)
		}
	}()

	logger.Info().Msg("Job started")
	if err := handler(s.ctx, start); err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Job failed")
		return
	}
	logger.Info().Dur("duration", time.Since(start)).Msg("Job finished")
}

// RegisterEventConsumer handles all messages of the topic. Consumers must be
// registered before Start.
func (s *Scheduler) RegisterEventConsumer(topic string, handler events.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumers = append(s.consumers, consumer{topic: topic, handler: handler})
}

// Start starts the cron triggers and all event consumers.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.consumers {
		s.wg.Add(1)
		go s.consume(c)
	}

	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Int("consumers", len(s.consumers)).Msg("Scheduler started")
}

// consume subscribes to the topic until the scheduler stops. Failed
// subscriptions are retried with backoff.
func (s *Scheduler) consume(c consumer) {
	defer s.wg.Done()

	backoff := gax.Backoff{Initial: time.Second, Max: time.Minute, Multiplier: 2}
	for {
		err := s.source.Subscribe(s.ctx, c.topic, func(ctx context.Context, body []byte) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("consumer panicked: %v", r)
				}
			}()
			return c.handler(ctx, body)
		})

		if s.ctx.Err() != nil {
			return
		}

		pause := backoff.Pause()
		log.Error().Err(err).Str("topic", c.topic).Dur("retry_in", pause).Msg("Subscription ended")
		if gax.Sleep(s.ctx, pause) != nil {
			return
		}
	}
}

// Stop stops all triggers and consumers and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// cronLogger routes cron's log output to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
