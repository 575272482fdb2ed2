package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fintrack/backend/internal/config"
	"github.com/fintrack/backend/pkg/alerts"
	"github.com/fintrack/backend/pkg/amqp"
	"github.com/fintrack/backend/pkg/controllers"
	"github.com/fintrack/backend/pkg/dispatch"
	"github.com/fintrack/backend/pkg/events"
	"github.com/fintrack/backend/pkg/insights"
	"github.com/fintrack/backend/pkg/jobs"
	"github.com/fintrack/backend/pkg/ledger"
	"github.com/fintrack/backend/pkg/metrics"
	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/pkg/notify"
	"github.com/fintrack/backend/pkg/reports"
	"github.com/fintrack/backend/pkg/router"
	"github.com/fintrack/backend/pkg/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// bus is an event transport that needs to be closed.
type bus interface {
	events.Bus
	io.Closer
}

func main() {
	cfg := config.Load()

	// gin uses debug as the default mode, we use release for
	// security reasons
	gin.SetMode(cfg.GinMode)

	// Log format can be explicitly set.
	// If it is not set, it defaults to human readable for development
	// and JSON for release
	output := io.Writer(os.Stdout)
	if (cfg.LogFormat == "" && gin.IsDebugging()) || cfg.LogFormat == "human" {
		output = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if gin.IsDebugging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(level)
	}
	log.Logger = log.Output(output).With().Timestamp().Logger()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Msg(err.Error())
	}

	if err := run(cfg); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create data directory
	err := os.MkdirAll(filepath.Dir(cfg.DatabaseDSN), os.ModePerm)
	if err != nil {
		return err
	}

	db, err := models.Connect(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	err = metrics.Register()
	if err != nil {
		return err
	}
	defer metrics.Unregister()

	var (
		transport bus
		notifier  notify.Notifier
	)

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}

		transport = client
		notifier = notify.NewQueueNotifier(client, notify.DefaultQueue)
		log.Info().Str("exchange", cfg.AMQPExchange).Msg("Events and notifications use AMQP")
	} else {
		transport = events.NewMemoryBus(0)
		notifier = notify.LogNotifier{}
		log.Info().Msg("AMQP disabled, events are processed in-process and notifications are logged")
	}
	defer transport.Close()

	var generator reports.InsightGenerator = insights.Static{}
	if cfg.GeminiAPIKey != "" {
		generator, err = insights.NewGeminiGenerator(ctx, insights.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
		if err != nil {
			return err
		}
	}

	formatter, err := notify.NewFormatter(cfg.ReportLocale)
	if err != nil {
		return err
	}

	dispatchOptions := dispatch.Options{Limit: cfg.ThrottleLimit, Period: cfg.ThrottlePeriod}

	j := jobs.New(
		ledger.NewScanner(db, 0),
		ledger.NewMutator(db, ledger.MutatorOptions{
			Anchor:      cfg.Anchor(),
			MaxAttempts: cfg.ApplyMaxAttempts,
		}),
		alerts.NewEvaluator(db, notifier, formatter, cfg.BudgetAlertThreshold),
		reports.NewReporter(db, generator, notifier, formatter),
		transport,
		jobs.Options{
			Dispatch:     dispatchOptions,
			ApplyTimeout: cfg.ApplyTimeout,
		},
	)

	s := scheduler.New(transport)
	err = j.Register(s, cfg.Schedules())
	if err != nil {
		return err
	}

	j.Dispatcher.Start(ctx)
	defer j.Dispatcher.Close()

	s.Start()
	defer s.Stop()

	log.Info().Str("dispatch", dispatchOptions.String()).Str("anchor", cfg.Anchor().String()).Msg("Scheduler started")

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	baseURL, err := url.Parse(apiURL)
	if err != nil {
		return err
	}

	options := router.Options{CORSAllowOrigins: cfg.CORSAllowOrigins, EnablePprof: cfg.EnablePprof}
	r, teardown, err := router.Config(baseURL, options)
	if err != nil {
		return err
	}
	defer teardown()

	// Attach the routes to the path of the API URL so that a reverse proxy
	// can serve the API on a sub path
	router.AttachRoutes(controllers.Controller{DB: db, Jobs: j}, r.Group(baseURL.Path), options)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("address", srv.Addr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
