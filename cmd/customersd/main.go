// Command customersd runs the customer service: a file-backed event log, the
// entity registry handling commands, a projector feeding the SQLite read
// side, and the HTTP API on top.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"

	"github.com/terraskye/customers/customer"
	"github.com/terraskye/customers/customer/sqlite"
	"github.com/terraskye/customers/eventsourcing"
	"github.com/terraskye/customers/eventsourcing/eventstore/disk"
	"github.com/terraskye/customers/eventsourcing/logging"
	"github.com/terraskye/customers/httpapi"
)

type config struct {
	Addr           string        `env:"ADDR" envDefault:":8080"`
	DataDir        string        `env:"DATA_DIR" envDefault:"data/events"`
	DBPath         string        `env:"DB_PATH" envDefault:"data/customers.db"`
	PassivateAfter time.Duration `env:"PASSIVATE_AFTER" envDefault:"2m"`
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := env.ParseAsWithOptions[config](env.Options{Prefix: "CUSTOMERS_"})
	if err != nil {
		logger.WithError(err).Fatal("parse configuration")
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("customersd exited")
	}
}

func run(cfg config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventStore, err := disk.NewFileStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer eventStore.Close()

	readStore, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer readStore.Close()

	registry := eventsourcing.NewRegistry(
		eventStore,
		customer.InitialState(),
		customer.Evolve,
		customer.Decide,
		eventsourcing.WithPassivateAfter(cfg.PassivateAfter),
	)
	defer registry.Stop()

	queryBus := eventsourcing.NewQueryBus()
	customer.RegisterQueryHandlers(queryBus, readStore)

	ask := logging.WithAskLogging(logger.WithField("component", "entity"), registry.Ask)
	service := customer.NewService(ask, customer.NewQueryProvider(queryBus))

	projectionLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "projection")
	projector := eventsourcing.NewProjector(
		customer.ProjectionShard,
		eventStore,
		readStore,
		logging.WithLoggingMiddleware(projectionLogger, customer.NewProjection(readStore)),
		eventsourcing.WithProjectorLogger(projectionLogger),
	)

	projectorDone := make(chan error, 1)
	go func() {
		projectorDone <- projector.Run(ctx)
	}()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewHandler(service, logger.WithField("component", "httpapi")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Addr).Info("customersd listening")
		serverDone <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-projectorDone:
		// The projector only stops on cancellation or a halted shard.
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("projection halted")
		}
	case err := <-serverDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
