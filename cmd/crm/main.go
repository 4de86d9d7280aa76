package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"energy-crm/api"
	"energy-crm/api/services"
	"energy-crm/db"
	"energy-crm/pkg/config"
	"energy-crm/pkg/fixtures"
	"energy-crm/pkg/preferences"
	embeddednats "energy-crm/pkg/services/embedded-nats"
	"energy-crm/pkg/services/workers"
	"energy-crm/pkg/shared"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

func main() {
	seed := flag.Bool("seed", false, "insert fixture cases into an empty case store")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log, closeLog, err := setupLogger(cfg.LogEnv, cfg.LogFile)
	if err != nil {
		logrus.WithError(err).Fatal("failed to set up logger")
	}
	defer closeLog()
	log = log.WithField("service", cfg.ServiceName)

	if err := run(cfg, *seed, log); err != nil {
		log.WithError(err).Error("server exited with error")
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, seed bool, log *logrus.Entry) error {
	data, err := fixtures.Load()
	if err != nil {
		return err
	}

	var (
		nats          *embeddednats.EmbeddedNATS
		workerManager *workers.Manager
		storage       preferences.Storage = preferences.NewMemoryStorage()
		publisher     services.EventPublisher
		opts          = api.Options{ServiceName: cfg.ServiceName, Version: cfg.Version}
	)

	if cfg.NATSEnabled {
		nats, err = initNATS(cfg, log)
		if err != nil {
			return err
		}
		defer shutdownNATS(nats, log)

		kv, err := nats.KeyValue(shared.BucketPreferences)
		if err != nil {
			return err
		}
		storage = preferences.NewKVStorage(kv)
		publisher = nats
		opts.NATS = nats

		workerManager, err = workers.NewManager(nats, log)
		if err != nil {
			return errors.Wrap(err, "failed to create worker manager")
		}
		if err := workerManager.Start(); err != nil {
			return errors.Wrap(err, "failed to start workers")
		}
		defer func() {
			if err := workerManager.Stop(); err != nil {
				log.WithError(err).Warn("failed to stop workers")
			}
		}()
		opts.Activity = workerManager
	} else {
		log.Info("NATS disabled; preferences kept in memory and case events not published")
	}

	if cfg.Persisted() {
		dbService, err := initDB(cfg, log)
		if err != nil {
			return err
		}
		defer dbService.Close()

		opts.Cases = services.NewCaseService(dbService.DB, dbService.Dialect, publisher, log)
		opts.Store = dbService

		if seed {
			n, err := opts.Cases.SeedCases(context.Background(), data.Cases)
			if err != nil {
				return errors.Wrap(err, "failed to seed cases")
			}
			log.WithField("count", n).Info("seeded cases")
		}
	} else {
		log.Warn("DATABASE_URL not set; running in mock mode, case endpoints will answer 503")
		if seed {
			log.Warn("-seed ignored without DATABASE_URL")
		}
	}

	opts.Directory = services.NewDirectoryService(data, log)
	opts.Preferences = preferences.NewRegistry(storage, log)

	handlers := api.NewHandlers(opts, log)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handlers, cfg.APIBearerToken, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":         cfg.Port,
			"mode":         modeName(cfg),
			"bearer_auth":  cfg.APIBearerToken != "",
			"nats_enabled": cfg.NATSEnabled,
		}).Info("starting CRM API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("shutting down server")
	case err := <-serverErr:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("failed to shutdown server gracefully")
	}

	log.Info("server shutdown complete")
	return nil
}

func initDB(cfg *config.Config, log *logrus.Entry) (*db.Service, error) {
	dbConfig := db.DefaultConfig()
	dbConfig.DSN = cfg.DatabaseURL
	dialect, _, err := db.ParseDSN(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if dialect == db.DialectPostgres {
		dbConfig.MaxOpenConns = cfg.DBMaxOpenConns
		dbConfig.MaxIdleConns = cfg.DBMaxOpenConns
	}

	dbService, err := db.New(dbConfig, log.WithField("component", "db"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize database service")
	}

	if err := dbService.VerifySchema(); err != nil {
		log.WithError(err).Warn("schema verification failed, re-applying schema")
		if err := dbService.InitializeSchema(); err != nil {
			dbService.Close()
			return nil, errors.Wrap(err, "failed to initialize schema")
		}
	}
	return dbService, nil
}

func initNATS(cfg *config.Config, log *logrus.Entry) (*embeddednats.EmbeddedNATS, error) {
	natsConfig := embeddednats.DefaultConfig()
	natsConfig.Port = cfg.NATSPort
	natsConfig.DataDir = cfg.NATSDataDir

	nats := embeddednats.New(natsConfig, log)
	if err := nats.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start embedded NATS")
	}
	return nats, nil
}

func shutdownNATS(nats *embeddednats.EmbeddedNATS, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := nats.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to shutdown NATS")
	}
}

func modeName(cfg *config.Config) string {
	if cfg.Persisted() {
		return shared.ModePersisted
	}
	return shared.ModeMock
}
