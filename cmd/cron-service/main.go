package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cuongbtq/mailup-sync/internal/api/router"
	"github.com/cuongbtq/mailup-sync/internal/bootstrap"
	"github.com/cuongbtq/mailup-sync/internal/config"
	"github.com/cuongbtq/mailup-sync/internal/worker"
	"github.com/cuongbtq/mailup-sync/internal/worker/dispatch"
	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
	"github.com/cuongbtq/mailup-sync/internal/worker/lists"
	"github.com/cuongbtq/mailup-sync/internal/worker/lock"
	"github.com/cuongbtq/mailup-sync/internal/worker/storage"
	"github.com/cuongbtq/mailup-sync/shared/postgresql"
	"github.com/cuongbtq/mailup-sync/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("CRON_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/cron-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	once := flag.Bool("once", false, "Run a single cron pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateCronConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting cron service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("once", *once),
	)

	dbClient, err := bootstrap.InitPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	var redisClient *goredis.Client
	if cfg.Redis.Address != "" {
		redisClient, err = bootstrap.InitRedis(&cfg.Redis, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer redisClient.Close()
	}

	var rabbitClient *rabbitmq.Client
	if cfg.Cron.Dispatcher == config.DispatcherAMQP || (cfg.Cron.TriggerConsumer && !*once) {
		rabbitClient, err = bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
	}

	locks, err := initLocks(cfg, dbClient, redisClient)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()

	store := storage.NewStorage(dbClient.GetDB(), appLogger.Component("storage"))
	runner := worker.NewRunner(&worker.RunnerConfig{
		Logger:               appLogger.Component("cron"),
		Locks:                locks,
		Jobs:                 store,
		Records:              store,
		Lists:                initResolver(cfg, redisClient, appLogger.Component("lists")),
		Dispatcher:           initDispatcher(cfg, rabbitClient, appLogger.Component("dispatch")),
		Settings:             &cfg.Stores,
		Journal:              storage.NewJournal(dbClient.GetDB(), appLogger.Component("journal")),
		Metrics:              worker.NewMetrics(registry),
		LockKey:              cfg.Cron.LockKey,
		LockStaleAfter:       cfg.Cron.LockStaleAfter,
		StuckJobThreshold:    cfg.Cron.StuckJobThreshold,
		StrictListResolution: cfg.Cron.IsStrictListResolution(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		report, err := runner.Run(ctx)
		if err != nil {
			return fmt.Errorf("cron run failed: %w", err)
		}
		appLogger.Info("Cron run finished",
			slog.String("outcome", report.Outcome),
			slog.Int("jobs_finished", report.JobsFinished),
			slog.Int("jobs_requeued", report.JobsRequeued),
			slog.Int("records_synced", report.RecordsSynced),
		)
		return nil
	}

	return runDaemon(ctx, cfg, appLogger.Logger, runner, rabbitClient, dbClient, registry)
}

func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger, runner *worker.Runner, rabbitClient *rabbitmq.Client, dbClient *postgresql.Client, registry *prometheus.Registry) error {
	w := worker.NewWorker(&worker.Config{
		Logger:     logger,
		Runner:     runner,
		Interval:   cfg.Cron.Interval,
		RunOnStart: cfg.Cron.RunOnStart,
	})

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.Start(ctx); err != nil {
			errChan <- fmt.Errorf("cron worker failed: %w", err)
		}
	}()

	if cfg.Cron.TriggerConsumer {
		consumer := worker.NewTriggerConsumer(logger, rabbitClient, w, "cron-"+uuid.NewString())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				errChan <- fmt.Errorf("trigger consumer failed: %w", err)
			}
		}()
	}

	var srv *http.Server
	if cfg.Server.Port != 0 {
		if cfg.App.Environment == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		srv = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router.SetupOpsRouter(logger, dbClient.HealthCheck, w, registry, cfg.App.Name),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}
		go func() {
			logger.Info("Starting ops HTTP server", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("ops server failed: %w", err)
			}
		}()
	}

	logger.Info("Cron service is running", slog.Duration("interval", cfg.Cron.Interval))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		logger.Error("Cron service component failed", slog.Any("error", runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Ops server forced to shutdown", slog.Any("error", err))
		}
	}

	if awaitShutdown(shutdownCtx, w.Stop, &wg) {
		logger.Info("Cron service shutdown complete")
	} else {
		logger.Warn("Shutdown timeout exceeded")
	}

	return runErr
}

// awaitShutdown stops the worker and waits for the service goroutines.
// It reports false when ctx expires first; stop blocks while a pass is in progress.
func awaitShutdown(ctx context.Context, stop func(), wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		stop()
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// initLocks selects the lock backend named in the cron section
func initLocks(cfg *config.Config, dbClient *postgresql.Client, redisClient *goredis.Client) (lock.Manager, error) {
	switch cfg.Cron.LockBackend {
	case config.LockBackendDatabase:
		return lock.NewSQLManager(dbClient.GetDB()), nil
	case config.LockBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis lock backend requires a redis address")
		}
		return lock.NewRedisManager(redisClient, ""), nil
	case config.LockBackendFile:
		return lock.NewFileManager(cfg.Cron.LockDir), nil
	default:
		return nil, fmt.Errorf("unknown lock backend: %q", cfg.Cron.LockBackend)
	}
}

// initResolver builds the list resolver, caching the catalogue in redis when available
func initResolver(cfg *config.Config, redisClient *goredis.Client, logger *slog.Logger) *lists.Resolver {
	var source lists.Source = lists.NewStaticSource(cfg.Lists)
	if redisClient != nil && cfg.Cron.ListCacheTTL > 0 {
		source = lists.NewCachedSource(source, redisClient, cfg.Cron.ListCacheTTL, logger)
	}
	return lists.NewResolver(source, &cfg.Stores, logger)
}

func initDispatcher(cfg *config.Config, rabbitClient *rabbitmq.Client, logger *slog.Logger) dispatch.Dispatcher {
	if cfg.Cron.Dispatcher == config.DispatcherDryRun {
		return dispatch.NewDryRun(logger, domain.ResultCode(cfg.Cron.DryRunResultCode))
	}
	return dispatch.NewAMQPDispatcher(rabbitClient, cfg.RabbitMQ.Export.RoutingKey, logger)
}
