package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/gymcore/access-service/internal/api/http"
	"github.com/gymcore/access-service/internal/api/http/handlers"
	"github.com/gymcore/access-service/internal/auth"
	"github.com/gymcore/access-service/internal/config"
	"github.com/gymcore/access-service/internal/credential"
	"github.com/gymcore/access-service/internal/events"
	"github.com/gymcore/access-service/internal/observability"
	"github.com/gymcore/access-service/internal/persistence"
	"github.com/gymcore/access-service/internal/repository"
	"github.com/gymcore/access-service/internal/service"
	"github.com/gymcore/access-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	pool := pg.PoolHandle()
	if pool == nil {
		logger.Fatal("POSTGRES_DSN is required for the member directory")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisRequired := cfg.Access.LogBackend == config.AccessLogBackendRedis
	var redis *persistence.Redis
	if redisRequired || cfg.Redis.Addr != "" {
		redis, err = persistence.NewRedis(ctx, cfg.Redis, redisRequired, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()
	}

	var records repository.AccessRecordRepository
	switch cfg.Access.LogBackend {
	case config.AccessLogBackendRedis:
		records = repository.NewRedisAccessRecordRepository(redis.Client, cfg.Access.Retention())
	case config.AccessLogBackendMemory:
		logger.Warn("in-memory access log: single use is only enforced within this process")
		records = repository.NewMemoryAccessRecordRepository()
	default:
		records = repository.NewAccessRecordRepository(pool)
	}
	logger.Info("access log ready", zap.String("backend", cfg.Access.LogBackend))

	codec, err := credential.NewCodec([]byte(cfg.Access.CredentialSecret))
	if err != nil {
		logger.Fatal("invalid credential signing key", zap.Error(err))
	}

	memberRepo := repository.NewMemberRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	oracle := repository.NewMembershipOracle(pool)
	issuer := credential.NewIssuer(codec, repository.NewTimeoutOracle(oracle, cfg.Access.OracleTimeout()), cfg.Access.ValidityWindow())

	dispatcher := events.NewInMemoryDispatcher()
	eventQueue := events.NewQueuedDispatcher(dispatcher, cfg.Events.QueueSize, cfg.Events.WebhookTimeout()*2, logger)
	eventsDone := make(chan struct{})
	go func() {
		eventQueue.Run(ctx)
		close(eventsDone)
	}()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Events)

	var publisher *events.AMQPPublisher
	if cfg.Events.AMQPURL != "" {
		publisher, err = events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.AMQPExchange, logger)
		if err != nil {
			logger.Fatal("failed to connect amqp", zap.Error(err))
		}
		defer publisher.Close() //nolint:errcheck
	}
	worker.StartNotificationWorker(dispatcher, notificationService, publisher)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		MemberRepo: memberRepo,
		StaffRepo:  staffRepo,
		Logger:     logger,
	})
	if err := authService.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword); err != nil {
		logger.Fatal("failed to bootstrap admin account", zap.Error(err))
	}

	accessService := service.NewAccessService(cfg.Access, service.AccessDependencies{
		Codec:      codec,
		Issuer:     issuer,
		Oracle:     oracle,
		Records:    records,
		Dispatcher: eventQueue,
		Logger:     logger,
		Metrics:    metrics,
	})

	pruner := worker.NewPruneWorker(records, cfg.Access.Retention(), cfg.Access.PruneInterval(), logger, metrics)
	go pruner.Run(ctx)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	dependencies := map[string]handlers.Pinger{"postgres": pg}
	if redis != nil {
		dependencies["redis"] = redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Auth:           handlers.NewAuthHandler(authService),
		Access:         handlers.NewAccessHandler(accessService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), memberRepo, staffRepo),
		Policy:         auth.DefaultPolicyTable(),
		LoginLimiter:   auth.NewLoginLimiter(cfg.RateLimit.LoginPerSecond, cfg.RateLimit.LoginBurst),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	cancel()

	select {
	case <-eventsDone:
	case <-time.After(shutdownTimeout):
		logger.Warn("pending access events dropped at shutdown")
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
