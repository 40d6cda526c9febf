package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/rory503/complaintwatch/internal/acquisition"
	"github.com/rory503/complaintwatch/internal/cache"
	"github.com/rory503/complaintwatch/internal/config"
	"github.com/rory503/complaintwatch/internal/environment"
	"github.com/rory503/complaintwatch/internal/leader"
	"github.com/rory503/complaintwatch/internal/ratelimit"
	"github.com/rory503/complaintwatch/internal/redis"
	"github.com/rory503/complaintwatch/internal/server"
	"github.com/rory503/complaintwatch/internal/source"
	"github.com/rory503/complaintwatch/internal/version"
)

const cacheName = "complaints"

// infrastructure holds core infrastructure components. redisClient and
// limiter stay nil when no Redis-backed feature is in play.
type infrastructure struct {
	strategy    environment.Strategy
	redisClient redis.Client
	elector     leader.Elector
	store       cache.Store
	limiter     ratelimit.Service
}

// services holds application services.
type services struct {
	coordinator *acquisition.Coordinator
	refresher   *acquisition.Refresher
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := setupLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadAndValidateConfig(logger, *configPath)
	if err != nil {
		logger.WithError(err).Fatal("Configuration error")
	}

	infra, err := setupInfrastructure(ctx, logger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Infrastructure setup failed")
	}

	svc, err := setupServices(ctx, logger, cfg, infra)
	if err != nil {
		logger.WithError(err).Fatal("Service setup failed")
	}

	srv, err := startServer(cfg, logger, infra, svc)
	if err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	shutdownGracefully(logger, cfg, srv, svc, infra)
}

// setupLogger creates and configures the application logger.
func setupLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})

	logger.WithFields(logrus.Fields{
		"version":    version.Short(),
		"git_commit": version.GitCommit,
		"build_date": version.BuildDate,
	}).Info("Starting...")

	return logger
}

// loadAndValidateConfig loads the configuration file and validates it.
func loadAndValidateConfig(logger *logrus.Logger, configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	level, parseErr := logrus.ParseLevel(cfg.Server.LogLevel)
	if parseErr != nil {
		logger.WithError(parseErr).Warn("Invalid log level, using info")

		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"port":      cfg.Server.Port,
		"log_level": cfg.Server.LogLevel,
	}).Info("Configuration loaded")

	return cfg, nil
}

// setupInfrastructure resolves the deployment strategy and wires the cache
// backend, Redis, leader election, and the rate limiter.
func setupInfrastructure(
	ctx context.Context,
	logger *logrus.Logger,
	cfg *config.Config,
) (*infrastructure, error) {
	infra := &infrastructure{}

	infra.strategy = resolveStrategy(logger, cfg)

	backend := cfg.Cache.Backend
	if backend == "" {
		// Hosted platforms have ephemeral filesystems, so the shared Redis
		// cache is the default there.
		if infra.strategy == environment.StrategyCloud {
			backend = "redis"
		} else {
			backend = "file"
		}
	}

	needRedis := backend == "redis" || cfg.RateLimiting.Enabled
	if needRedis && cfg.Redis.Address != "" {
		infra.redisClient = startRedis(ctx, logger, cfg)
	} else if needRedis {
		logger.Warn("Redis-backed feature requested but redis.address is not set")
	}

	if backend == "redis" && infra.redisClient == nil {
		// A local cache beats no cache.
		logger.Warn("Redis unavailable, falling back to file cache")

		backend = "file"
	}

	if err := infra.setupStore(logger, cfg, backend); err != nil {
		return nil, err
	}

	// With a shared Redis cache, only one replica refreshes at a time.
	// File caches are per-process, so every instance leads itself.
	if infra.redisClient != nil && backend == "redis" {
		infra.elector = leader.NewElector(logger, leader.Config{
			LockKey:       cfg.Leader.LockKey,
			LockTTL:       cfg.Leader.LockTTL,
			RenewInterval: cfg.Leader.RenewInterval,
			RetryInterval: cfg.Leader.RetryInterval,
		}, infra.redisClient)

		if err := infra.elector.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start leader election: %w", err)
		}
	} else {
		infra.elector = leader.NewStandalone()
	}

	if cfg.RateLimiting.Enabled && infra.redisClient != nil {
		infra.limiter = ratelimit.NewService(logger, infra.redisClient, cfg.RateLimiting.FailureMode)

		if err := infra.limiter.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start rate limiter: %w", err)
		}
	} else if cfg.RateLimiting.Enabled {
		logger.Warn("Rate limiting enabled but Redis unavailable, disabled")
	}

	return infra, nil
}

// resolveStrategy applies the config override or detects from environment.
func resolveStrategy(logger *logrus.Logger, cfg *config.Config) environment.Strategy {
	if cfg.Environment.Override != "" {
		strategy, err := environment.Parse(cfg.Environment.Override)
		if err == nil {
			logger.WithField("strategy", string(strategy)).Info("Strategy overridden by config")

			return strategy
		}

		logger.WithError(err).Warn("Invalid strategy override, detecting")
	}

	strategy := environment.Detect()
	logger.WithField("strategy", string(strategy)).Info("Deployment strategy detected")

	return strategy
}

// startRedis starts the Redis client, returning nil when unreachable so the
// caller can degrade instead of refusing to boot.
func startRedis(ctx context.Context, logger *logrus.Logger, cfg *config.Config) redis.Client {
	client := redis.NewClient(logger, redis.Config{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	})

	if err := client.Start(ctx); err != nil {
		logger.WithError(err).Warn("Redis unreachable")

		return nil
	}

	return client
}

func (i *infrastructure) setupStore(
	logger *logrus.Logger,
	cfg *config.Config,
	backend string,
) error {
	var err error

	switch backend {
	case "redis":
		i.store, err = cache.NewRedisStore(logger, i.redisClient, cacheName, cfg.Cache.TTL)
	default:
		i.store, err = cache.NewFileStore(logger, cfg.Cache.Dir)
	}

	if err != nil {
		return fmt.Errorf("failed to create %s cache store: %w", backend, err)
	}

	logger.WithField("backend", backend).Info("Cache store ready")

	return nil
}

// setupServices initializes the source client, the acquisition coordinator,
// and the background cache refresher.
func setupServices(
	ctx context.Context,
	logger *logrus.Logger,
	cfg *config.Config,
	infra *infrastructure,
) (*services, error) {
	svc := &services{}

	sourceClient, err := source.New(&cfg.Source, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create source client: %w", err)
	}

	svc.coordinator, err = acquisition.New(logger, cfg.Acquisition, infra.store, sourceClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create acquisition coordinator: %w", err)
	}

	svc.refresher = acquisition.NewRefresher(
		logger,
		cfg.Acquisition.RefreshInterval,
		svc.coordinator,
		infra.elector,
	)

	if err := svc.refresher.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start cache refresher: %w", err)
	}

	logger.Info("Acquisition services started")

	return svc, nil
}

// startServer creates and starts the HTTP server.
func startServer(
	cfg *config.Config,
	logger *logrus.Logger,
	infra *infrastructure,
	svc *services,
) (*server.Server, error) {
	srv, err := server.New(logger, cfg, infra.strategy, svc.coordinator, infra.store, infra.limiter)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server starting")

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server error")
		}
	}()

	return srv, nil
}

// shutdownGracefully performs graceful shutdown of all services.
// Shutdown order:
// 1. HTTP server (stop accepting requests).
// 2. Refresher (stop background refresh loop).
// 3. Leader election (release leadership lock).
// 4. Rate limiter and Redis client (close connections).
func shutdownGracefully(
	logger *logrus.Logger,
	cfg *config.Config,
	srv *server.Server,
	svc *services,
	infra *infrastructure,
) {
	logger.Info("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error during server shutdown")
	}

	if svc.refresher != nil {
		if err := svc.refresher.Stop(); err != nil {
			logger.WithError(err).Error("Error stopping cache refresher")
		}
	}

	if err := infra.elector.Stop(); err != nil {
		logger.WithError(err).Error("Error stopping leader election")
	}

	if infra.limiter != nil {
		if err := infra.limiter.Stop(); err != nil {
			logger.WithError(err).Error("Error stopping rate limiter")
		}
	}

	if infra.redisClient != nil {
		if err := infra.redisClient.Stop(); err != nil {
			logger.WithError(err).Error("Error stopping Redis client")
		}
	}

	logger.Info("Server stopped gracefully")
}
