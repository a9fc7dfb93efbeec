package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"regcast/internal/platform/config"
	"regcast/internal/platform/httpserver"
	"regcast/internal/platform/logger"
	platformredis "regcast/internal/platform/redis"
	"regcast/internal/registry/coordinator"
	kafkadur "regcast/internal/registry/durability/kafka"
	"regcast/internal/registry/messenger/channel"
	redismsg "regcast/internal/registry/messenger/redis"
	"regcast/internal/registry/metrics"
	"regcast/internal/registry/ports"
	memorystore "regcast/internal/registry/store/memory"
	postgresstore "regcast/internal/registry/store/postgres"
	redisstore "regcast/internal/registry/store/redis"
	httptransport "regcast/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Registry logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	store, health, cleanup, err := buildStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	messenger, msgCleanup := buildMessenger(redisClient, log)
	if msgCleanup != nil {
		defer msgCleanup()
	}

	opts := []coordinator.Option{
		coordinator.WithLogger(log),
		coordinator.WithMetrics(metrics.New()),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.Topic),
			kgo.AllowAutoTopicCreation(),
		)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaClient.Close()
		opts = append(opts, coordinator.WithDurability(kafkadur.New(kafkaClient, cfg.Kafka.Topic)))
	}

	coord, err := coordinator.New(registryConfig(cfg.Registry), store, messenger, opts...)
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}
	defer coord.Close()

	handler := httptransport.NewHandler(coord, log)
	router := httptransport.NewRouter(handler, log, health)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting regcast",
		"addr", cfg.Addr,
		"store", cfg.Registry.StoreBackend,
		"durability", len(cfg.Kafka.Brokers) > 0,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildStore picks the registry store backend from configuration. The
// returned HealthChecker may be nil when the backend has no liveness probe.
func buildStore(ctx context.Context, cfg config.Server, redisClient *platformredis.Client) (ports.RegistryStore, httptransport.HealthChecker, func(), error) {
	switch cfg.Registry.StoreBackend {
	case "memory", "":
		return memorystore.New(), nil, nil, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, nil, fmt.Errorf("store backend redis requires REGCAST_REDIS_URL")
		}
		return redisstore.New(redisClient.Client), redisClient, nil, nil
	case "postgres":
		if cfg.Postgres.URL == "" {
			return nil, nil, nil, fmt.Errorf("store backend postgres requires REGCAST_POSTGRES_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := postgresstore.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, pgxHealth{pool}, pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Registry.StoreBackend)
	}
}

// buildMessenger prefers Redis pub/sub when Redis is configured and falls
// back to the in-process channel messenger otherwise.
func buildMessenger(redisClient *platformredis.Client, log *slog.Logger) (ports.Messenger, func()) {
	if redisClient != nil {
		return redismsg.New(redisClient.Client), nil
	}
	log.Info("redis not configured, using in-process messenger")
	ch := channel.New()
	return ch, ch.Close
}

func registryConfig(rc config.RegistryConfig) coordinator.Config {
	return coordinator.Config{
		EvictionInterval: rc.EvictionInterval,
		DefaultTTL:       rc.DefaultTTL,
		MaxIdentities:    rc.MaxIdentities,
		TopicPrefix:      rc.TopicPrefix,
		MaxConcurrency:   rc.MulticastMaxConcurrency,
		DefaultTimeout:   rc.MulticastDefaultTimeout,
		RetryAttempts:    rc.MulticastRetryAttempts,
		RetryBackoff:     rc.MulticastRetryBackoff,
	}
}

type pgxHealth struct {
	pool *pgxpool.Pool
}

func (p pgxHealth) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
