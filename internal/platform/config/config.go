package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Registry RegistryConfig
}

// RedisConfig holds connection settings for the Redis-backed store and
// pub/sub messenger. An empty URL means Redis is not configured.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds the connection string for the Postgres-backed
// store. Empty means Postgres is not configured.
type PostgresConfig struct {
	URL string
}

// KafkaConfig holds broker settings for the Kafka durability log. An
// empty broker list means durability logging is disabled.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RegistryConfig carries the registry coordinator tunables. Zero values
// fall back to the coordinator's own defaults.
type RegistryConfig struct {
	StoreBackend     string
	EvictionInterval time.Duration
	DefaultTTL       time.Duration
	MaxIdentities    int
	TopicPrefix      string

	MulticastMaxConcurrency int
	MulticastDefaultTimeout time.Duration
	MulticastRetryAttempts  int
	MulticastRetryBackoff   time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("REGCAST_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return Server{
		Addr: addr,
		Redis: RedisConfig{
			URL:          os.Getenv("REGCAST_REDIS_URL"),
			PoolSize:     envInt("REGCAST_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REGCAST_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REGCAST_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REGCAST_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REGCAST_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("REGCAST_POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("REGCAST_KAFKA_BROKERS")),
			Topic:   envString("REGCAST_KAFKA_TOPIC", "regcast.changes"),
		},
		Registry: RegistryConfig{
			StoreBackend:            envString("REGCAST_STORE_BACKEND", "memory"),
			EvictionInterval:        envDuration("REGCAST_EVICTION_INTERVAL", 0),
			DefaultTTL:              envDuration("REGCAST_DEFAULT_TTL", 0),
			MaxIdentities:           envInt("REGCAST_MAX_IDENTITIES", 0),
			TopicPrefix:             os.Getenv("REGCAST_TOPIC_PREFIX"),
			MulticastMaxConcurrency: envInt("REGCAST_MULTICAST_MAX_CONCURRENCY", 0),
			MulticastDefaultTimeout: envDuration("REGCAST_MULTICAST_DEFAULT_TIMEOUT", 0),
			MulticastRetryAttempts:  envInt("REGCAST_MULTICAST_RETRY_ATTEMPTS", 0),
			MulticastRetryBackoff:   envDuration("REGCAST_MULTICAST_RETRY_BACKOFF", 0),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
