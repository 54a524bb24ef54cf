package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"linknet/internal/netvalue"
)

// Config is the full application configuration, built from environment
// variables so main stays lean.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
	Domain DomainConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// DBConfig holds the postgres connection. Empty DSN selects the in-memory
// stores.
type DBConfig struct {
	DSN string
}

// RedisConfig holds the acceleration-layer and pub/sub connection. Empty URL
// disables both.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the change-event topic. No brokers disables the sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// DomainConfig carries the tunables of the consistency engine itself.
type DomainConfig struct {
	// ValuePerConnection is the single source of truth for network-value
	// math, shared with every display layer through the aggregator.
	ValuePerConnection float64
	ProfileCacheTTL    time.Duration
	NotifierBuffer     int
}

// FromEnv builds a Config from environment variables with dev defaults.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:            getEnv("LINKNET_ADDR", ":8080"),
			LogLevel:        getEnv("LINKNET_LOG_LEVEL", "info"),
			ShutdownTimeout: getDuration("LINKNET_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: DBConfig{
			DSN: os.Getenv("LINKNET_DB_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("LINKNET_REDIS_URL"),
			PoolSize:     getInt("LINKNET_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("LINKNET_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("LINKNET_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("LINKNET_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("LINKNET_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("LINKNET_KAFKA_BROKERS")),
			Topic:   getEnv("LINKNET_KAFKA_TOPIC", "linknet.connection-changes"),
		},
		Domain: DomainConfig{
			ValuePerConnection: getFloat("LINKNET_VALUE_PER_CONNECTION", netvalue.DefaultValuePerConnection),
			ProfileCacheTTL:    getDuration("LINKNET_PROFILE_CACHE_TTL", time.Minute),
			NotifierBuffer:     getInt("LINKNET_NOTIFIER_BUFFER", 256),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
