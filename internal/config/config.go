package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	BusNone  = "none"
	BusNats  = "nats"
	BusKafka = "kafka"
)

type Config struct {
	StoreProvider string
	StoreTimeout  time.Duration

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	SSLMode     string
	AutoMigrate bool

	Coordinator   string
	CASMaxRetries int
	CASBaseDelay  time.Duration

	DefaultBalance int64

	ApiPort             string
	GRPCPort            string
	HealthCheckInterval time.Duration

	BusProvider  string
	NatsHost     string
	NatsPort     string
	KafkaBrokers []string

	LogLevel slog.Level
}

// New loads and validates configuration from environment variables, after
// merging an optional .env file. Everything has a default except the
// Postgres settings, which are only required when STORE_PROVIDER=postgres.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreProvider:       getEnv("LEDGER_STORE_PROVIDER", StoreRedis),
		StoreTimeout:        getEnvDuration("LEDGER_STORE_TIMEOUT", 2*time.Second),
		RedisHost:           getEnv("LEDGER_REDIS_HOST", "localhost"),
		RedisPort:           getEnv("LEDGER_REDIS_PORT", "6379"),
		RedisPassword:       os.Getenv("LEDGER_REDIS_PASSWORD"),
		RedisDB:             getEnvInt("LEDGER_REDIS_DB", 0),
		RedisPoolSize:       getEnvInt("LEDGER_REDIS_POOL_SIZE", 20),
		DBUser:              os.Getenv("LEDGER_POSTGRES_USER"),
		DBPass:              os.Getenv("LEDGER_POSTGRES_PASSWORD"),
		DBHost:              os.Getenv("LEDGER_POSTGRES_HOST"),
		DBPort:              getEnv("LEDGER_POSTGRES_PORT", "5432"),
		DBName:              os.Getenv("LEDGER_POSTGRES_DB"),
		SSLMode:             getEnv("LEDGER_POSTGRES_SSLMODE", "disable"),
		AutoMigrate:         getEnv("LEDGER_POSTGRES_AUTO_MIGRATE", "true") == "true",
		Coordinator:         getEnv("LEDGER_COORDINATOR", "lock"),
		CASMaxRetries:       getEnvInt("LEDGER_CAS_MAX_RETRIES", 10),
		CASBaseDelay:        getEnvDuration("LEDGER_CAS_BASE_DELAY", 5*time.Millisecond),
		DefaultBalance:      int64(getEnvInt("LEDGER_DEFAULT_BALANCE", 100)),
		ApiPort:             getEnv("LEDGER_API_PORT", "8080"),
		GRPCPort:            os.Getenv("LEDGER_GRPC_PORT"),
		HealthCheckInterval: getEnvDuration("LEDGER_HEALTH_INTERVAL", 5*time.Second),
		BusProvider:         getEnv("LEDGER_BUS_PROVIDER", BusNone),
		NatsHost:            os.Getenv("LEDGER_NATS_HOST"),
		NatsPort:            getEnv("LEDGER_NATS_PORT", "4222"),
		KafkaBrokers:        splitList(os.Getenv("LEDGER_KAFKA_BROKERS")),
	}

	level, err := parseLevel(getEnv("LEDGER_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreProvider {
	case StoreRedis, StoreMemory:
	case StorePostgres:
		if c.DBUser == "" || c.DBHost == "" || c.DBName == "" {
			return fmt.Errorf("missing required env for database: LEDGER_POSTGRES_USER/HOST/DB")
		}
	default:
		return fmt.Errorf("invalid store provider %q, must be 'redis', 'postgres' or 'memory'", c.StoreProvider)
	}

	if c.Coordinator != "lock" && c.Coordinator != "optimistic" {
		return fmt.Errorf("invalid coordinator %q, must be 'lock' or 'optimistic'", c.Coordinator)
	}
	if c.CASMaxRetries < 0 {
		return fmt.Errorf("LEDGER_CAS_MAX_RETRIES must not be negative")
	}
	if c.CASBaseDelay <= 0 {
		return fmt.Errorf("LEDGER_CAS_BASE_DELAY must be positive")
	}
	if c.DefaultBalance < 0 {
		return fmt.Errorf("LEDGER_DEFAULT_BALANCE must not be negative")
	}
	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("LEDGER_HEALTH_INTERVAL must be positive")
	}

	switch c.BusProvider {
	case BusNone:
	case BusNats:
		if c.NatsHost == "" {
			return fmt.Errorf("missing required env for nats bus: LEDGER_NATS_HOST")
		}
	case BusKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("missing required env for kafka bus: LEDGER_KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("invalid bus provider %q, must be 'none', 'nats' or 'kafka'", c.BusProvider)
	}

	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

// GRPCAddr returns the health server address, or "" when it is disabled.
func (c *Config) GRPCAddr() string {
	if c.GRPCPort == "" {
		return ""
	}
	return ":" + c.GRPCPort
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var intVal int
	if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(val string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(val)); err != nil {
		return 0, fmt.Errorf("invalid LEDGER_LOG_LEVEL %q: %w", val, err)
	}
	return level, nil
}
