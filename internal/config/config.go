package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Queue    QueueConfig
	PubNub   PubNubConfig
	Worker   WorkerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// QueueConfig tunes the ordering engine and its collaborators.
type QueueConfig struct {
	// CallMaxAttempts bounds reservation retries after lost call-next races.
	CallMaxAttempts int
	// NoShowGraceMinutes is how long a called customer has before being marked no-show.
	NoShowGraceMinutes int
	// DefaultAvgServiceMinutes feeds the estimator for departments with no history.
	DefaultAvgServiceMinutes float64
	// AgingMinutesPerPoint controls the weighted policy: waiting this many minutes
	// adds one effective priority point.
	AgingMinutesPerPoint float64
	// StatsWindow is how many recent completions feed the rolling service average.
	StatsWindow int
}

// PubNubConfig holds keys for the realtime display publisher. Empty keys disable it.
type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	UserID       string
}

// WorkerConfig tunes the asynq background worker.
type WorkerConfig struct {
	Enabled          bool
	Concurrency      int
	StatsRefreshCron string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "queue-token-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Queue: QueueConfig{
			CallMaxAttempts:          getEnvAsInt("QUEUE_CALL_MAX_ATTEMPTS", 3),
			NoShowGraceMinutes:       getEnvAsInt("QUEUE_NO_SHOW_GRACE_MINUTES", 5),
			DefaultAvgServiceMinutes: getEnvAsFloat("QUEUE_DEFAULT_AVG_SERVICE_MINUTES", 10),
			AgingMinutesPerPoint:     getEnvAsFloat("QUEUE_AGING_MINUTES_PER_POINT", 15),
			StatsWindow:              getEnvAsInt("QUEUE_STATS_WINDOW", 50),
		},
		PubNub: PubNubConfig{
			PublishKey:   os.Getenv("PUBNUB_PUBLISH_KEY"),
			SubscribeKey: os.Getenv("PUBNUB_SUBSCRIBE_KEY"),
			UserID:       getEnv("PUBNUB_USER_ID", "queue-token-service"),
		},
		Worker: WorkerConfig{
			Enabled:          getEnvAsBool("WORKER_ENABLED", true),
			Concurrency:      getEnvAsInt("WORKER_CONCURRENCY", 10),
			StatsRefreshCron: getEnv("WORKER_STATS_REFRESH_CRON", "*/5 * * * *"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// NoShowGrace returns the grace period as a duration.
func (q QueueConfig) NoShowGrace() time.Duration {
	return time.Duration(q.NoShowGraceMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
