package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	LogLevel  string
	LogFormat string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NatsURL           string
	NatsSubjectPrefix string

	ExecutorBaseURL        string
	ExecutorAuthToken      string
	ExecutorRequestTimeout time.Duration
	ExecutorMaxRetries     int
	ExecutorRetryBase      time.Duration
	ExecutorRetryMax       time.Duration
	LanguagesFile          string

	EvaluatorConcurrency  int
	GradingDeadline       time.Duration
	RunDeadline           time.Duration
	DefaultRuntimeLimitMs int
	DefaultMemoryLimitKb  int

	ProgressQueueName         string
	ProgressDeadLetterQueue   string
	ProgressLockPrefix        string
	ProgressLockTTL           time.Duration
	ProgressLockMode          string // "redis" or "local" (single instance)
	ProgressMaxAttempts       int
	ProgressRetryBase         time.Duration
	ProgressWorkerConcurrency int
	ProgressSweepInterval     time.Duration
	ProgressProcessingLease   time.Duration
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:    getEnv("API_PORT", "8080"),
		JWTKey:     []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:     time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "user"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "tle_zone_db"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		NatsURL:           getEnv("NATS_URL", ""),
		NatsSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "tlezone"),

		ExecutorBaseURL:        getEnv("EXECUTOR_BASE_URL", "http://localhost:2358"),
		ExecutorAuthToken:      getEnv("EXECUTOR_AUTH_TOKEN", ""),
		ExecutorRequestTimeout: getEnvAsDuration("EXECUTOR_REQUEST_TIMEOUT_MS", 10000, time.Millisecond),
		ExecutorMaxRetries:     getEnvAsInt("EXECUTOR_MAX_RETRIES", 2),
		ExecutorRetryBase:      getEnvAsDuration("EXECUTOR_RETRY_BASE_MS", 200, time.Millisecond),
		ExecutorRetryMax:       getEnvAsDuration("EXECUTOR_RETRY_MAX_MS", 2000, time.Millisecond),
		LanguagesFile:          getEnv("LANGUAGES_FILE", ""),

		EvaluatorConcurrency:  getEnvAsInt("EVALUATOR_CONCURRENCY", 4),
		GradingDeadline:       getEnvAsDuration("GRADING_DEADLINE_SECONDS", 60, time.Second),
		RunDeadline:           getEnvAsDuration("RUN_DEADLINE_SECONDS", 15, time.Second),
		DefaultRuntimeLimitMs: getEnvAsInt("DEFAULT_TIME_LIMIT_MS", 2000),
		DefaultMemoryLimitKb:  getEnvAsInt("DEFAULT_MEMORY_LIMIT_KB", 128000),

		ProgressQueueName:         getEnv("PROGRESS_QUEUE_NAME", "progress_jobs_queue"),
		ProgressDeadLetterQueue:   getEnv("PROGRESS_DEAD_LETTER_QUEUE", "progress_jobs_dead"),
		ProgressLockPrefix:        getEnv("PROGRESS_LOCK_PREFIX", "progress_lock:"),
		ProgressLockTTL:           getEnvAsDuration("PROGRESS_LOCK_TTL_SECONDS", 30, time.Second),
		ProgressLockMode:          getEnv("PROGRESS_LOCK_MODE", "redis"),
		ProgressMaxAttempts:       getEnvAsInt("PROGRESS_MAX_ATTEMPTS", 5),
		ProgressRetryBase:         getEnvAsDuration("PROGRESS_RETRY_BASE_MS", 500, time.Millisecond),
		ProgressWorkerConcurrency: getEnvAsInt("PROGRESS_WORKER_CONCURRENCY", 2),
		ProgressSweepInterval:     getEnvAsDuration("PROGRESS_SWEEP_INTERVAL_SECONDS", 60, time.Second),
		ProgressProcessingLease:   getEnvAsDuration("PROGRESS_PROCESSING_LEASE_SECONDS", 300, time.Second),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * unit
}
