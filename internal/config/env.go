package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()
}

const (
	StoreBackendFile  = "file"
	StoreBackendRedis = "redis"
)

var (
	ErrMissingBotToken     = errors.New("TELEGRAM_BOT_TOKEN is required")
	ErrMissingAPICreds     = errors.New("BABYCARE_TELEGRAM_API_ID and BABYCARE_TELEGRAM_API_HASH are required")
	ErrUnknownStore        = errors.New("unknown store backend")
	ErrInvalidTickInterval = errors.New("tick interval must be positive")
)

type Config struct {
	// Required
	TelegramBotToken string
	TelegramAPIID    int
	TelegramAPIHash  string

	// Optional with defaults
	TelegramSessionPath string
	DataPath            string
	DBPath              string
	HTTPPort            int
	TickInterval        time.Duration
	DefaultLanguage     string
	DefaultTimezone     string
	LogLevel            string
	LogFile             string
	DevMode             bool

	// Reminder document backend
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

func LoadFromEnv() *Config {
	cfg := &Config{
		// Required
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIID:    getEnvAsIntOrDefault("BABYCARE_TELEGRAM_API_ID", 0),
		TelegramAPIHash:  os.Getenv("BABYCARE_TELEGRAM_API_HASH"),

		// Optional with defaults
		TelegramSessionPath: getEnvOrDefault("BABYCARE_TELEGRAM_SESSION_PATH", "./telegram_session.json"),
		DataPath:            getEnvOrDefault("BABYCARE_DATA_PATH", "./reminders.json"),
		DBPath:              getEnvOrDefault("BABYCARE_DB_PATH", "./babycare.db"),
		HTTPPort:            getEnvAsIntOrDefault("BABYCARE_HTTP_PORT", 8080),
		TickInterval:        getEnvAsDurationOrDefault("BABYCARE_TICK_INTERVAL", time.Minute),
		DefaultLanguage:     getEnvOrDefault("BABYCARE_DEFAULT_LANGUAGE", "he"),
		DefaultTimezone:     getEnvOrDefault("BABYCARE_DEFAULT_TIMEZONE", "Asia/Jerusalem"),
		LogLevel:            os.Getenv("BABYCARE_LOG_LEVEL"),
		LogFile:             os.Getenv("BABYCARE_LOG_FILE"),
		DevMode:             getEnvAsBoolOrDefault("BABYCARE_DEV_MODE", false),

		StoreBackend:  getEnvOrDefault("BABYCARE_STORE_BACKEND", StoreBackendFile),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsIntOrDefault("REDIS_DB", 0),
		RedisKey:      getEnvOrDefault("BABYCARE_REDIS_KEY", "babycare:reminders"),
	}

	return cfg
}

// Validate reports configuration the bot cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.TelegramBotToken == "" {
		errs = append(errs, ErrMissingBotToken)
	}
	if c.TelegramAPIID == 0 || c.TelegramAPIHash == "" {
		errs = append(errs, ErrMissingAPICreds)
	}
	if c.StoreBackend != StoreBackendFile && c.StoreBackend != StoreBackendRedis {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownStore, c.StoreBackend))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, ErrInvalidTickInterval)
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
