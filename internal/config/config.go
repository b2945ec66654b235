package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DBDriver     string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
	SQLiteDBPath string

	// Session
	SessionSecret     string
	SessionCookieName string

	// Pipeline ingestion (bcrypt hash of the X-API-Key value)
	PipelineAPIKeyHash string

	// AMQP event publishing; empty URL disables publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Matching
	SearchDefaultLimit int
	SearchMaxLimit     int

	RequestTimeout time.Duration
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		DBDriver:     getEnv("DB_DRIVER", "postgres"),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "creditflow"),
		DBPassword:   getEnv("DB_PASSWORD", "creditflow"),
		DBName:       getEnv("DB_NAME", "creditflow"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/creditflow.db"),

		SessionSecret:     getEnv("SESSION_SECRET", "fallback-secret-key-for-dev-only"),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "session"),

		PipelineAPIKeyHash: getEnv("PIPELINE_API_KEY_HASH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "creditflow"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "allocation_events"),

		SearchDefaultLimit: getEnvInt("SEARCH_DEFAULT_LIMIT", 50),
		SearchMaxLimit:     getEnvInt("SEARCH_MAX_LIMIT", 200),
	}

	timeoutStr := getEnv("REQUEST_TIMEOUT", "15s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		log.Printf("Warning: invalid REQUEST_TIMEOUT value '%s', falling back to 15s\n", timeoutStr)
		timeout = 15 * time.Second
	}
	config.RequestTimeout = timeout

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}
