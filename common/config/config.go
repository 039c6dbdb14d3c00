package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all engine configuration
type Config struct {
	Service  ServiceConfig
	Redis    RedisConfig
	Executor ExecutorConfig
	Engine   EngineConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// RedisConfig holds the shared key-value store settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// ExecutorConfig holds worker pool sizes
type ExecutorConfig struct {
	ThreadPoolSize  int
	ProcessPoolSize int
}

// EngineConfig holds runner and state settings
type EngineConfig struct {
	APITimeout      time.Duration
	StateTTL        time.Duration
	FailureBackoff  time.Duration
	SessionIdleTTL  time.Duration
	ShutdownTimeout time.Duration
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "flowengine"),
		},
		Executor: ExecutorConfig{
			ThreadPoolSize:  getEnvInt("THREAD_POOL_SIZE", 10),
			ProcessPoolSize: getEnvInt("PROCESS_POOL_SIZE", 4),
		},
		Engine: EngineConfig{
			APITimeout:      getEnvDuration("API_TIMEOUT", 300*time.Second),
			StateTTL:        getEnvDuration("STATE_TTL", 1*time.Hour),
			FailureBackoff:  getEnvDuration("FAILURE_BACKOFF", 1*time.Second),
			SessionIdleTTL:  getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	if c.Executor.ThreadPoolSize < 1 {
		return fmt.Errorf("thread pool size must be >= 1")
	}

	if c.Executor.ProcessPoolSize < 1 {
		return fmt.Errorf("process pool size must be >= 1")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
