/**
 * Configuration for the conversion worker and CLI
 *
 * Loads configuration from environment variables (optionally seeded from a
 * .env file by the caller).
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL     string
	QueueName    string
	QueueBackend string // "redis" (list consumer) or "asynq"

	// PostgreSQL configuration; empty disables job tracking
	DatabaseURL string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds

	// OCR configuration
	OCRWorkers     int
	OCRLanguages   []string
	TessdataPrefix string
	PdftoppmPath   string

	// Temporary directory for rasterized pages and downloaded sources
	TempDir string

	// Upper bound for PDFs fetched from a URL, in bytes
	MaxFileSize int64

	// Attempts granted to newly enqueued jobs
	MaxRetries int

	// Artifact service that receives finished documents; empty disables
	// publishing
	ArtifactURL string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "docconvert:jobs"),
		QueueBackend:      strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", "redis")),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 600000), // 10 minutes
		OCRWorkers:        getEnvAsIntOrDefault("OCR_WORKERS", 4),
		OCRLanguages:      splitLanguages(getEnvOrDefault("OCR_LANGUAGES", "chi_sim+eng")),
		TessdataPrefix:    getEnvOrDefault("TESSDATA_PREFIX", ""),
		PdftoppmPath:      getEnvOrDefault("PDFTOPPM_PATH", "pdftoppm"),
		TempDir:           getEnvOrDefault("TEMP_DIR", os.TempDir()),
		MaxFileSize:       int64(getEnvAsIntOrDefault("MAX_FILE_SIZE", 512*1024*1024)),
		MaxRetries:        getEnvAsIntOrDefault("MAX_RETRIES", 3),
		ArtifactURL:       getEnvOrDefault("ARTIFACT_URL", ""),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if c.QueueBackend != "redis" && c.QueueBackend != "asynq" {
		return fmt.Errorf("QUEUE_BACKEND must be \"redis\" or \"asynq\", got %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.OCRWorkers < 1 || c.OCRWorkers > 32 {
		return fmt.Errorf("OCR_WORKERS must be between 1 and 32, got %d", c.OCRWorkers)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 25 {
		return fmt.Errorf("MAX_RETRIES must be between 0 and 25, got %d", c.MaxRetries)
	}

	if len(c.OCRLanguages) == 0 {
		return fmt.Errorf("OCR_LANGUAGES must name at least one language")
	}

	return nil
}

// splitLanguages accepts tesseract's "a+b" syntax as well as commas.
func splitLanguages(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
	return fields
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
