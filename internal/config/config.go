/**
 * Configuration for the parcel scan worker
 *
 * Loads configuration from environment variables, with a .env file
 * loaded at startup by cmd/worker.
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
	// Typhoon LLM configuration
	TyphoonAPIKey     string
	TyphoonAPIURL     string
	TyphoonModel      string
	LLMTimeoutSeconds int

	// OCR configuration
	OCRLanguages  string
	MinConfidence float64
	MinTextLength int

	// Image preprocessing
	PreprocessPolicy  string
	MaxImageDimension int

	// Upload handling
	UploadDir           string
	MaxUploadBytes      int64
	UploadMaxAgeMinutes int

	// HTTP server
	HTTPAddr string

	// PostgreSQL persistence (optional, empty disables)
	DatabaseURL string

	// Redis cache + queue (optional, empty disables)
	RedisURL         string
	ScanQueue        string
	QueueConcurrency int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		TyphoonAPIKey:       os.Getenv("TYPHOON_API_KEY"),
		TyphoonAPIURL:       getEnvOrDefault("TYPHOON_API_URL", "https://api.opentyphoon.ai/v1"),
		TyphoonModel:        getEnvOrDefault("TYPHOON_MODEL", "typhoon-v2.5-30b-a3b-instruct"),
		LLMTimeoutSeconds:   getEnvAsIntOrDefault("LLM_TIMEOUT_SECONDS", 30),
		OCRLanguages:        getEnvOrDefault("OCR_LANGUAGES", "tha+eng"),
		MinConfidence:       getEnvAsFloatOrDefault("MIN_CONFIDENCE", 0.4),
		MinTextLength:       getEnvAsIntOrDefault("MIN_TEXT_LENGTH", 5),
		PreprocessPolicy:    getEnvOrDefault("PREPROCESS_POLICY", "shrink"),
		MaxImageDimension:   getEnvAsIntOrDefault("MAX_IMAGE_DIMENSION", 2000),
		UploadDir:           getEnvOrDefault("UPLOAD_DIR", "uploads"),
		MaxUploadBytes:      getEnvAsInt64OrDefault("MAX_UPLOAD_BYTES", 16*1024*1024),
		UploadMaxAgeMinutes: getEnvAsIntOrDefault("UPLOAD_MAX_AGE_MINUTES", 30),
		HTTPAddr:            getEnvOrDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		ScanQueue:           getEnvOrDefault("SCAN_QUEUE", "parcel:scans"),
		QueueConcurrency:    getEnvAsIntOrDefault("QUEUE_CONCURRENCY", 4),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be between 0 and 1, got %f", c.MinConfidence)
	}

	if c.MinTextLength < 1 {
		return fmt.Errorf("MIN_TEXT_LENGTH must be at least 1, got %d", c.MinTextLength)
	}

	if c.LLMTimeoutSeconds < 1 || c.LLMTimeoutSeconds > 600 {
		return fmt.Errorf("LLM_TIMEOUT_SECONDS must be between 1 and 600, got %d", c.LLMTimeoutSeconds)
	}

	switch c.PreprocessPolicy {
	case "shrink", "upscale":
	default:
		return fmt.Errorf("PREPROCESS_POLICY must be \"shrink\" or \"upscale\", got %q", c.PreprocessPolicy)
	}

	if c.MaxImageDimension < 100 {
		return fmt.Errorf("MAX_IMAGE_DIMENSION must be at least 100, got %d", c.MaxImageDimension)
	}

	if c.MaxUploadBytes < 1024 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be at least 1KB, got %d", c.MaxUploadBytes)
	}

	if c.QueueConcurrency < 1 || c.QueueConcurrency > 100 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be between 1 and 100, got %d", c.QueueConcurrency)
	}

	return nil
}

// ChatCompletionsURL normalizes the configured Typhoon base URL into the
// full chat-completions endpoint, tolerating values that already carry
// the /chat/completions suffix.
func (c *Config) ChatCompletionsURL() string {
	base := strings.TrimRight(c.TyphoonAPIURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
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

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
