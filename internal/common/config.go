package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Paths    PathsConfig
	LLM      LLMConfig
	Batch    BatchConfig
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// PathsConfig holds the three filesystem locations the pipeline touches.
type PathsConfig struct {
	InputDir   string // incoming PDFs, scanned once per batch
	OutputBase string // year-scoped success folders + reports live under here
	ManualDir  string // flat manual-review folder
}

// LLMConfig holds extraction-service configuration.
type LLMConfig struct {
	APIKey        string
	ModelPrimary  string
	ModelFallback string
	Timeout       time.Duration
}

// BatchConfig holds the batch limits and confidence thresholds.
type BatchConfig struct {
	MaxParallel       int
	DailyCostLimitUSD float64
	ConfidenceAuto    float64 // at/above: no human review needed
	ConfidenceFloor   float64 // below: rejected outright
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is applied first when present.
func LoadConfig() *Config {
	_ = godotenv.Overload()

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DATABASE_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Paths: PathsConfig{
			InputDir:   getEnv("PDF_FOLDER", ""),
			OutputBase: getEnv("OUTPUT_BASE_FOLDER", ""),
			ManualDir:  getEnv("MANUAL_FOLDER", ""),
		},
		LLM: LLMConfig{
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			ModelPrimary:  getEnv("OPENAI_MODEL_PRIMARY", "gpt-4o-mini"),
			ModelFallback: getEnv("OPENAI_MODEL_FALLBACK", "gpt-4o"),
			Timeout:       getEnvAsDuration("OPENAI_TIMEOUT", 30*time.Second),
		},
		Batch: BatchConfig{
			MaxParallel:       getEnvAsInt("MAX_PARALLEL_PDFS", 5),
			DailyCostLimitUSD: getEnvAsFloat64("DAILY_COST_LIMIT_USD", 1.0),
			ConfidenceAuto:    getEnvAsFloat64("CONFIDENCE_AUTO", 0.8),
			ConfidenceFloor:   getEnvAsFloat64("CONFIDENCE_REVIEW", 0.5),
		},
	}
}

// Validate checks the loaded configuration for required keys.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DATABASE_URL is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Paths.InputDir == "" {
		return NewAppError("CONFIG_ERROR", "PDF_FOLDER is required", ErrInvalidInput)
	}
	if c.Paths.OutputBase == "" {
		return NewAppError("CONFIG_ERROR", "OUTPUT_BASE_FOLDER is required", ErrInvalidInput)
	}
	if c.Paths.ManualDir == "" {
		return NewAppError("CONFIG_ERROR", "MANUAL_FOLDER is required", ErrInvalidInput)
	}
	if c.Batch.MaxParallel <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_PARALLEL_PDFS must be positive", ErrInvalidInput)
	}
	if c.Batch.ConfidenceFloor > c.Batch.ConfidenceAuto {
		return NewAppError("CONFIG_ERROR", "CONFIDENCE_REVIEW must not exceed CONFIDENCE_AUTO", ErrInvalidInput)
	}
	// Workers each take a connection; a smaller pool would serialize them.
	if int(c.Database.MaxConns) < c.Batch.MaxParallel {
		return NewAppError("CONFIG_ERROR", "DB_MAX_CONNS must be at least MAX_PARALLEL_PDFS", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
