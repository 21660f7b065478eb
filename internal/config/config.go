package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	ServiceNow ServiceNowConfig
	Database   DatabaseConfig
	Archive    ArchiveConfig
}

// ServiceNowConfig holds table-API connection settings
type ServiceNowConfig struct {
	BaseURL   string
	Username  string
	Password  string
	PageLimit int
	PageDelay time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Quiet    bool
}

// ArchiveConfig controls the compressed-JSON snapshot path
type ArchiveConfig struct {
	Enabled          bool
	CompressionLevel int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	baseURL := os.Getenv("SERVICENOW_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("SERVICENOW_BASE_URL is required")
	}

	return &Config{
		ServiceNow: ServiceNowConfig{
			BaseURL:   baseURL,
			Username:  os.Getenv("SERVICENOW_USERNAME"),
			Password:  os.Getenv("SERVICENOW_PASSWORD"),
			PageLimit: getIntEnv("SERVICENOW_PAGE_LIMIT", 10000),
			PageDelay: getDurationEnv("SERVICENOW_PAGE_DELAY", 200*time.Millisecond),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "snowetl"),
			Quiet:    getBoolEnv("PG_QUIET", true),
		},
		Archive: ArchiveConfig{
			Enabled:          getBoolEnv("JSON_ARCHIVE_ENABLED", false),
			CompressionLevel: getIntEnv("JSON_ARCHIVE_COMPRESSION", 9),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
