// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (reconcile.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/matcher"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/resolver"
)

// DefaultPath is the config file consulted when no -config flag is given.
const DefaultPath = "reconcile.yaml"

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Matching      matcher.Config      `yaml:"matching"`
	Resolver      resolver.Config     `yaml:"resolver"`
	Apply         ApplyConfig         `yaml:"apply"`
	Report        ReportConfig        `yaml:"report"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds target-store configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ApplyConfig holds the write-mode policy.
type ApplyConfig struct {
	// MinConfidence is the minimum confidence tier a match needs before a
	// decision is applied. The default requires an exact signal plus one
	// more agreeing signal.
	MinConfidence int `yaml:"min_confidence"`
}

// ReportConfig holds report artifact settings.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// APIConfig holds the review API settings.
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECON_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := defaults()
	cfg.Storage.DatabasePath = getEnv("RECON_DB_PATH", cfg.Storage.DatabasePath)
	cfg.Report.OutputDir = getEnv("RECON_REPORT_DIR", cfg.Report.OutputDir)
	cfg.Apply.MinConfidence = getEnvInt("RECON_MIN_CONFIDENCE", cfg.Apply.MinConfidence)
	cfg.API.Port = getEnvInt("RECON_API_PORT", cfg.API.Port)
	cfg.Observability.Logging.Level = getEnv("LOG_LEVEL", cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = getEnv("LOG_FORMAT", cfg.Observability.Logging.Format)
	return cfg
}

// LoadOrEnv tries to load from reconcile.yaml, falls back to environment
// variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath(DefaultPath)
}

// LoadOrEnvWithPath tries to load from specified path, falls back to
// environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// defaults returns the configuration used when a setting is absent from
// both the file and the environment.
func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			DatabasePath: "reconcile.db",
		},
		Matching: matcher.DefaultConfig(),
		Resolver: resolver.DefaultConfig(),
		Apply: ApplyConfig{
			MinConfidence: 6,
		},
		Report: ReportConfig{
			OutputDir: "reports",
		},
		API: APIConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}
