package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"optimizee/internal/models"
	"optimizee/pkg/logging"
)

const (
	// EnvPrefix prefixes every environment override, e.g. OPTIMIZEE_SERVER_PORT
	EnvPrefix = "OPTIMIZEE"

	// DefaultConfigFile is read when present; a missing default file is not an error
	DefaultConfigFile = "config.yaml"

	ProcessedFileName = "processed.parquet"
	ModelFileName     = "model.gob"
)

// Config is the complete application configuration
type Config struct {
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
	Schema   models.Schema  `yaml:"schema" envconfig:"SCHEMA"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Metrics  MetricsConfig  `yaml:"metrics" envconfig:"METRICS"`
}

// PathsConfig locates the on-disk artifacts; relative dirs resolve against Root
type PathsConfig struct {
	Root         string `yaml:"root" split_words:"true"`
	RawDir       string `yaml:"raw_dir" split_words:"true"`
	ProcessedDir string `yaml:"processed_dir" split_words:"true"`
	ModelsDir    string `yaml:"models_dir" split_words:"true"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" split_words:"true"`
}

// ServerConfig configures the dashboard HTTP server
type ServerConfig struct {
	Host            string        `yaml:"host" split_words:"true"`
	Port            int           `yaml:"port" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// DatabaseConfig configures the optional Postgres feature warehouse
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled" split_words:"true"`
	Host            string        `yaml:"host" split_words:"true"`
	Port            int           `yaml:"port" split_words:"true"`
	User            string        `yaml:"user" split_words:"true"`
	Password        string        `yaml:"password" split_words:"true"`
	Database        string        `yaml:"database" split_words:"true"`
	SSLMode         string        `yaml:"ssl_mode" split_words:"true"`
	MaxOpenConns    int           `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `yaml:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" split_words:"true"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" split_words:"true"`
	BatchSize       int           `yaml:"batch_size" split_words:"true"`
}

// MetricsConfig configures metric export for the batch commands
type MetricsConfig struct {
	Namespace    string `yaml:"namespace" split_words:"true"`
	TextfilePath string `yaml:"textfile_path" split_words:"true"`
}

// Default returns the configuration used when no file or env override exists
func Default() Config {
	return Config{
		Paths: PathsConfig{
			Root:         ".",
			RawDir:       filepath.Join("data", "raw"),
			ProcessedDir: filepath.Join("data", "processed"),
			ModelsDir:    "models",
		},
		Schema: models.DefaultSchema(),
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8050,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			User:            "optimizee",
			Database:        "optimizee",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			BatchSize:       1000,
		},
		Metrics: MetricsConfig{
			Namespace: "optimizee",
		},
	}
}

// LoadConfig layers defaults, the YAML file at path, and OPTIMIZEE_* environment
// variables, in that order of increasing precedence.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			if !(errors.Is(err, os.ErrNotExist) && path == DefaultConfigFile) {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	return &cfg, nil
}

// loadFromFile overlays the keys present in the YAML file onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the configuration for values no command can work with
func (c *Config) Validate() error {
	if c.Schema.DatetimeCol == "" || c.Schema.TargetCol == "" {
		return fmt.Errorf("schema column names must not be empty")
	}
	if c.Schema.DatetimeCol == c.Schema.TargetCol {
		return fmt.Errorf("schema datetime and target columns must differ: %q", c.Schema.TargetCol)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("database host and name are required when the warehouse is enabled")
		}
		if c.Database.BatchSize <= 0 {
			return fmt.Errorf("database batch size must be positive: %d", c.Database.BatchSize)
		}
	}

	return nil
}

// LogLevel returns the parsed logging level, falling back to info
func (c *Config) LogLevel() logging.LogLevel {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.InfoLevel
	}
	return level
}

func (p PathsConfig) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.Root, dir)
}

// RawDirPath is the directory scanned for *.csv inputs
func (p PathsConfig) RawDirPath() string {
	return p.resolve(p.RawDir)
}

// ProcessedFile is where preprocess writes and train/dash read the dataset
func (p PathsConfig) ProcessedFile() string {
	return filepath.Join(p.resolve(p.ProcessedDir), ProcessedFileName)
}

// ModelFile is where train writes and dash reads the model artifact
func (p PathsConfig) ModelFile() string {
	return filepath.Join(p.resolve(p.ModelsDir), ModelFileName)
}
