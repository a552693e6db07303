// Package config provides unified configuration loading for the conversion engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the conversion engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Queue         QueueConfig         `yaml:"queue"`
	Blob          BlobConfig          `yaml:"blob"`
	Convert       ConvertConfig       `yaml:"convert"`
	Extract       ExtractConfig       `yaml:"extract"`
	OCR           OCRConfig           `yaml:"ocr"`
	Indexer       IndexerConfig       `yaml:"indexer"`
	Worker        WorkerConfig        `yaml:"worker"`
	Observability ObservabilityConfig `yaml:"observability"`
	Tenancy       TenancyConfig       `yaml:"tenancy"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// QueueConfig holds job queue settings.
type QueueConfig struct {
	Driver string      `yaml:"driver"` // memory or redis
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BlobConfig holds document blob storage settings.
type BlobConfig struct {
	Root          string `yaml:"root"`
	TenantQuotaMB int64  `yaml:"tenant_quota_mb"`
	TempDir       string `yaml:"temp_dir"`
}

// ConvertConfig holds format conversion backend settings.
type ConvertConfig struct {
	LibreOfficePath string        `yaml:"libreoffice_path"`
	WkhtmltopdfPath string        `yaml:"wkhtmltopdf_path"`
	HopTimeout      time.Duration `yaml:"hop_timeout"`
	RasterDPI       int           `yaml:"raster_dpi"`
}

// ExtractConfig holds text-position extraction settings.
type ExtractConfig struct {
	MaxPages        int     `yaml:"max_pages"`
	DefaultFontSize float64 `yaml:"default_font_size"`
}

// OCRConfig holds OCR fallback settings.
type OCRConfig struct {
	TesseractPath string        `yaml:"tesseract_path"`
	Language      string        `yaml:"language"`
	DPI           int           `yaml:"dpi"`
	PageTimeout   time.Duration `yaml:"page_timeout"`
}

// IndexerConfig holds content indexing settings.
type IndexerConfig struct {
	MinNativeChars int `yaml:"min_native_chars"` // below this per page, fall back to OCR
	MaxIndexBytes  int `yaml:"max_index_bytes"`
}

// WorkerConfig holds conversion worker pool settings.
type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	PollInterval time.Duration `yaml:"poll_interval"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// TenancyConfig holds multi-tenancy settings.
type TenancyConfig struct {
	DefaultTenant string `yaml:"default_tenant"`
	IsolationMode string `yaml:"isolation_mode"` // row_level or schema
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory is loaded first so local development
// does not need exported variables.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   100 << 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/conversion-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Queue: QueueConfig{
			Driver: "memory",
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Blob: BlobConfig{
			Root:          "/tmp/conversion-engine/blobs",
			TenantQuotaMB: 1024,
			TempDir:       os.TempDir(),
		},
		Convert: ConvertConfig{
			LibreOfficePath: "soffice",
			WkhtmltopdfPath: "wkhtmltopdf",
			HopTimeout:      2 * time.Minute,
			RasterDPI:       150,
		},
		Extract: ExtractConfig{
			MaxPages:        2000,
			DefaultFontSize: 12.0,
		},
		OCR: OCRConfig{
			TesseractPath: "tesseract",
			Language:      "eng",
			DPI:           300,
			PageTimeout:   30 * time.Second,
		},
		Indexer: IndexerConfig{
			MinNativeChars: 32,
			MaxIndexBytes:  1 << 20,
		},
		Worker: WorkerConfig{
			Concurrency:  2,
			PollInterval: time.Second,
			JobTimeout:   5 * time.Minute,
			MaxRetries:   3,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "debug",
			LogFormat:   "json",
			ServiceName: "conversion-engine",
		},
		Tenancy: TenancyConfig{
			DefaultTenant: "dev",
			IsolationMode: "row_level",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Queue.Driver != "memory" && c.Queue.Driver != "redis" {
		return fmt.Errorf("invalid queue driver: %s", c.Queue.Driver)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1")
	}

	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("worker max_retries must not be negative")
	}

	if c.Convert.HopTimeout <= 0 {
		return fmt.Errorf("convert hop_timeout must be positive")
	}

	if c.Blob.Root == "" {
		return fmt.Errorf("blob root must be set")
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Database.Driver == "sqlite"
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Database.Postgres.DSN = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Queue.Driver = "redis"
		// Parse redis://host:port format
		addr := strings.TrimPrefix(v, "redis://")
		cfg.Queue.Redis.Addr = addr
	}

	if v := os.Getenv("BLOB_ROOT"); v != "" {
		cfg.Blob.Root = v
	}

	if v := os.Getenv("LIBREOFFICE_PATH"); v != "" {
		cfg.Convert.LibreOfficePath = v
	}

	if v := os.Getenv("WKHTMLTOPDF_PATH"); v != "" {
		cfg.Convert.WkhtmltopdfPath = v
	}

	if v := os.Getenv("TESSERACT_PATH"); v != "" {
		cfg.OCR.TesseractPath = v
	}

	if v := os.Getenv("OCR_LANGUAGE"); v != "" {
		cfg.OCR.Language = v
	}

	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.Worker.Concurrency = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
