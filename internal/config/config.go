// Package config provides centralized configuration management for the harvester.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Process   ProcessConfig
	Export    ExportConfig
	Report    ReportConfig
	Providers ProvidersConfig
	Areas     AreasConfig
	Logging   LoggingConfig
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0, reports may run long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// AdminKeys are accepted X-API-Key values for admin endpoints, comma-separated.
	// Empty disables the admin endpoints.
	AdminKeys []string `env:"SERVER_ADMIN_KEYS"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ProcessConfig holds batch processing settings.
type ProcessConfig struct {
	// NoOfThreads is the number of batches processed at once per provider (default: 5)
	NoOfThreads int `env:"PROCESS_NO_OF_THREADS" default:"5"`

	// BatchSize is the number of verbatim ids per batch (default: 10000)
	BatchSize int `env:"PROCESS_BATCH_SIZE" default:"10000"`

	// BatchMaxWait bounds how long a batch waits for a slot, 0 waits indefinitely (default: 0s)
	BatchMaxWait time.Duration `env:"PROCESS_BATCH_MAX_WAIT" default:"0s"`

	// RunMode is incremental or full (default: incremental)
	RunMode string `env:"PROCESS_RUN_MODE" default:"incremental"`

	// EmbargoCurrentMonth keeps protected observations from the current month
	// out of the public stream (default: true)
	EmbargoCurrentMonth bool `env:"PROCESS_EMBARGO_CURRENT_MONTH" default:"true"`

	// MaxCoordinateUncertainty in meters, 0 disables the rule (default: 100000)
	MaxCoordinateUncertainty int `env:"PROCESS_MAX_COORDINATE_UNCERTAINTY" default:"100000"`
}

// ExportConfig holds archive export settings.
type ExportConfig struct {
	// Enabled turns archive export on (default: true)
	Enabled bool `env:"EXPORT_ENABLED" default:"true"`

	// Folder holds per-provider fragment folders during a cycle (default: ./data/export)
	Folder string `env:"EXPORT_FOLDER" default:"./data/export"`

	// PublishFolder holds the published archives (default: ./data/publish)
	PublishFolder string `env:"EXPORT_PUBLISH_FOLDER" default:"./data/publish"`

	// NoOfThreads bounds concurrent archive builds (default: 2)
	NoOfThreads int `env:"EXPORT_NO_OF_THREADS" default:"2"`

	// IncludeProcessInfo attaches processinfo.xml to archives (default: true)
	IncludeProcessInfo bool `env:"EXPORT_INCLUDE_PROCESS_INFO" default:"true"`

	// Schedule is the cron expression for publishing cycles (default: 02:00 daily)
	Schedule string `env:"EXPORT_SCHEDULE" default:"0 2 * * *"`
}

// ReportConfig holds validation report defaults.
type ReportConfig struct {
	// MaxNrObservationsToRead is the record budget per report (default: 100000)
	MaxNrObservationsToRead int `env:"REPORT_MAX_OBSERVATIONS" default:"100000"`

	// NrValidObservations is the number of valid samples kept (default: 10)
	NrValidObservations int `env:"REPORT_VALID_SAMPLES" default:"10"`

	// NrInvalidObservations is the number of invalid samples kept (default: 100)
	NrInvalidObservations int `env:"REPORT_INVALID_SAMPLES" default:"100"`

	// MaxVerbatimValues caps distinct verbatim spellings per vocabulary bucket (default: 20)
	MaxVerbatimValues int `env:"REPORT_MAX_VERBATIM_VALUES" default:"20"`

	// Timeout bounds one report request (default: 5m)
	Timeout time.Duration `env:"REPORT_TIMEOUT" default:"5m"`
}

// ProvidersConfig locates the provider catalog.
type ProvidersConfig struct {
	// File is the YAML provider catalog (default: providers.yaml)
	File string `env:"PROVIDERS_FILE" default:"providers.yaml"`
}

// AreasConfig locates the administrative area catalog.
type AreasConfig struct {
	// File is a GeoJSON feature collection of areas, empty disables enrichment
	File string `env:"AREAS_FILE"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
