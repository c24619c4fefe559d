// Package config provides unified configuration for the schleuse worker.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (SCHLEUSE_ prefix, plus the
//     platform-contract MAX_CONCURRENCY variable)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the schleuse worker.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Worker        WorkerConfig        `yaml:"worker"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 0 (streaming)
}

// EngineConfig holds backend engine settings.
type EngineConfig struct {
	BackendURL     string        `yaml:"backend_url"`     // required
	APIKey         string        `yaml:"api_key"`         // optional
	APIKeyFile     string        `yaml:"api_key_file"`    // _file variant for api_key
	Model          string        `yaml:"model"`           // optional; discovered when empty
	StartupTimeout time.Duration `yaml:"startup_timeout"` // default: 10m
	Warmup         bool          `yaml:"warmup"`          // default: true
}

// WorkerConfig holds job handling settings.
type WorkerConfig struct {
	// MaxConcurrency is the default capacity advisory, used until the base
	// engine is ready or whenever its capacity cannot be read. Also
	// settable via MAX_CONCURRENCY. Default: 1.
	MaxConcurrency int `yaml:"max_concurrency"`

	// EngineMaxConcurrency is the capacity the base engine reports once
	// ready. Zero means "engine does not know" and the default above
	// keeps applying.
	EngineMaxConcurrency int `yaml:"engine_max_concurrency"`
}

// StorageConfig holds job result store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres", or "none", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 1000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey", "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"` // _file variant for key
	Subject string `yaml:"subject"`
}

// JWTConfig holds JWT verification settings.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			ReadTimeout: 30 * time.Second,
			// WriteTimeout stays 0: generation streams outlive any
			// sensible fixed deadline.
		},
		Engine: EngineConfig{
			StartupTimeout: 10 * time.Minute,
			Warmup:         true,
		},
		Worker: WorkerConfig{
			MaxConcurrency: 1,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
