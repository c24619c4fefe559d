package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default config file search paths, in priority order.
var defaultConfigPaths = []string{
	"./config.yaml",
	"/etc/schleuse/config.yaml",
}

// Load reads configuration with the full layering applied. If configPath
// is empty, the SCHLEUSE_CONFIG environment variable and then the default
// search paths are consulted; a missing file is not an error, the
// defaults plus environment overrides still apply.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	path := configPath
	if path == "" {
		path = os.Getenv("SCHLEUSE_CONFIG")
	}
	if path == "" {
		for _, p := range defaultConfigPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides maps SCHLEUSE_* environment variables onto config
// fields. MAX_CONCURRENCY is also honored without a prefix because it is
// the contract the hosting platform sets for workers.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SCHLEUSE_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SCHLEUSE_PORT %q: %w", v, err)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("SCHLEUSE_BACKEND_URL"); v != "" {
		cfg.Engine.BackendURL = v
	}
	if v := os.Getenv("SCHLEUSE_BACKEND_API_KEY"); v != "" {
		cfg.Engine.APIKey = v
	}
	if v := os.Getenv("SCHLEUSE_MODEL"); v != "" {
		cfg.Engine.Model = v
	}
	if v := os.Getenv("SCHLEUSE_STARTUP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SCHLEUSE_STARTUP_TIMEOUT %q: %w", v, err)
		}
		cfg.Engine.StartupTimeout = d
	}
	if v := os.Getenv("SCHLEUSE_WARMUP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SCHLEUSE_WARMUP %q: %w", v, err)
		}
		cfg.Engine.Warmup = b
	}
	if v := os.Getenv("MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_CONCURRENCY %q: %w", v, err)
		}
		cfg.Worker.MaxConcurrency = n
	}
	// The prefixed form wins when both are set.
	if v := os.Getenv("SCHLEUSE_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SCHLEUSE_MAX_CONCURRENCY %q: %w", v, err)
		}
		cfg.Worker.MaxConcurrency = n
	}
	if v := os.Getenv("SCHLEUSE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("SCHLEUSE_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("SCHLEUSE_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("SCHLEUSE_API_KEYS"); v != "" {
		cfg.Auth.APIKeys = parseAPIKeysEnv(v)
	}
	if v := os.Getenv("SCHLEUSE_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}
	if v := os.Getenv("SCHLEUSE_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SCHLEUSE_METRICS_ENABLED %q: %w", v, err)
		}
		cfg.Observability.Metrics.Enabled = b
	}
	return nil
}

// parseAPIKeysEnv parses "key1:subject1,key2:subject2" into API key
// entries. A bare key gets an empty subject.
func parseAPIKeysEnv(s string) []APIKeyConfig {
	var keys []APIKeyConfig
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, subject, _ := strings.Cut(entry, ":")
		keys = append(keys, APIKeyConfig{Key: key, Subject: subject})
	}
	return keys
}

// resolveFileReferences loads values for fields that have a _file
// counterpart set. The file variant wins over any inline value.
func resolveFileReferences(cfg *Config) error {
	readSecret := func(path, field string) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s from %s: %w", field, path, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if cfg.Engine.APIKeyFile != "" {
		v, err := readSecret(cfg.Engine.APIKeyFile, "engine.api_key")
		if err != nil {
			return err
		}
		cfg.Engine.APIKey = v
	}
	if cfg.Storage.Postgres.DSNFile != "" {
		v, err := readSecret(cfg.Storage.Postgres.DSNFile, "storage.postgres.dsn")
		if err != nil {
			return err
		}
		cfg.Storage.Postgres.DSN = v
	}
	if cfg.Auth.JWT.SecretFile != "" {
		v, err := readSecret(cfg.Auth.JWT.SecretFile, "auth.jwt.secret")
		if err != nil {
			return err
		}
		cfg.Auth.JWT.Secret = v
	}
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" {
			v, err := readSecret(cfg.Auth.APIKeys[i].KeyFile, "auth.api_keys.key")
			if err != nil {
				return err
			}
			cfg.Auth.APIKeys[i].Key = v
		}
	}
	return nil
}
