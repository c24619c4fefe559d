package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks the configuration for consistency. All problems are
// collected and reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Engine.BackendURL == "" {
		errs = append(errs, errors.New("engine.backend_url is required"))
	} else if u, err := url.Parse(c.Engine.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("engine.backend_url is not a valid URL: %q", c.Engine.BackendURL))
	}
	if c.Engine.StartupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.startup_timeout must be positive, got %s", c.Engine.StartupTimeout))
	}

	if c.Worker.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("worker.max_concurrency must be at least 1, got %d", c.Worker.MaxConcurrency))
	}

	switch c.Storage.Type {
	case "memory":
		if c.Storage.MaxSize < 1 {
			errs = append(errs, fmt.Errorf("storage.max_size must be at least 1, got %d", c.Storage.MaxSize))
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			errs = append(errs, errors.New("storage.postgres.dsn is required for postgres storage"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be one of memory, postgres, none, got %q", c.Storage.Type))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, errors.New("auth.api_keys must not be empty for apikey auth"))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, errors.New("auth.jwt.secret or auth.jwt.secret_file is required for jwt auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be one of none, apikey, jwt, got %q", c.Auth.Type))
	}

	if c.Observability.Metrics.Enabled && c.Observability.Metrics.Path == "" {
		errs = append(errs, errors.New("observability.metrics.path must not be empty when metrics are enabled"))
	}

	return errors.Join(errs...)
}
