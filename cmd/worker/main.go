// Command worker runs the schleuse serverless LLM worker.
//
// It lazily brings up the vLLM backend on the first job, filters
// reasoning traces out of every batch it returns, and advertises its
// concurrency capacity to the hosting platform.
//
// Configuration is layered: built-in defaults, an optional YAML file
// (SCHLEUSE_CONFIG, ./config.yaml, /etc/schleuse/config.yaml), then
// SCHLEUSE_* environment overrides. The MAX_CONCURRENCY variable is
// honored without a prefix because the platform sets it directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akessl/schleuse/pkg/auth"
	"github.com/akessl/schleuse/pkg/auth/apikey"
	authjwt "github.com/akessl/schleuse/pkg/auth/jwt"
	"github.com/akessl/schleuse/pkg/config"
	"github.com/akessl/schleuse/pkg/debug"
	"github.com/akessl/schleuse/pkg/engine"
	"github.com/akessl/schleuse/pkg/observability"
	"github.com/akessl/schleuse/pkg/provider"
	"github.com/akessl/schleuse/pkg/provider/openaicompat"
	"github.com/akessl/schleuse/pkg/provider/vllm"
	"github.com/akessl/schleuse/pkg/storage/memory"
	"github.com/akessl/schleuse/pkg/storage/postgres"
	"github.com/akessl/schleuse/pkg/transport"
	transporthttp "github.com/akessl/schleuse/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	debug.Init("", "")

	slog.Info("worker starting",
		"backend", cfg.Engine.BackendURL,
		"model", cfg.Engine.Model,
		"default_concurrency", cfg.Worker.MaxConcurrency,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)

	// Backend constructors. Nothing is built until the first job arrives;
	// the vLLM server typically comes up in the same pod and needs time
	// to load the model.
	newBase := func(ctx context.Context) (provider.Generator, error) {
		return vllm.New(ctx, vllm.Config{
			BaseURL:        cfg.Engine.BackendURL,
			APIKey:         cfg.Engine.APIKey,
			Model:          cfg.Engine.Model,
			MaxConcurrency: cfg.Worker.EngineMaxConcurrency,
			StartupTimeout: cfg.Engine.StartupTimeout,
		})
	}
	newCompat := func(ctx context.Context, base provider.Generator) (provider.Generator, error) {
		vb, ok := base.(*vllm.Engine)
		if !ok {
			return nil, fmt.Errorf("unexpected base engine type %T", base)
		}
		return openaicompat.New(ctx, vb, openaicompat.Config{
			Warmup: cfg.Engine.Warmup,
		})
	}

	initializer := engine.NewInitializer(newBase, newCompat)
	defer initializer.Close()

	advisor := engine.NewAdvisor(initializer, cfg.Worker.MaxConcurrency)
	handler := engine.NewHandler(initializer)

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	authChain, err := buildAuthChain(cfg)
	if err != nil {
		return err
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithWrapper(observability.MetricsMiddleware),
		transporthttp.WithWrapper(auth.Middleware(authChain, auth.DefaultBypassEndpoints)),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithRoute(
			"GET "+cfg.Observability.Metrics.Path, promhttp.Handler()))
	}

	srv := transporthttp.NewServer(handler, store, advisor, opts...)

	// Hot-reload of the default concurrency advisory when a config file
	// is in play. Other settings need a restart.
	if watchPath := resolveWatchPath(configPath); watchPath != "" {
		watcher, werr := config.NewWatcher(watchPath, func(c *config.Config) {
			advisor.SetDefault(c.Worker.MaxConcurrency)
		})
		if werr != nil {
			slog.Warn("config watcher disabled", "error", werr)
		} else {
			watchCtx, watchCancel := context.WithCancel(context.Background())
			defer watchCancel()
			go watcher.Run(watchCtx)
		}
	}

	return srv.ListenAndServe()
}

// buildStore creates the configured job store, or nil for "none".
func buildStore(cfg *config.Config) (transport.JobStore, error) {
	switch cfg.Storage.Type {
	case "memory":
		slog.Info("job store enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memory.New(cfg.Storage.MaxSize), nil
	case "postgres":
		store, err := postgres.New(context.Background(), postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		slog.Info("job store enabled", "type", "postgres")
		return store, nil
	case "none":
		slog.Info("job store disabled, async endpoints unavailable")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// buildAuthChain assembles the authenticator chain from configuration.
func buildAuthChain(cfg *config.Config) (*auth.Chain, error) {
	switch cfg.Auth.Type {
	case "none":
		return &auth.Chain{DefaultDecision: auth.Yes}, nil
	case "apikey":
		keys := make([]apikey.RawKey, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys = append(keys, apikey.RawKey{Key: k.Key, Subject: k.Subject})
		}
		return &auth.Chain{
			Authenticators:  []auth.Authenticator{apikey.New(keys)},
			DefaultDecision: auth.No,
		}, nil
	case "jwt":
		return &auth.Chain{
			Authenticators: []auth.Authenticator{authjwt.New(authjwt.Config{
				Secret:   cfg.Auth.JWT.Secret,
				Issuer:   cfg.Auth.JWT.Issuer,
				Audience: cfg.Auth.JWT.Audience,
			})},
			DefaultDecision: auth.No,
		}, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}
}

// resolveWatchPath determines which config file, if any, to watch for
// concurrency advisory reloads.
func resolveWatchPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("SCHLEUSE_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml"
	}
	return ""
}
