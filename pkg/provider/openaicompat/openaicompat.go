package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/akessl/schleuse/pkg/api"
	"github.com/akessl/schleuse/pkg/provider"
	"github.com/akessl/schleuse/pkg/provider/vllm"
)

// Config holds Compat handle settings.
type Config struct {
	// Warmup runs one throwaway generation through the base engine during
	// construction, so the first real job does not pay the cold-path cost.
	// Enabled by default via New.
	Warmup bool

	// WarmupTimeout bounds the warmup generation. Default: 2m.
	WarmupTimeout time.Duration
}

// Engine is the Compat backend handle. It wraps an initialized Base engine
// and depends on it for backend location, credentials, and the default
// model; it cannot exist before the Base handle does.
type Engine struct {
	base   *vllm.Engine
	client *http.Client
}

// Ensure Engine implements provider.Generator at compile time.
var _ provider.Generator = (*Engine)(nil)

// New constructs a Compat handle over an existing Base engine. Construction
// drives one complete generation through the base backend as a warmup; that
// blocking sub-procedure is why callers must not run New inline on the
// goroutine multiplexing concurrent jobs.
func New(ctx context.Context, base *vllm.Engine, cfg Config) (*Engine, error) {
	if base == nil {
		return nil, fmt.Errorf("openaicompat: base engine is required")
	}
	if cfg.WarmupTimeout == 0 {
		cfg.WarmupTimeout = 2 * time.Minute
	}

	e := &Engine{
		base:   base,
		client: &http.Client{},
	}

	if cfg.Warmup {
		if err := e.warmup(ctx, cfg.WarmupTimeout); err != nil {
			return nil, fmt.Errorf("openaicompat: warmup failed: %w", err)
		}
	}

	slog.Info("openai-compat engine ready", "base_url", base.BaseURL(), "model", base.Model())
	return e, nil
}

// warmup runs a single one-token generation through the base engine and
// drains it.
func (e *Engine) warmup(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	job := &api.Job{
		ID: api.NewJobID(),
		Params: map[string]any{
			"messages":   []any{map[string]any{"role": "user", "content": "ping"}},
			"max_tokens": 1,
		},
	}

	ch, err := e.base.Generate(ctx, job)
	if err != nil {
		return err
	}
	for ev := range ch {
		if ev.Err != nil {
			return ev.Err
		}
	}
	return nil
}

// Name returns the backend identifier.
func (e *Engine) Name() string {
	return "openai-compat"
}

// MaxConcurrency defers to the wrapped base engine.
func (e *Engine) MaxConcurrency() int {
	return e.base.MaxConcurrency()
}

// Generate starts a streaming generation and yields the raw SSE wire lines,
// each framed as "data: <json>\n\n", terminated by "data: [DONE]\n\n".
func (e *Engine) Generate(ctx context.Context, job *api.Job) (<-chan provider.Event, error) {
	body, err := json.Marshal(e.requestBody(job))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: marshaling request: %w", err)
	}

	httpReq, err := e.base.NewBackendRequest(ctx, http.MethodPost,
		"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: backend request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, wireError(resp)
	}

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		forwardWireLines(ctx, resp.Body, ch)
	}()
	return ch, nil
}

// requestBody merges the job's opaque parameters with the base engine's
// default model and forces streaming, stripping the internal routing flag.
func (e *Engine) requestBody(job *api.Job) map[string]any {
	body := make(map[string]any, len(job.Params)+2)
	for k, v := range job.Params {
		if k == "openai_route" {
			continue
		}
		body[k] = v
	}
	if _, ok := body["model"]; !ok {
		body["model"] = e.base.Model()
	}
	body["stream"] = true
	return body
}

// Close releases idle connections. The wrapped base engine is owned by the
// initializer and is not closed here.
func (e *Engine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
