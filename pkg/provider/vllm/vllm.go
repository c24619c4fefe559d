package vllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/akessl/schleuse/pkg/api"
	"github.com/akessl/schleuse/pkg/debug"
	"github.com/akessl/schleuse/pkg/provider"
)

// Engine is the Base backend handle for a vLLM server.
type Engine struct {
	cfg    Config
	client *http.Client
}

// Ensure Engine implements provider.Generator at compile time.
var _ provider.Generator = (*Engine)(nil)

// New constructs an Engine. This is the expensive step: it blocks until the
// backend reports ready (the model may still be loading) and verifies the
// models endpoint, bounded by cfg.StartupTimeout. Callers are expected to
// run it off the goroutine serving concurrent jobs.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vllm: BaseURL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.defaults()

	e := &Engine{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}

	if err := e.waitReady(ctx); err != nil {
		return nil, fmt.Errorf("vllm: backend not ready: %w", err)
	}

	if cfg.Model == "" {
		model, err := e.firstModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("vllm: discovering model: %w", err)
		}
		e.cfg.Model = model
	}

	slog.Info("vllm engine ready", "base_url", cfg.BaseURL, "model", e.cfg.Model)
	return e, nil
}

// waitReady polls the health endpoint until it answers 200 or the startup
// timeout elapses.
func (e *Engine) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(e.cfg.StartupTimeout)
	probe := &http.Client{Timeout: 5 * time.Second}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := probe.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			slog.Debug("vllm backend not ready yet", "status", resp.StatusCode)
		} else {
			slog.Debug("vllm health probe failed", "error", err)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s", e.cfg.StartupTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.ProbeInterval):
		}
	}
}

// firstModel returns the first model the backend serves.
func (e *Engine) firstModel(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		return "", err
	}
	e.authorize(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("models endpoint returned %d", resp.StatusCode)
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", err
	}
	if len(list.Data) == 0 {
		return "", fmt.Errorf("backend serves no models")
	}
	return list.Data[0].ID, nil
}

// Name returns the backend identifier.
func (e *Engine) Name() string {
	return "vllm"
}

// MaxConcurrency reports the configured capacity.
func (e *Engine) MaxConcurrency() int {
	return e.cfg.MaxConcurrency
}

// BaseURL exposes the backend root for wrapping handles.
func (e *Engine) BaseURL() string {
	return e.cfg.BaseURL
}

// Model exposes the default model for wrapping handles.
func (e *Engine) Model() string {
	return e.cfg.Model
}

// NewBackendRequest builds an authorized request against the backend.
// Wrapping handles use it to speak the wire protocol directly.
func (e *Engine) NewBackendRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	e.authorize(req)
	return req, nil
}

// Generate starts a streaming generation and yields each decoded chunk
// payload as a batch. The channel is closed when the backend stream ends,
// fails, or the context is cancelled.
func (e *Engine) Generate(ctx context.Context, job *api.Job) (<-chan provider.Event, error) {
	body, err := json.Marshal(e.requestBody(job))
	if err != nil {
		return nil, fmt.Errorf("vllm: marshaling request: %w", err)
	}

	debug.Log("backend", "starting generation", "job_id", job.ID, "bytes", len(body))
	if debug.TraceIsEnabled("backend") {
		debug.Raw("backend", string(body))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vllm: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	e.authorize(httpReq)

	// No client timeout for streaming; the context controls the lifetime.
	streamClient := &http.Client{Transport: e.client.Transport}

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vllm: backend request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, backendError(resp)
	}

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		parseChunkStream(ctx, resp.Body, ch)
	}()
	return ch, nil
}

// requestBody merges the job's opaque parameters with engine defaults.
// The routing flag is internal and stripped before the backend sees it.
func (e *Engine) requestBody(job *api.Job) map[string]any {
	body := make(map[string]any, len(job.Params)+2)
	for k, v := range job.Params {
		if k == "openai_route" {
			continue
		}
		body[k] = v
	}
	if _, ok := body["model"]; !ok {
		body["model"] = e.cfg.Model
	}
	body["stream"] = true
	return body
}

func (e *Engine) authorize(req *http.Request) {
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}
}

// Close releases idle connections.
func (e *Engine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
