package vllm

import "time"

// Config holds vLLM backend settings.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is the default model name applied when a job omits one.
	Model string

	// MaxConcurrency is the capacity this engine reports to admission
	// control. Zero means unknown.
	MaxConcurrency int

	// StartupTimeout bounds the readiness wait during construction.
	// Model loading can take minutes. Default: 10m.
	StartupTimeout time.Duration

	// ProbeInterval is the delay between readiness probes. Default: 2s.
	ProbeInterval time.Duration

	// Timeout applies to non-streaming requests. Default: 120s.
	Timeout time.Duration
}

func (c *Config) defaults() {
	if c.StartupTimeout == 0 {
		c.StartupTimeout = 10 * time.Minute
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = 2 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
}
