// Package provider selects and constructs the configured completion backend.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rampager01/galaxy-agents/internal/config"
	"github.com/rampager01/galaxy-agents/internal/llm/provider/anthropic"
	"github.com/rampager01/galaxy-agents/internal/llm/provider/ollama"
	"github.com/rampager01/galaxy-agents/internal/llm/provider/openai"
	"github.com/rampager01/galaxy-agents/internal/llm/types"
	"github.com/rampager01/galaxy-agents/internal/metrics"
)

// Provider is the single contract every backend is normalized into. Complete
// performs no internal retries; the caller owns retry policy.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req types.Request) (*types.Response, error)
}

// New builds the provider named by the configuration, wrapped with request
// metrics.
func New(cfg config.LLMConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "anthropic":
		p, err = anthropic.New(cfg.AnthropicAPIKey, cfg.Model)
	case "openai":
		p, err = openai.New(cfg.OpenAIAPIKey, cfg.Model)
	case "ollama":
		p, err = ollama.New(cfg.OllamaURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &instrumented{inner: p}, nil
}

// instrumented decorates a Provider with prometheus request counters and
// latency observation.
type instrumented struct {
	inner Provider
}

func (i *instrumented) Name() string { return i.inner.Name() }

func (i *instrumented) Complete(ctx context.Context, req types.Request) (*types.Response, error) {
	start := time.Now()
	resp, err := i.inner.Complete(ctx, req)
	metrics.LLMRequestDuration.WithLabelValues(i.inner.Name()).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(i.inner.Name(), status).Inc()
	return resp, err
}
