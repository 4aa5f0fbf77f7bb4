package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/promptguard/gateway/internal/config"
	"github.com/promptguard/gateway/internal/telemetry"
)

// ErrNoProvider is returned when no registered provider can take the request.
var ErrNoProvider = errors.New("llm: no available provider")

// Registry manages provider adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

func (r *Registry) Register(name string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// ReplaceAll swaps the registered adapters for those in other. In-flight
// requests keep the adapter they already resolved.
func (r *Registry) ReplaceAll(other *Registry) {
	other.mu.RLock()
	adapters := make(map[string]Adapter, len(other.adapters))
	for name, a := range other.adapters {
		adapters[name] = a
	}
	other.mu.RUnlock()

	r.mu.Lock()
	r.adapters = adapters
	r.mu.Unlock()
}

// BuildFromConfig builds provider adapters from the providers config.
func BuildFromConfig(provCfg *config.ProvidersConfig) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var adapter Adapter
		switch cfg.Type {
		case "anthropic":
			adapter = NewAnthropicAdapter(name, cfg, client)
		default:
			// OpenAI-compatible is the default wire format
			adapter = NewOpenAIAdapter(name, cfg, client)
		}
		registry.Register(name, adapter)
	}
	return registry
}

// Router forwards completion requests to the first healthy provider in order.
type Router struct {
	registry *Registry
	health   *HealthTracker
	order    []string
	metrics  *telemetry.Metrics
}

// NewRouter creates a router that tries providers in the given order,
// skipping any whose circuit breaker is open.
func NewRouter(registry *Registry, health *HealthTracker, order []string, metrics *telemetry.Metrics) *Router {
	return &Router{
		registry: registry,
		health:   health,
		order:    order,
		metrics:  metrics,
	}
}

// Health exposes the router's provider health tracker.
func (rt *Router) Health() *HealthTracker {
	return rt.health
}

// Forward sends the request to the first provider that is registered,
// healthy, and answers successfully.
func (rt *Router) Forward(ctx context.Context, req Request) (*Completion, error) {
	var lastErr error
	for _, name := range rt.order {
		adapter, ok := rt.registry.Get(name)
		if !ok {
			continue
		}
		if !rt.health.IsAvailable(name) {
			slog.Debug("provider circuit open, skipping", "provider", name)
			continue
		}

		completion, err := adapter.Complete(ctx, req)
		if err != nil {
			rt.health.RecordFailure(name)
			if rt.metrics != nil {
				rt.metrics.RecordProviderRequest(name, adapter.Model(), "error")
			}
			slog.Warn("provider request failed", "provider", name, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		rt.health.RecordSuccess(name)
		if rt.metrics != nil {
			rt.metrics.RecordProviderRequest(name, adapter.Model(), "success")
		}
		return completion, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all providers failed: %w", lastErr)
	}
	return nil, ErrNoProvider
}
