package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/freyahq/intervox/pkg/provider/llm"
)

// ErrAllFailed is returned when every backend in the chain failed or was
// rejected by its breaker.
var ErrAllFailed = errors.New("resilience: all llm backends failed")

// FallbackConfig configures an [LLMFallback].
type FallbackConfig struct {
	// CircuitBreaker is the per-backend breaker tuning; Name is overwritten
	// with each backend's own name.
	CircuitBreaker CircuitBreakerConfig
}

type backend struct {
	name     string
	provider llm.Provider
	breaker  *CircuitBreaker
}

// LLMFallback implements [llm.Provider] over an ordered chain of backends,
// each guarded by its own circuit breaker. A request goes to the first
// backend whose breaker admits it; on failure the next backend is tried.
//
// Register the whole chain before serving requests — AddFallback is not
// safe to call concurrently with Complete or StreamCompletion.
type LLMFallback struct {
	chain []backend
	cfg   FallbackConfig
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates a chain with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	f := &LLMFallback{cfg: cfg}
	f.add(primaryName, primary)
	return f
}

// AddFallback appends a backend. Fallbacks are tried in registration order,
// after the primary.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.add(name, provider)
}

func (f *LLMFallback) add(name string, provider llm.Provider) {
	cb := f.cfg.CircuitBreaker
	cb.Name = name
	f.chain = append(f.chain, backend{
		name:     name,
		provider: provider,
		breaker:  NewCircuitBreaker(cb),
	})
}

// attempt walks the chain until one backend serves the call. Returns
// [ErrAllFailed] wrapping the last error when none does.
func (f *LLMFallback) attempt(fn func(llm.Provider) error) error {
	var lastErr error
	for _, b := range f.chain {
		err := b.breaker.Execute(func() error { return fn(b.provider) })
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("llm backend skipped, circuit open", "backend", b.name)
			continue
		}
		slog.Warn("llm backend failed, trying next", "backend", b.name, "error", err)
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// Complete serves the request from the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := f.attempt(func(p llm.Provider) error {
		r, err := p.Complete(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// StreamCompletion opens a completion stream on the first healthy backend.
// Only the connection attempt is covered by failover; once a stream is
// established, mid-stream errors are the caller's to handle.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	var ch <-chan llm.Chunk
	err := f.attempt(func(p llm.Provider) error {
		c, err := p.StreamCompletion(ctx, req)
		if err != nil {
			return err
		}
		ch = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}
