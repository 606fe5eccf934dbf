package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agenthatchery/cradle/internal/cradleerr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// consecutiveFailureThreshold is the number of consecutive failures on a
// provider that demotes it into cooldown.
const consecutiveFailureThreshold = 3

// demotionCooldown is how long a demoted provider is skipped before being
// retried.
const demotionCooldown = 300 * time.Second

// providerState tracks one provider's live health, independent of its
// static configuration.
type providerState struct {
	provider            Provider
	priority            int
	limiter             *rate.Limiter // nil means unlimited
	consecutiveFailures int
	demotedUntil        time.Time
	totalCalls          int64
	totalFailures       int64
	totalCostUSD        float64
	totalInputTokens    int64
	totalOutputTokens   int64
}

// Metrics receives per-call observability data. Satisfied structurally by
// metrics.Collector; the router never imports the metrics package.
type Metrics interface {
	ObserveLLMCall(provider, status string, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveLLMCall(string, string, time.Duration) {}

// Router calls configured providers in priority order, failing over to the
// next on error and demoting a provider after repeated consecutive
// failures. A single Complete call never retries the same provider twice —
// failover across providers is the only retry.
type Router struct {
	mu      sync.Mutex
	states  []*providerState
	logger  *zap.Logger
	metrics Metrics
}

// ProviderSpec is one entry in the router's priority-ordered provider list.
type ProviderSpec struct {
	Provider Provider
	Priority int // lower runs first
	RPM      int // requests per minute, 0 = unlimited
}

// NewRouter builds a Router from a priority-ordered provider list. Specs may
// be given in any order; the router sorts by Priority ascending.
func NewRouter(specs []ProviderSpec, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	states := make([]*providerState, 0, len(specs))
	for _, s := range specs {
		var limiter *rate.Limiter
		if s.RPM > 0 {
			limiter = rate.NewLimiter(rate.Limit(float64(s.RPM)/60.0), s.RPM)
		}
		states = append(states, &providerState{
			provider: s.Provider,
			priority: s.Priority,
			limiter:  limiter,
		})
	}
	for i := 0; i < len(states); i++ {
		for j := i + 1; j < len(states); j++ {
			if states[j].priority < states[i].priority {
				states[i], states[j] = states[j], states[i]
			}
		}
	}
	return &Router{states: states, logger: logger, metrics: noopMetrics{}}
}

// SetMetrics wires a Metrics sink into the router. Safe to call after
// construction, since cmd/cradle builds the collector alongside (not
// before) the router; nil restores the no-op sink.
func (r *Router) SetMetrics(m Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m == nil {
		m = noopMetrics{}
	}
	r.metrics = m
}

// Usage is one provider's accumulated usage stats.
type Usage struct {
	Provider          string
	TotalCalls        int64
	TotalFailures     int64
	TotalCostUSD      float64
	TotalInputTokens  int64
	TotalOutputTokens int64
	Healthy           bool
	DemotedUntil      time.Time
}

// UsageStats returns a snapshot of every configured provider's usage.
func (r *Router) UsageStats() []Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Usage, 0, len(r.states))
	now := time.Now()
	for _, st := range r.states {
		out = append(out, Usage{
			Provider:          st.provider.Name(),
			TotalCalls:        st.totalCalls,
			TotalFailures:     st.totalFailures,
			TotalCostUSD:      st.totalCostUSD,
			TotalInputTokens:  st.totalInputTokens,
			TotalOutputTokens: st.totalOutputTokens,
			Healthy:           st.demotedUntil.Before(now),
			DemotedUntil:      st.demotedUntil,
		})
	}
	return out
}

// CheapestProvider returns the name of the configured provider with the
// lowest combined input+output cost per 1k tokens, for callers that want to
// bias a call toward a cheaper model via ChatRequest.Preferred. Returns ""
// if no providers are configured.
func (r *Router) CheapestProvider() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return ""
	}
	cheapest := r.states[0]
	for _, st := range r.states[1:] {
		if st.provider.CostPer1K() < cheapest.provider.CostPer1K() {
			cheapest = st
		}
	}
	return cheapest.provider.Name()
}

// Complete tries each configured provider in priority order, skipping any
// provider currently in its demotion cooldown or whose rate limiter denies
// the call, until one succeeds or all are exhausted.
func (r *Router) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	r.mu.Lock()
	states := make([]*providerState, len(r.states))
	copy(states, r.states)
	r.mu.Unlock()

	states = moveProviderToFront(states, req.Preferred)

	if len(states) == 0 {
		return nil, cradleerr.New(cradleerr.CodeExhausted, "no LLM providers configured")
	}

	var lastErr error
	now := time.Now()
	for _, st := range states {
		if now.Before(st.demotedUntil) {
			continue
		}
		if st.limiter != nil && !st.limiter.Allow() {
			r.logger.Debug("provider rate limited, skipping", zap.String("provider", st.provider.Name()))
			continue
		}

		callStart := time.Now()
		resp, err := st.provider.Complete(ctx, req)
		r.recordResult(st, resp, err, time.Since(callStart))
		if err == nil {
			return resp, nil
		}

		lastErr = err
		r.logger.Warn("provider call failed, trying next",
			zap.String("provider", st.provider.Name()),
			zap.Error(err),
		)
	}

	if lastErr != nil {
		return nil, cradleerr.New(cradleerr.CodeExhausted, "all providers exhausted").WithCause(lastErr)
	}
	return nil, cradleerr.New(cradleerr.CodeExhausted, "all providers demoted or rate limited")
}

// moveProviderToFront stably moves the named provider to the front of a
// priority-ordered snapshot, leaving the relative order of every other
// provider unchanged. A no-op if name is empty or not present.
func moveProviderToFront(states []*providerState, name string) []*providerState {
	if name == "" {
		return states
	}
	out := make([]*providerState, 0, len(states))
	var preferred *providerState
	for _, st := range states {
		if st.provider.Name() == name {
			preferred = st
			continue
		}
		out = append(out, st)
	}
	if preferred == nil {
		return states
	}
	return append([]*providerState{preferred}, out...)
}

func (r *Router) recordResult(st *providerState, resp *ChatResponse, err error, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st.totalCalls++
	if err != nil {
		st.totalFailures++
		st.consecutiveFailures++
		if st.consecutiveFailures >= consecutiveFailureThreshold {
			st.demotedUntil = time.Now().Add(demotionCooldown)
			r.logger.Warn("provider demoted after consecutive failures",
				zap.String("provider", st.provider.Name()),
				zap.Int("consecutive_failures", st.consecutiveFailures),
				zap.Duration("cooldown", demotionCooldown),
			)
		}
		r.metrics.ObserveLLMCall(st.provider.Name(), "failure", elapsed)
		return
	}

	st.consecutiveFailures = 0
	if resp != nil {
		st.totalCostUSD += resp.CostUSD
		st.totalInputTokens += int64(resp.InputTokens)
		st.totalOutputTokens += int64(resp.OutputTokens)
	}
	r.metrics.ObserveLLMCall(st.provider.Name(), "success", elapsed)
}

// Health returns a name -> healthy map for every configured provider.
func (r *Router) Health() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	out := make(map[string]bool, len(r.states))
	for _, st := range r.states {
		out[st.provider.Name()] = st.demotedUntil.Before(now)
	}
	return out
}

// Providers returns the configured provider names in priority order, for
// diagnostics.
func (r *Router) Providers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.states))
	for _, st := range r.states {
		out = append(out, fmt.Sprintf("%s(priority=%d)", st.provider.Name(), st.priority))
	}
	return out
}
