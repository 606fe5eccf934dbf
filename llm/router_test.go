package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agenthatchery/cradle/internal/cradleerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouterMetrics struct {
	calls []string // "provider:status"
}

func (f *fakeRouterMetrics) ObserveLLMCall(provider, status string, elapsed time.Duration) {
	f.calls = append(f.calls, provider+":"+status)
}

type fakeProvider struct {
	name    string
	calls   int
	fail    bool
	cost1K  float64
	lastReq ChatRequest
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) Model() string      { return "fake-model" }
func (f *fakeProvider) CostPer1K() float64 { return f.cost1K }

func (f *fakeProvider) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.calls++
	f.lastReq = req
	if f.fail {
		return nil, errors.New("simulated failure")
	}
	return &ChatResponse{Content: "ok from " + f.name, Provider: f.name, InputTokens: 10, OutputTokens: 5}, nil
}

func TestRouter_FailsOverToNextProvider(t *testing.T) {
	primary := &fakeProvider{name: "primary", fail: true}
	secondary := &fakeProvider{name: "secondary"}

	r := NewRouter([]ProviderSpec{
		{Provider: primary, Priority: 1},
		{Provider: secondary, Priority: 2},
	}, nil)

	resp, err := r.Complete(context.Background(), ChatRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "secondary", resp.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestRouter_RespectsPriorityOrder(t *testing.T) {
	low := &fakeProvider{name: "low-priority"}
	high := &fakeProvider{name: "high-priority"}

	r := NewRouter([]ProviderSpec{
		{Provider: low, Priority: 5},
		{Provider: high, Priority: 1},
	}, nil)

	resp, err := r.Complete(context.Background(), ChatRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "high-priority", resp.Provider)
	assert.Equal(t, 0, low.calls)
}

func TestRouter_DemotesAfterConsecutiveFailures(t *testing.T) {
	bad := &fakeProvider{name: "bad", fail: true}
	good := &fakeProvider{name: "good"}

	r := NewRouter([]ProviderSpec{
		{Provider: bad, Priority: 1},
		{Provider: good, Priority: 2},
	}, nil)

	for i := 0; i < consecutiveFailureThreshold; i++ {
		_, err := r.Complete(context.Background(), ChatRequest{Prompt: "hi"})
		require.NoError(t, err)
	}
	assert.Equal(t, consecutiveFailureThreshold, bad.calls)

	// bad is now demoted; further calls should skip it entirely.
	_, err := r.Complete(context.Background(), ChatRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, consecutiveFailureThreshold, bad.calls, "demoted provider must not be called again within cooldown")

	health := r.Health()
	assert.False(t, health["bad"])
	assert.True(t, health["good"])
}

func TestRouter_AllProvidersExhausted(t *testing.T) {
	a := &fakeProvider{name: "a", fail: true}
	b := &fakeProvider{name: "b", fail: true}

	r := NewRouter([]ProviderSpec{
		{Provider: a, Priority: 1},
		{Provider: b, Priority: 2},
	}, nil)

	_, err := r.Complete(context.Background(), ChatRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, cradleerr.CodeExhausted, cradleerr.GetCode(err))
}

func TestRouter_NoProvidersConfigured(t *testing.T) {
	r := NewRouter(nil, nil)
	_, err := r.Complete(context.Background(), ChatRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, cradleerr.CodeExhausted, cradleerr.GetCode(err))
}

func TestRouter_UsageStats(t *testing.T) {
	p := &fakeProvider{name: "p1"}
	r := NewRouter([]ProviderSpec{{Provider: p, Priority: 1}}, nil)

	_, err := r.Complete(context.Background(), ChatRequest{Prompt: "hi"})
	require.NoError(t, err)

	stats := r.UsageStats()
	require.Len(t, stats, 1)
	assert.Equal(t, "p1", stats[0].Provider)
	assert.EqualValues(t, 1, stats[0].TotalCalls)
	assert.EqualValues(t, 10, stats[0].TotalInputTokens)
	assert.EqualValues(t, 5, stats[0].TotalOutputTokens)
	assert.True(t, stats[0].Healthy)
}

func TestRouter_PreferredProviderMovedToFrontStably(t *testing.T) {
	high := &fakeProvider{name: "high"}
	mid := &fakeProvider{name: "mid"}
	low := &fakeProvider{name: "low"}

	r := NewRouter([]ProviderSpec{
		{Provider: high, Priority: 1},
		{Provider: mid, Priority: 2},
		{Provider: low, Priority: 3},
	}, nil)

	resp, err := r.Complete(context.Background(), ChatRequest{Prompt: "hi", Preferred: "low"})
	require.NoError(t, err)
	assert.Equal(t, "low", resp.Provider, "preferred provider must be tried first")
	assert.Equal(t, 0, high.calls)
	assert.Equal(t, 0, mid.calls)
	assert.Equal(t, 1, low.calls)

	// The relative order of the non-preferred providers must be unchanged:
	// if low were removed and failed over, high still comes before mid.
	low.fail = true
	resp, err = r.Complete(context.Background(), ChatRequest{Prompt: "hi", Preferred: "low"})
	require.NoError(t, err)
	assert.Equal(t, "high", resp.Provider)
}

func TestRouter_PreferredUnknownProviderIsNoop(t *testing.T) {
	only := &fakeProvider{name: "only"}
	r := NewRouter([]ProviderSpec{{Provider: only, Priority: 1}}, nil)

	resp, err := r.Complete(context.Background(), ChatRequest{Prompt: "hi", Preferred: "nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, "only", resp.Provider)
}

func TestRouter_CheapestProvider(t *testing.T) {
	cheap := &fakeProvider{name: "cheap", cost1K: 0.001}
	pricey := &fakeProvider{name: "pricey", cost1K: 0.05}

	r := NewRouter([]ProviderSpec{
		{Provider: pricey, Priority: 1},
		{Provider: cheap, Priority: 2},
	}, nil)

	assert.Equal(t, "cheap", r.CheapestProvider())
}

func TestRouter_CheapestProvider_NoneConfigured(t *testing.T) {
	r := NewRouter(nil, nil)
	assert.Equal(t, "", r.CheapestProvider())
}

func TestRouter_SetMetrics_RecordsSuccessAndFailure(t *testing.T) {
	bad := &fakeProvider{name: "bad", fail: true}
	good := &fakeProvider{name: "good"}
	r := NewRouter([]ProviderSpec{
		{Provider: bad, Priority: 1},
		{Provider: good, Priority: 2},
	}, nil)

	fm := &fakeRouterMetrics{}
	r.SetMetrics(fm)

	_, err := r.Complete(context.Background(), ChatRequest{Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, []string{"bad:failure", "good:success"}, fm.calls)
}
