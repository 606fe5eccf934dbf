package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

// nextTestNamespace returns a fresh namespace per call so concurrent tests
// can each construct a Collector without promauto panicking on duplicate
// registration against the default registry.
func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("cradle_test_%d", seq)
}

func TestNewCollector_RegistersEveryInstrument(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())
	assert.NotNil(t, c.beat)
	assert.NotNil(t, c.pendingTasks)
	assert.NotNil(t, c.totalTasks)
	assert.NotNil(t, c.evolutions)
	assert.NotNil(t, c.taskOutcomes)
	assert.NotNil(t, c.taskDuration)
	assert.NotNil(t, c.llmRequests)
	assert.NotNil(t, c.llmLatency)
	assert.NotNil(t, c.sandboxRuns)
	assert.NotNil(t, c.sandboxLatency)
}

func TestCollector_Gauges_ReflectLatestValue(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.SetBeat(7)
	c.SetPendingTasks(3)
	c.SetTotalTasks(12)
	c.SetEvolutions(2)

	assert.Equal(t, float64(7), testutil.ToFloat64(c.beat))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.pendingTasks))
	assert.Equal(t, float64(12), testutil.ToFloat64(c.totalTasks))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.evolutions))

	c.SetBeat(8)
	assert.Equal(t, float64(8), testutil.ToFloat64(c.beat))
}

func TestCollector_ObserveTaskOutcome_IncrementsCounterAndHistogram(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.ObserveTaskOutcome("completed", 2*time.Second)
	c.ObserveTaskOutcome("completed", 1*time.Second)
	c.ObserveTaskOutcome("failed", 500*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.taskOutcomes.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.taskOutcomes.WithLabelValues("failed")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.taskDuration))
}

func TestCollector_ObserveLLMCall_LabelsByProviderAndStatus(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.ObserveLLMCall("gemini", "ok", 300*time.Millisecond)
	c.ObserveLLMCall("gemini", "error", 100*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.llmRequests.WithLabelValues("gemini", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.llmRequests.WithLabelValues("gemini", "error")))
}

func TestCollector_ObserveSandboxRun_LabelsByMethodAndStatus(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.ObserveSandboxRun("docker", "ok", time.Second)
	c.ObserveSandboxRun("subprocess", "timeout", 60*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.sandboxRuns.WithLabelValues("docker", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.sandboxRuns.WithLabelValues("subprocess", "timeout")))
}
