// Package sandbox executes agent-generated code in a fresh, isolated
// container per call, falling back to an unsandboxed subprocess when no
// container runtime is available.
package sandbox

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Metrics receives per-run observability data. Satisfied structurally by
// metrics.Collector; the sandbox package never imports the metrics package.
type Metrics interface {
	ObserveSandboxRun(method, status string, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSandboxRun(string, string, time.Duration) {}

// maxOutputBytes bounds each collected stream; overflow is truncated in
// place with a trailing marker.
const maxOutputBytes = 50_000

const truncatedMarker = "\n... [TRUNCATED]"

// allowedEnvVars is the explicit forwarding allowlist. LLM provider
// credentials are never forwarded into a sandboxed call.
var allowedEnvVars = []string{"GITHUB_PAT", "GOOGLE_CSE_KEY", "GOOGLE_CSE_ID"}

// Result is the outcome of one sandboxed run.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
	Method    string // "container-stdin", "container-shell", or "subprocess-fallback"
	Duration  time.Duration
}

// Driver runs code in containers when possible, and degrades to a plain
// subprocess otherwise. The container-runtime probe runs at most once.
type Driver struct {
	logger  *zap.Logger
	metrics Metrics

	probeOnce   sync.Once
	dockerReady bool
}

// NewDriver builds a Driver. logger may be nil.
func NewDriver(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{logger: logger, metrics: noopMetrics{}}
}

// SetMetrics wires a Metrics sink into the driver. Safe to call after
// construction; nil restores the no-op sink.
func (d *Driver) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	d.metrics = m
}

func (d *Driver) probeDocker() bool {
	d.probeOnce.Do(func() {
		path, err := exec.LookPath("docker")
		if err != nil {
			d.logger.Info("docker runtime not found, sandbox falls back to subprocess")
			return
		}
		cmd := exec.Command(path, "info")
		if err := cmd.Run(); err != nil {
			d.logger.Warn("docker found but not usable, sandbox falls back to subprocess", zap.Error(err))
			return
		}
		d.dockerReady = true
	})
	return d.dockerReady
}

func forwardedEnv() map[string]string {
	out := make(map[string]string)
	for _, name := range allowedEnvVars {
		if v := os.Getenv(name); v != "" {
			out[name] = v
		}
	}
	return out
}

func truncate(s string) (string, bool) {
	if len(s) <= maxOutputBytes {
		return s, false
	}
	return s[:maxOutputBytes] + truncatedMarker, true
}
