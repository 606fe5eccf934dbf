package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// heredocMarker delimits the program text handed to the in-container
// interpreter over the single stdin stream.
const heredocMarker = "CRADLE_SANDBOX_EOF"

// RunCode executes a Python program. When packages is non-empty, a quiet
// pip-install bootstrap runs first, still delivered over the same stdin
// stream as the program.
func (d *Driver) RunCode(ctx context.Context, program string, timeout time.Duration, packages []string, network bool) (*Result, error) {
	return d.run(ctx, "python:3.12-slim", buildCodeScript(program, packages), timeout, network, "container-stdin")
}

// buildCodeScript composes the single stdin stream a container (or the
// subprocess fallback) reads: an optional pip-install bootstrap followed by
// the program, handed to python3 via a heredoc so no host-path mount is
// ever needed.
func buildCodeScript(program string, packages []string) string {
	var script strings.Builder
	if len(packages) > 0 {
		script.WriteString("pip install --quiet ")
		script.WriteString(strings.Join(packages, " "))
		script.WriteString(" >/tmp/pip-install.log 2>&1\n")
	}
	script.WriteString("python3 <<'" + heredocMarker + "'\n")
	script.WriteString(program)
	if !strings.HasSuffix(program, "\n") {
		script.WriteString("\n")
	}
	script.WriteString(heredocMarker + "\n")
	return script.String()
}

// RunShell executes a POSIX shell script.
func (d *Driver) RunShell(ctx context.Context, script string, baseImage string, timeout time.Duration, network bool) (*Result, error) {
	if baseImage == "" {
		baseImage = "alpine:latest"
	}
	return d.run(ctx, baseImage, script, timeout, network, "container-shell")
}

func (d *Driver) run(ctx context.Context, image string, stdin string, timeout time.Duration, network bool, kind string) (*Result, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var result *Result
	var err error

	if d.probeDocker() {
		result, err = d.runDocker(ctx, image, stdin, network, kind)
	} else {
		result, err = d.runSubprocess(ctx, stdin)
	}
	if err != nil {
		return nil, err
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		result.Stderr = fmt.Sprintf("sandbox: execution exceeded timeout of %s", timeout)
	}

	var stdoutTruncated, stderrTruncated bool
	result.Stdout, stdoutTruncated = truncate(result.Stdout)
	result.Stderr, stderrTruncated = truncate(result.Stderr)
	result.Truncated = result.Truncated || stdoutTruncated || stderrTruncated
	result.Duration = time.Since(start)

	status := "success"
	if result.ExitCode != 0 {
		status = "failure"
	}
	d.metrics.ObserveSandboxRun(result.Method, status, result.Duration)
	return result, nil
}
