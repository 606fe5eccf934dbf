package sandbox

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
)

// runSubprocess executes the combined stdin script as a child "sh" process
// in a scratch working directory, with no isolation guarantees. Used only
// when the container runtime probe fails.
func (d *Driver) runSubprocess(ctx context.Context, stdin string) (*Result, error) {
	tempDir, err := os.MkdirTemp("", "cradle-sandbox-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	cmd := exec.CommandContext(ctx, "sh")
	cmd.Dir = tempDir
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Method: "subprocess-fallback",
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		return result, nil
	}

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	} else if runErr != nil {
		result.ExitCode = -1
		result.Stderr += "\n" + runErr.Error()
	}

	return result, nil
}
