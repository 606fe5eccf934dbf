package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// runDocker launches a fresh, auto-removed container and pipes stdin into
// a shell reading from it. The program/script text never touches a
// host-path mount, so it stays visible even when the sandbox process
// itself runs inside a container.
func (d *Driver) runDocker(ctx context.Context, image string, stdin string, network bool, kind string) (*Result, error) {
	name := "cradle-sandbox-" + uuid.NewString()[:8]

	args := []string{
		"run", "--rm", "-i",
		"--name", name,
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--memory", "512m",
		"--memory-swap", "512m",
		"--cpus", "1",
		"--pids-limit", "100",
		"--read-only",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=64m",
		"--tmpfs", "/workspace:rw,nosuid,size=64m",
		"-w", "/workspace",
	}
	if !network {
		args = append(args, "--network", "none")
	}
	for k, v := range forwardedEnv() {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, image, "sh")

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Method: kind,
	}

	if ctx.Err() == context.DeadlineExceeded {
		d.forceKill(name)
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

func (d *Driver) forceKill(containerName string) {
	killCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(killCtx, "docker", "kill", containerName).Run(); err != nil {
		d.logger.Debug("docker kill failed (container may have already exited)", zap.String("container", containerName), zap.Error(err))
	}
}
