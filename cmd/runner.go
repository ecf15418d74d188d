package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/atelier-agents/codeforge/engine/sandbox"
)

// defaultRunnerImage is the container image projects execute in. Override
// with CODEFORGE_RUNNER_IMAGE.
const defaultRunnerImage = "python:3.11-slim"

// dockerRunner implements sandbox.Client by materializing the project into a
// temporary directory and running the detected command in a fresh container.
// Every invocation gets its own named container and its own copy of the files.
type dockerRunner struct {
	Image string
}

func newDockerRunner() *dockerRunner {
	image := os.Getenv("CODEFORGE_RUNNER_IMAGE")
	if image == "" {
		image = defaultRunnerImage
	}
	return &dockerRunner{Image: image}
}

// runArgs builds the docker invocation. The container is named so a timed-out
// run can be torn down; the network is disabled for generated code.
func (r *dockerRunner) runArgs(name, dir, command string) []string {
	return []string{
		"run", "--rm",
		"--name", name,
		"--network", "none",
		"-v", dir + ":/app",
		"-w", "/app",
		r.Image,
		"sh", "-c", command,
	}
}

// Execute implements sandbox.Client.
func (r *dockerRunner) Execute(ctx context.Context, req sandbox.Request) (*sandbox.Result, error) {
	dir, err := os.MkdirTemp("", "codeforge-run-")
	if err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	defer os.RemoveAll(dir)

	for path, content := range req.Files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	command := req.CommandHint
	if command == "" {
		command = sandbox.DetectCommand(req.Files)
	}
	if command == "" {
		return &sandbox.Result{ExitStatus: 1, Stderr: "no runnable entry point detected"}, nil
	}

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	name := "codeforge-" + uuid.New().String()[:12]
	cmd := exec.CommandContext(runCtx, "docker", r.runArgs(name, dir, command)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	result := &sandbox.Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if runCtx.Err() != nil {
		// Killing the docker client leaves the container running; stop it
		// before the bind-mounted directory is removed.
		_ = exec.Command("docker", "rm", "-f", name).Run()
		result.TimedOut = runCtx.Err() == context.DeadlineExceeded
		result.ExitStatus = -1
		return result, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitStatus = exitErr.ExitCode()
			return result, nil
		}
		// docker itself could not run: transport failure, not a code failure.
		return nil, fmt.Errorf("docker execution failed: %w", err)
	}
	return result, nil
}
