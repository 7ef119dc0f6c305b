package hostexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultHelperImage is the image used for the ephemeral helper container.
const DefaultHelperImage = "alpine:3.20"

// teardownTimeout bounds the forced removal of a helper container.
const teardownTimeout = 10 * time.Second

// DockerRunner runs each command in its own short-lived privileged container
// that shares the host's PID and network namespaces.
type DockerRunner struct {
	Binary string // docker CLI; defaults to "docker"
	Image  string // helper image; defaults to DefaultHelperImage

	log  *slog.Logger
	exec func(ctx context.Context, argv []string) (Output, error)
}

// NewDockerRunner returns a DockerRunner using the docker CLI on PATH.
func NewDockerRunner(image string, log *slog.Logger) *DockerRunner {
	if log == nil {
		log = slog.Default()
	}
	return &DockerRunner{
		Binary: "docker",
		Image:  image,
		log:    log.With("component", "docker-runner"),
		exec: func(ctx context.Context, argv []string) (Output, error) {
			return runProcess(ctx, argv, nil)
		},
	}
}

func (r *DockerRunner) binary() string {
	if r.Binary == "" {
		return "docker"
	}
	return r.Binary
}

func (r *DockerRunner) image() string {
	if r.Image == "" {
		return DefaultHelperImage
	}
	return r.Image
}

// Run starts a uniquely named helper for command. If the run does not end
// cleanly the helper is force-removed before Run returns.
func (r *DockerRunner) Run(ctx context.Context, command string) (out Output, err error) {
	name := "promptwatch-" + uuid.NewString()
	argv := []string{
		r.binary(), "run", "--rm",
		"--name", name,
		"--privileged", "--pid=host", "--network=host",
		r.image(), "sh", "-c", command,
	}

	defer func() {
		if err != nil || ctx.Err() != nil {
			r.teardown(name)
		}
	}()

	out, err = r.exec(ctx, argv)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Output{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return out, err
	}
	// docker itself exits 125 when the daemon refuses or cannot be reached.
	if out.ExitCode == 125 {
		return Output{}, fmt.Errorf("%w: %s", ErrUnreachable, strings.TrimSpace(string(out.Stderr)))
	}
	return out, nil
}

// teardown force-removes the named helper. It runs on a fresh context so
// that a cancelled caller still gets its helper cleaned up.
func (r *DockerRunner) teardown(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	out, err := r.exec(ctx, []string{r.binary(), "rm", "-f", name})
	if err != nil {
		r.log.Warn("helper teardown failed", "container", name, "error", err)
		return
	}
	if out.ExitCode != 0 && !strings.Contains(string(out.Stderr), "No such container") {
		r.log.Warn("helper teardown failed", "container", name, "exit_code", out.ExitCode)
	}
}

// Ping checks that the docker daemon answers.
func (r *DockerRunner) Ping(ctx context.Context) error {
	out, err := r.exec(ctx, []string{r.binary(), "version", "--format", "{{.Server.Version}}"})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("%w: %s", ErrUnreachable, strings.TrimSpace(string(out.Stderr)))
	}
	return nil
}
