package hostexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// LocalRunner runs commands with sh on the machine promptwatch itself runs
// on. It is meant for deployments that already share the host PID namespace.
type LocalRunner struct {
	Shell string // defaults to "sh"
}

func (r *LocalRunner) shell() string {
	if r.Shell == "" {
		return "sh"
	}
	return r.Shell
}

// Run executes command in a new process group that is killed when ctx ends.
func (r *LocalRunner) Run(ctx context.Context, command string) (Output, error) {
	out, err := runProcess(ctx, []string{r.shell(), "-c", command}, isolateProcessGroup)
	var execErr *exec.Error
	if err != nil && errors.As(err, &execErr) {
		return out, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return out, err
}

// Ping checks that the shell is available.
func (r *LocalRunner) Ping(context.Context) error {
	if _, err := exec.LookPath(r.shell()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return nil
}
