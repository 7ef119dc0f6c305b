// Package hostexec runs allow-listed, read-only commands against the host.
package hostexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultTimeout applies when Execute is called with a non-positive timeout.
const DefaultTimeout = 30 * time.Second

// Executor runs a single host command and returns its standard output.
type Executor interface {
	Execute(ctx context.Context, command string, timeout time.Duration) (string, error)
}

// Output is the raw result of one command run by a Runner.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner is the transport that actually executes a validated command.
// Run must return once ctx is done and must not leave anything running
// behind it.
type Runner interface {
	Run(ctx context.Context, command string) (Output, error)
}

// Pinger is implemented by runners that can check their transport.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Bridge validates commands against a Policy and hands them to a Runner
// under a per-call timeout.
type Bridge struct {
	policy *Policy
	runner Runner
	log    *slog.Logger
}

// NewBridge returns a Bridge. A nil policy means DefaultPolicy.
func NewBridge(runner Runner, policy *Policy, log *slog.Logger) *Bridge {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{policy: policy, runner: runner, log: log.With("component", "hostexec")}
}

// WithPolicy returns a copy of b that validates against policy.
func (b *Bridge) WithPolicy(policy *Policy) *Bridge {
	cp := *b
	cp.policy = policy
	return &cp
}

// Execute validates command, runs it, and returns its standard output.
//
// Commands wrapped in timeout(1) that end with the wrapper's expiry status
// are treated as successful bounded reads and return whatever they printed.
func (b *Bridge) Execute(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if err := b.policy.Validate(command); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := b.runner.Run(runCtx, command)
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		b.log.Debug("host command timed out", "command", command, "timeout", timeout)
		return "", fmt.Errorf("%w: %q after %s", ErrTimeout, command, timeout)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("running %q: %w", command, err)
	}

	b.log.Debug("host command finished", "command", command, "exit_code", out.ExitCode, "elapsed", elapsed)

	switch {
	case out.ExitCode == 0:
		return string(out.Stdout), nil
	case isTimeoutWrapped(command) && isWrapperExpiry(out.ExitCode):
		return string(out.Stdout), nil
	default:
		return "", &ExitError{Command: command, Code: out.ExitCode, Stderr: string(out.Stderr)}
	}
}

// Ping reports whether the underlying transport is reachable.
func (b *Bridge) Ping(ctx context.Context) error {
	p, ok := b.runner.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

func isTimeoutWrapped(command string) bool {
	return strings.HasPrefix(strings.TrimSpace(command), "timeout ")
}

// 124 is timeout(1)'s own status; 142 and 143 are SIGALRM and SIGTERM as
// reported by busybox and coreutils respectively.
func isWrapperExpiry(code int) bool {
	return code == 124 || code == 142 || code == 143
}
