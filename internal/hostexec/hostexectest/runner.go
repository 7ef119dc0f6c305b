// Package hostexectest provides a scripted hostexec.Runner for tests.
package hostexectest

import (
	"context"
	"strings"
	"sync"

	"github.com/fakeyudi/promptwatch/internal/hostexec"
)

// Response is what the fake returns for a matched command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	// Block makes Run wait until its context is done.
	Block bool
}

type rule struct {
	prefix string
	exact  bool
	fn     func(command string) Response
}

// Runner answers commands from registered rules and records every call.
// Unmatched commands exit with status 1.
type Runner struct {
	mu    sync.Mutex
	rules []rule
	calls []string
}

// New returns an empty Runner.
func New() *Runner {
	return &Runner{}
}

// On answers the exact command with resp, replacing any earlier rule for it.
func (r *Runner) On(command string, resp Response) *Runner {
	return r.add(rule{prefix: command, exact: true, fn: func(string) Response { return resp }})
}

// OnPrefix answers any command starting with prefix.
func (r *Runner) OnPrefix(prefix string, resp Response) *Runner {
	return r.add(rule{prefix: prefix, fn: func(string) Response { return resp }})
}

// OnFunc answers commands starting with prefix using fn.
func (r *Runner) OnFunc(prefix string, fn func(command string) Response) *Runner {
	return r.add(rule{prefix: prefix, fn: fn})
}

func (r *Runner) add(nr rule) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rules {
		if existing.prefix == nr.prefix && existing.exact == nr.exact {
			r.rules[i] = nr
			return r
		}
	}
	r.rules = append(r.rules, nr)
	return r
}

// Calls returns the commands run so far, in order.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// CallCount returns how many commands started with prefix.
func (r *Runner) CallCount(prefix string) int {
	n := 0
	for _, c := range r.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Run implements hostexec.Runner.
func (r *Runner) Run(ctx context.Context, command string) (hostexec.Output, error) {
	r.mu.Lock()
	r.calls = append(r.calls, command)
	resp, ok := r.match(command)
	r.mu.Unlock()

	if !ok {
		return hostexec.Output{ExitCode: 1, Stderr: []byte("unscripted command")}, nil
	}
	if resp.Block {
		<-ctx.Done()
		return hostexec.Output{}, ctx.Err()
	}
	if resp.Err != nil {
		return hostexec.Output{}, resp.Err
	}
	return hostexec.Output{
		Stdout:   []byte(resp.Stdout),
		Stderr:   []byte(resp.Stderr),
		ExitCode: resp.ExitCode,
	}, nil
}

// match prefers exact rules, then the longest matching prefix.
func (r *Runner) match(command string) (Response, bool) {
	var best *rule
	for i := range r.rules {
		ru := &r.rules[i]
		if ru.exact {
			if ru.prefix == command {
				return ru.fn(command), true
			}
			continue
		}
		if strings.HasPrefix(command, ru.prefix) && (best == nil || len(ru.prefix) > len(best.prefix)) {
			best = ru
		}
	}
	if best == nil {
		return Response{}, false
	}
	return best.fn(command), true
}

// Bridge returns a hostexec.Bridge over r with the default policy.
func (r *Runner) Bridge() *hostexec.Bridge {
	return hostexec.NewBridge(r, nil, nil)
}
