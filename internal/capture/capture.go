// Package capture reads terminal device output through the host bridge and
// keeps it in per-session ring buffers.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/fakeyudi/promptwatch/internal/device"
	"github.com/fakeyudi/promptwatch/internal/hostexec"
)

// Method selects how a device is read.
type Method int

const (
	// MethodAuto tries the device once and remembers what worked.
	MethodAuto Method = iota
	// MethodDirect reads the device with a bounded cat.
	MethodDirect
	// MethodScript records the device through script(1), for hosts that
	// refuse direct reads.
	MethodScript
)

func (m Method) String() string {
	switch m {
	case MethodDirect:
		return "direct"
	case MethodScript:
		return "script"
	default:
		return "auto"
	}
}

// ParseMethod maps "auto", "direct" or "script" to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "auto":
		return MethodAuto, nil
	case "direct":
		return MethodDirect, nil
	case "script":
		return MethodScript, nil
	}
	return MethodAuto, fmt.Errorf("unknown capture method %q", s)
}

// Status is the outcome of one capture attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Result is the outcome of one capture attempt. Content is empty unless
// Status is StatusSuccess.
type Result struct {
	Device  string
	Method  Method
	Status  Status
	Content string
	Err     error
	At      time.Time
}

// DefaultTimeout is the read window used when none is given.
const DefaultTimeout = time.Second

// detectTimeout is the read window used while auto-detecting a method.
const detectTimeout = 100 * time.Millisecond

// Capturer reads terminal devices. The method chosen for each device under
// MethodAuto is cached until Forget is called.
type Capturer struct {
	exec hostexec.Executor
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	methods map[string]Method
}

// NewCapturer returns a Capturer that reads through exec.
func NewCapturer(exec hostexec.Executor, log *slog.Logger) *Capturer {
	if log == nil {
		log = slog.Default()
	}
	return &Capturer{
		exec:    exec,
		log:     log.With("component", "capture"),
		now:     time.Now,
		methods: map[string]Method{},
	}
}

// Capture reads whatever dev prints within timeout. Failures are reported
// in the Result; Capture itself never fails.
func (c *Capturer) Capture(ctx context.Context, dev string, timeout time.Duration, method Method) Result {
	res := Result{Device: dev, Method: method, At: c.now()}
	if !device.IsTerminalDevice(dev) {
		res.Status = StatusError
		res.Err = fmt.Errorf("%q is not a terminal device", dev)
		return res
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if method == MethodAuto {
		method = c.resolve(ctx, dev)
		res.Method = method
	}

	out, err := c.read(ctx, dev, timeout, method)
	switch {
	case err == nil:
		res.Status = StatusSuccess
		res.Content = out
	case errors.Is(err, hostexec.ErrTimeout):
		res.Status = StatusTimeout
		res.Err = err
	default:
		res.Status = StatusError
		res.Err = err
	}
	if res.Err != nil {
		c.log.Debug("capture failed", "device", dev, "method", method, "status", res.Status, "error", res.Err)
	}
	return res
}

// read runs one bounded read. The bridge gets a hard budget a little longer
// than the read window so the wrapper's own expiry wins the race.
func (c *Capturer) read(ctx context.Context, dev string, timeout time.Duration, method Method) (string, error) {
	secs := formatSeconds(timeout)
	var (
		cmd   string
		grace time.Duration
	)
	switch method {
	case MethodScript:
		cmd = fmt.Sprintf("timeout %s script -q -c 'cat %s' /dev/null", secs, dev)
		grace = 2 * time.Second
	default:
		cmd = fmt.Sprintf("timeout %s cat %s", secs, dev)
		grace = time.Second
	}
	return c.exec.Execute(ctx, cmd, timeout+grace)
}

// resolve picks a method for dev, probing on first use.
func (c *Capturer) resolve(ctx context.Context, dev string) Method {
	c.mu.Lock()
	m, ok := c.methods[dev]
	c.mu.Unlock()
	if ok {
		return m
	}

	m = MethodScript
	if _, err := c.read(ctx, dev, detectTimeout, MethodDirect); err == nil {
		m = MethodDirect
	} else if _, err := c.read(ctx, dev, detectTimeout, MethodScript); err != nil {
		c.log.Debug("no capture method worked, defaulting to script", "device", dev)
	}
	if ctx.Err() != nil {
		return m
	}

	c.mu.Lock()
	c.methods[dev] = m
	c.mu.Unlock()
	c.log.Debug("capture method resolved", "device", dev, "method", m)
	return m
}

// Forget drops the cached method for dev.
func (c *Capturer) Forget(dev string) {
	c.mu.Lock()
	delete(c.methods, dev)
	c.mu.Unlock()
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
