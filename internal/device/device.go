// Package device maps host processes to the terminal devices they hold open.
package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fakeyudi/promptwatch/internal/hostexec"
)

// UnknownTerminal is reported when a process's TERM cannot be read.
const UnknownTerminal = "unknown"

const defaultTimeout = 5 * time.Second

var (
	fdPattern       = regexp.MustCompile(`^(\d+)[urw]?$`)
	terminalPattern = regexp.MustCompile(`^/dev/(pts/\d+|tty[A-Za-z0-9]*)$`)
)

// IsTerminalDevice reports whether path names a terminal device file that
// is safe to place in a host command.
func IsTerminalDevice(path string) bool {
	return terminalPattern.MatchString(path)
}

// Device is a terminal device held open by a process.
type Device struct {
	Path     string
	Command  string
	FDs      []int
	Readable bool
}

// ParseError describes an lsof row that was skipped.
type ParseError struct {
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fd listing: %s: %q", e.Reason, e.Text)
}

// ParseFDList extracts character-device terminal entries from lsof output,
// grouping descriptors by device path in first-seen order.
func ParseFDList(r io.Reader) ([]Device, []*ParseError) {
	var (
		devices []Device
		skipped []*ParseError
		index   = map[string]int{}
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 9 {
			skipped = append(skipped, &ParseError{Text: line, Reason: "too few columns"})
			continue
		}
		if fields[4] != "CHR" {
			continue
		}
		m := fdPattern.FindStringSubmatch(fields[3])
		if m == nil {
			continue
		}
		fd, _ := strconv.Atoi(m[1])
		path := strings.Join(fields[8:], " ")
		if !IsTerminalDevice(path) {
			continue
		}

		if i, ok := index[path]; ok {
			devices[i].FDs = append(devices[i].FDs, fd)
			continue
		}
		index[path] = len(devices)
		devices = append(devices, Device{Path: path, Command: fields[0], FDs: []int{fd}})
	}
	return devices, skipped
}

// Identifier resolves terminal devices through the host bridge.
type Identifier struct {
	exec    hostexec.Executor
	timeout time.Duration
	log     *slog.Logger
}

// NewIdentifier returns an Identifier using exec.
func NewIdentifier(exec hostexec.Executor, log *slog.Logger) *Identifier {
	if log == nil {
		log = slog.Default()
	}
	return &Identifier{exec: exec, timeout: defaultTimeout, log: log.With("component", "device")}
}

// DevicesFor returns the terminal devices pid holds open, each checked for
// read permission. A vanished process or a denied listing yields nil.
func (i *Identifier) DevicesFor(ctx context.Context, pid int) []Device {
	cmd := fmt.Sprintf("lsof -p %d | grep -E 'tty|pts'", pid)
	out, err := i.exec.Execute(ctx, cmd, i.timeout)
	if err != nil {
		i.log.Debug("no terminal devices", "pid", pid, "error", err)
		return nil
	}

	devices, skipped := ParseFDList(strings.NewReader(out))
	for _, pe := range skipped {
		i.log.Debug("skipping fd line", "pid", pid, "reason", pe.Reason)
	}
	for k := range devices {
		devices[k].Readable = i.Readable(ctx, devices[k].Path)
	}
	return devices
}

// Readable reports whether the device at path can be opened for reading.
// The check opens the device and reads nothing.
func (i *Identifier) Readable(ctx context.Context, path string) bool {
	if !IsTerminalDevice(path) {
		return false
	}
	_, err := i.exec.Execute(ctx, "timeout 1 head -c 0 "+path, i.timeout)
	return err == nil
}

// TerminalType returns the TERM value from pid's environment, or
// UnknownTerminal.
func (i *Identifier) TerminalType(ctx context.Context, pid int) string {
	out, err := i.exec.Execute(ctx, fmt.Sprintf("cat /proc/%d/environ", pid), i.timeout)
	if err != nil {
		return UnknownTerminal
	}
	for _, kv := range strings.Split(out, "\x00") {
		if v, ok := strings.CutPrefix(kv, "TERM="); ok && v != "" {
			return v
		}
	}
	return UnknownTerminal
}
