package detect

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseError describes a process listing line that could not be parsed.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("process listing line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// layout records where the interesting columns sit in a ps listing.
type layout struct {
	columns int
	pid     int
	user    int
	tty     int // -1 when the listing has no terminal column
}

// narrowLayout is the busybox "PID USER TIME COMMAND" format.
var narrowLayout = layout{columns: 4, pid: 0, user: 1, tty: -1}

// layoutFromHeader derives the column layout from a ps header line.
// ok is false when the line is not a header.
func layoutFromHeader(line string) (layout, bool) {
	names := strings.Fields(line)
	if len(names) < 2 {
		return layout{}, false
	}
	switch names[len(names)-1] {
	case "COMMAND", "CMD", "ARGS":
	default:
		return layout{}, false
	}
	l := layout{columns: len(names), pid: -1, user: -1, tty: -1}
	for i, name := range names[:len(names)-1] {
		switch name {
		case "PID":
			l.pid = i
		case "USER", "UID", "UNAME", "RUSER":
			l.user = i
		case "TTY", "TT":
			l.tty = i
		}
	}
	if l.pid < 0 {
		return layout{}, false
	}
	return l, true
}

// ParseProcessList parses ps output. The column layout is taken from the
// header line; without one the busybox narrow layout is assumed. Lines that
// do not fit the layout are returned as ParseErrors and otherwise ignored.
func ParseProcessList(r io.Reader) ([]Process, []*ParseError) {
	var (
		procs   []Process
		skipped []*ParseError
		lay     = narrowLayout
		lineNo  int
		sawHead bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !sawHead {
			if l, ok := layoutFromHeader(line); ok {
				lay = l
				sawHead = true
				continue
			}
		}

		p, err := parseLine(line, lay)
		if err != nil {
			err.Line = lineNo
			skipped = append(skipped, err)
			continue
		}
		procs = append(procs, p)
	}
	if err := scanner.Err(); err != nil {
		skipped = append(skipped, &ParseError{Line: lineNo + 1, Reason: err.Error()})
	}
	return procs, skipped
}

func parseLine(line string, lay layout) (Process, *ParseError) {
	fields := splitColumns(line, lay.columns)
	if len(fields) != lay.columns {
		return Process{}, &ParseError{Text: line, Reason: fmt.Sprintf("want %d columns, got %d", lay.columns, len(fields))}
	}
	pid, err := strconv.Atoi(fields[lay.pid])
	if err != nil || pid <= 0 {
		return Process{}, &ParseError{Text: line, Reason: "non-numeric pid"}
	}

	p := Process{PID: pid, Command: fields[lay.columns-1]}
	if lay.user >= 0 {
		p.User = fields[lay.user]
	}
	if lay.tty >= 0 {
		p.TTY = fields[lay.tty]
	} else if looksLikeShell(p.Command) {
		// No terminal column: guess the first pseudo-terminal so the
		// device identifier has somewhere to start.
		p.TTY = "pts/0"
		p.TTYGuessed = true
	}
	return p, nil
}

// splitColumns splits line into at most n whitespace-separated fields, the
// last of which keeps its inner spacing.
func splitColumns(line string, n int) []string {
	var out []string
	rest := line
	for len(out) < n-1 {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			return out
		}
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			out = append(out, rest)
			return out
		}
		out = append(out, rest[:end])
		rest = rest[end:]
	}
	rest = strings.TrimSpace(rest)
	if rest != "" {
		out = append(out, rest)
	}
	return out
}
