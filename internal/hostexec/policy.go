package hostexec

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// DefaultAllowList is the set of read-only command shapes the bridge accepts.
// Every stage of a pipeline must match one of them.
var DefaultAllowList = []string{
	`^ps(\s+-?[a-zA-Z]+)*$`,
	`^lsof\s+-p\s+\d+$`,
	`^cat\s+/proc/\d+/environ$`,
	`^grep(\s+-[EFivwxcn]+)*\s+('[^']*'|"[^"]*")$`,
	`^timeout\s+\d+(\.\d+)?\s+(cat|head\s+-c\s+\d+)\s+/dev/[\w/]+$`,
	`^timeout\s+\d+(\.\d+)?\s+script\s+-q\s+-c\s+'(cat|head\s+-c\s+\d+)\s+/dev/[\w/]+'\s+/dev/null$`,
}

// Policy decides whether a command may be sent to the host.
type Policy struct {
	patterns []*regexp.Regexp
}

// NewPolicy compiles the given allow-list patterns. An empty list yields
// DefaultAllowList.
func NewPolicy(patterns []string) (*Policy, error) {
	if len(patterns) == 0 {
		patterns = DefaultAllowList
	}
	p := &Policy{}
	for _, raw := range patterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("compiling allow-list pattern %q: %w", raw, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// DefaultPolicy returns a Policy built from DefaultAllowList.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(nil)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate returns a *ValidationError unless every pipeline stage of command
// matches an allow-list pattern. Shell metacharacters other than a plain
// pipe are refused outright, and anything that fails to tokenize is refused.
func (p *Policy) Validate(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return &ValidationError{Command: command, Reason: "empty command"}
	}
	if strings.Contains(trimmed, "$(") || strings.Contains(trimmed, "`") {
		return &ValidationError{Command: command, Reason: "contains command substitution"}
	}
	if strings.ContainsAny(trimmed, "\n\r") {
		return &ValidationError{Command: command, Reason: "contains a line break"}
	}
	if hasParentSegment(trimmed) {
		return &ValidationError{Command: command, Reason: "contains a .. path segment"}
	}
	stages, err := splitPipeline(trimmed)
	if err != nil {
		return &ValidationError{Command: command, Reason: err.Error()}
	}
	for _, stage := range stages {
		if !p.matches(stage) {
			return &ValidationError{Command: command, Reason: fmt.Sprintf("stage %q matches no allowed pattern", stage)}
		}
	}
	return nil
}

// hasParentSegment reports whether any word of command, quoted or not,
// walks up a directory with "..".
func hasParentSegment(command string) bool {
	words := strings.FieldsFunc(command, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\'' || r == '"'
	})
	for _, w := range words {
		for _, seg := range strings.Split(w, "/") {
			if seg == ".." {
				return true
			}
		}
	}
	return false
}

func (p *Policy) matches(stage string) bool {
	for _, re := range p.patterns {
		if re.MatchString(stage) {
			return true
		}
	}
	return false
}

// splitPipeline splits command on unquoted pipes and rejects any other
// unquoted control operator or redirection.
func splitPipeline(command string) ([]string, error) {
	var (
		stages   []string
		cur      strings.Builder
		inSingle bool
		inDouble bool
	)
	flush := func() error {
		s := strings.TrimSpace(cur.String())
		if s == "" {
			return fmt.Errorf("empty pipeline stage")
		}
		stages = append(stages, s)
		cur.Reset()
		return nil
	}

	for _, r := range command {
		switch {
		case inSingle:
			if r == '\'' {
				inSingle = false
			}
		case inDouble:
			if r == '"' {
				inDouble = false
			}
		case r == '\'':
			inSingle = true
		case r == '"':
			inDouble = true
		case r == '|':
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		case r == '\\':
			return nil, fmt.Errorf("escape sequences are not allowed")
		case strings.ContainsRune(";&<>", r):
			return nil, fmt.Errorf("operator %q is not allowed", r)
		}
		cur.WriteRune(r)
	}
	if inSingle || inDouble {
		return nil, fmt.Errorf("unterminated quote")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return stages, nil
}
