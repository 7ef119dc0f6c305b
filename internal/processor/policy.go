package processor

import (
	"fmt"
	"regexp"
)

// Default marker patterns. Each is matched against a single cleaned line;
// the first capture group of a turn marker is the start of the turn's text.
const (
	DefaultHumanPattern       = `(?i)^\s*Human:\s*(.*)$`
	DefaultAssistantPattern   = `(?i)^\s*(?:Assistant|Claude):\s*(.*)$`
	DefaultShellPromptPattern = `^\s*(?:➜\s.*|(?:\S*[@:~/]\S*\s*)?[$#%❯](?:\s|$))`
)

// Policy holds the patterns that decide where turns begin and where a
// conversation ends. Turn boundaries in a terminal are a heuristic, so
// all of them are configurable.
type Policy struct {
	Human       *regexp.Regexp
	Assistant   *regexp.Regexp
	ShellPrompt *regexp.Regexp
	// FlushOpen emits a span that is still open when the text ends.
	FlushOpen bool
}

// DefaultPolicy returns the built-in marker patterns.
func DefaultPolicy() Policy {
	return Policy{
		Human:       regexp.MustCompile(DefaultHumanPattern),
		Assistant:   regexp.MustCompile(DefaultAssistantPattern),
		ShellPrompt: regexp.MustCompile(DefaultShellPromptPattern),
		FlushOpen:   true,
	}
}

// NewPolicy compiles the given patterns; empty ones keep their default.
func NewPolicy(human, assistant, shellPrompt string, flushOpen bool) (Policy, error) {
	p := DefaultPolicy()
	p.FlushOpen = flushOpen
	for _, f := range []struct {
		name string
		src  string
		dst  **regexp.Regexp
	}{
		{"human", human, &p.Human},
		{"assistant", assistant, &p.Assistant},
		{"shell prompt", shellPrompt, &p.ShellPrompt},
	} {
		if f.src == "" {
			continue
		}
		re, err := regexp.Compile(f.src)
		if err != nil {
			return Policy{}, fmt.Errorf("compiling %s pattern: %w", f.name, err)
		}
		*f.dst = re
	}
	return p, nil
}

// closes reports whether line ends a conversation.
func (p Policy) closes(line string) bool {
	return p.ShellPrompt.MatchString(line) || isBlank(line)
}
