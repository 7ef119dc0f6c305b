// Package processor turns captured terminal text into prompt/response pairs.
package processor

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Pair is one extracted exchange.
type Pair struct {
	Prompt   string
	Response string
}

// Result is everything Process derived from one block of raw output.
type Result struct {
	Clean string
	Spans [][]string
	Pairs []Pair
}

// Processor applies a Policy to raw terminal output.
type Processor struct {
	policy Policy
}

// New returns a Processor using policy.
func New(policy Policy) *Processor {
	return &Processor{policy: policy}
}

// Clean strips ANSI escape sequences and normalizes line endings to \n.
func Clean(raw string) string {
	s := ansi.Strip(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Process cleans raw and extracts every conversation in it.
func (p *Processor) Process(raw string) Result {
	res := Result{Clean: Clean(raw)}
	if !p.IsConversation(res.Clean) {
		return res
	}
	res.Spans = p.Spans(strings.Split(res.Clean, "\n"))
	for _, span := range res.Spans {
		if pair, ok := p.Pair(span); ok {
			res.Pairs = append(res.Pairs, pair)
		}
	}
	return res
}

// IsConversation reports whether text has at least one human turn and one
// assistant turn.
func (p *Processor) IsConversation(text string) bool {
	var human, assistant bool
	for _, line := range strings.Split(text, "\n") {
		human = human || p.policy.Human.MatchString(line)
		assistant = assistant || p.policy.Assistant.MatchString(line)
		if human && assistant {
			return true
		}
	}
	return false
}

// Spans groups lines into conversations. A span opens at a human turn and
// closes on a prompt-looking or blank line that directly follows an
// assistant turn line; the closing line is not part of the span.
func (p *Processor) Spans(lines []string) [][]string {
	var (
		spans [][]string
		cur   []string
	)
	for _, line := range lines {
		if cur == nil {
			if p.policy.Human.MatchString(line) {
				cur = []string{line}
			}
			continue
		}
		cur = append(cur, line)
		if len(cur) > 2 && p.policy.Assistant.MatchString(cur[len(cur)-2]) && p.policy.closes(line) {
			cur = cur[:len(cur)-1]
			if p.valid(cur) {
				spans = append(spans, cur)
			}
			cur = nil
		}
	}
	if cur != nil && p.policy.FlushOpen && p.valid(cur) {
		spans = append(spans, cur)
	}
	return spans
}

func (p *Processor) valid(span []string) bool {
	var human, assistant bool
	for _, line := range span {
		human = human || p.policy.Human.MatchString(line)
		assistant = assistant || p.policy.Assistant.MatchString(line)
	}
	return human && assistant
}

type segment struct {
	human bool
	lines []string
}

// Pair splits span into speaker segments and joins all human segments into
// the prompt and all assistant segments into the response. ok is false
// when either side comes out empty.
func (p *Processor) Pair(span []string) (pair Pair, ok bool) {
	var segs []segment
	for _, line := range span {
		if m := p.policy.Human.FindStringSubmatch(line); m != nil {
			segs = appendSegment(segs, true, group(m))
			continue
		}
		if m := p.policy.Assistant.FindStringSubmatch(line); m != nil {
			segs = appendSegment(segs, false, group(m))
			continue
		}
		if len(segs) > 0 {
			last := &segs[len(segs)-1]
			last.lines = append(last.lines, line)
		}
	}

	var human, assistant []string
	for _, s := range segs {
		text := strings.TrimSpace(strings.Join(s.lines, "\n"))
		if text == "" {
			continue
		}
		if s.human {
			human = append(human, text)
		} else {
			assistant = append(assistant, text)
		}
	}
	pair = Pair{Prompt: strings.Join(human, "\n\n"), Response: strings.Join(assistant, "\n\n")}
	return pair, pair.Prompt != "" && pair.Response != ""
}

// appendSegment starts a new segment unless the previous one has the same
// speaker, in which case the text continues it.
func appendSegment(segs []segment, human bool, text string) []segment {
	if n := len(segs); n > 0 && segs[n-1].human == human {
		segs[n-1].lines = append(segs[n-1].lines, text)
		return segs
	}
	return append(segs, segment{human: human, lines: []string{text}})
}

func group(m []string) string {
	if len(m) > 1 {
		return m[1]
	}
	return ""
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
