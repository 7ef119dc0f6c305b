package processor

import (
	"reflect"
	"testing"
)

func TestProcessSingleExchange(t *testing.T) {
	p := New(DefaultPolicy())
	res := p.Process("Human: Q\nAssistant: A\n$ ")

	want := []Pair{{Prompt: "Q", Response: "A"}}
	if !reflect.DeepEqual(res.Pairs, want) {
		t.Errorf("Pairs = %+v, want %+v", res.Pairs, want)
	}
	if len(res.Spans) != 1 || len(res.Spans[0]) != 2 {
		t.Errorf("Spans = %q, want one span without the prompt line", res.Spans)
	}
}

func TestProcessStripsEscapesAndCarriageReturns(t *testing.T) {
	p := New(DefaultPolicy())
	raw := "\x1b[1;32mHuman:\x1b[0m explain rings\r\n\x1b[36mClaude:\x1b[0m a ring keeps the newest bytes\r\n\r\nuser@box:~$ "
	res := p.Process(raw)

	if len(res.Pairs) != 1 {
		t.Fatalf("Pairs = %+v", res.Pairs)
	}
	if res.Pairs[0].Prompt != "explain rings" || res.Pairs[0].Response != "a ring keeps the newest bytes" {
		t.Errorf("pair = %+v", res.Pairs[0])
	}
}

func TestProcessNoConversation(t *testing.T) {
	p := New(DefaultPolicy())
	for _, raw := range []string{
		"",
		"$ ls\nmain.go\n$ ",
		"Human: only one side\n$ ",
		"Assistant: answer without a question\n",
	} {
		if res := p.Process(raw); len(res.Pairs) != 0 {
			t.Errorf("Process(%q) = %+v, want no pairs", raw, res.Pairs)
		}
	}
}

func TestProcessMultipleConversations(t *testing.T) {
	p := New(DefaultPolicy())
	raw := "$ claude\nHuman: first\nClaude: one\n\nsome noise\nHuman: second\nClaude: two\n# "
	res := p.Process(raw)

	want := []Pair{
		{Prompt: "first", Response: "one"},
		{Prompt: "second", Response: "two"},
	}
	if !reflect.DeepEqual(res.Pairs, want) {
		t.Errorf("Pairs = %+v, want %+v", res.Pairs, want)
	}
}

func TestPairJoinsAndMergesTurns(t *testing.T) {
	p := New(DefaultPolicy())
	span := []string{
		"Human: part one",
		"continued",
		"Human: part two",
		"Assistant: answer",
		"Human: follow up",
		"Assistant: more",
		"and more",
	}
	pair, ok := p.Pair(span)
	if !ok {
		t.Fatal("Pair returned !ok")
	}
	if pair.Prompt != "part one\ncontinued\npart two\n\nfollow up" {
		t.Errorf("Prompt = %q", pair.Prompt)
	}
	if pair.Response != "answer\n\nmore\nand more" {
		t.Errorf("Response = %q", pair.Response)
	}
}

func TestSpansFlushOpen(t *testing.T) {
	lines := []string{"Human: q", "Assistant: partial answer", "still typing"}

	open := New(DefaultPolicy()).Spans(lines)
	if len(open) != 1 {
		t.Errorf("FlushOpen: got %d spans, want 1", len(open))
	}

	policy := DefaultPolicy()
	policy.FlushOpen = false
	if closed := New(policy).Spans(lines); len(closed) != 0 {
		t.Errorf("without FlushOpen: got %d spans, want 0", len(closed))
	}
}

func TestShellPromptPattern(t *testing.T) {
	policy := DefaultPolicy()
	cases := []struct {
		line string
		want bool
	}{
		{"$ ", true},
		{"$", true},
		{"# ", true},
		{"user@host:~/src$ ", true},
		{"❯ ", true},
		{"~/proj $ ", true},
		{"root@box:/# ", true},
		{"➜  proj git:(main)", true},
		{"100% done", false},
		{"plain text", false},
		{"costs $5 a month", false},
	}
	for _, c := range cases {
		if got := policy.closes(c.line); got != c.want {
			t.Errorf("closes(%q) = %v, want %v", c.line, got, c.want)
		}
	}
	if !policy.closes("   ") {
		t.Error("blank line should close")
	}
}

func TestNewPolicy(t *testing.T) {
	policy, err := NewPolicy(`^Q:\s*(.*)$`, `^A:\s*(.*)$`, "", true)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	res := New(policy).Process("Q: why\nA: because\n$ ")
	if len(res.Pairs) != 1 || res.Pairs[0].Prompt != "why" {
		t.Errorf("custom markers: %+v", res.Pairs)
	}

	if _, err := NewPolicy("(", "", "", true); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
