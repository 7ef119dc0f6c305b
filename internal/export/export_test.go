package export_test

import (
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/promptwatch/internal/export"
	"github.com/fakeyudi/promptwatch/internal/record"
)

func sampleDoc() *export.Document {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return export.New([]*record.PromptRecord{
		{ID: "r1", PromptText: "What is Go?", ResponseText: "A language.", ProjectName: "demo", SessionID: "0f3c2a9e-1111", Timestamp: ts, TerminalType: "xterm"},
		{ID: "r2", PromptText: "Show code", ResponseText: "```go\nfunc main() {}\n```", ProjectName: "demo", Timestamp: ts.Add(time.Minute)},
		{ID: "r3", PromptText: "multi\nline   prompt", ResponseText: "ok", Timestamp: ts.Add(2 * time.Minute)},
	}, export.Filter{ProjectName: "demo"}, ts)
}

// The Markdown rendering embeds the full document, so parsing it gives back
// the records that were rendered.
func TestMarkdownRoundTripPreservesRecords(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 4).Draw(t, "n")
		var recs []*record.PromptRecord
		for i := 0; i < n; i++ {
			sec := rapid.Int64Range(1_000_000_000, 1_700_000_000).Draw(t, "ts")
			recs = append(recs, &record.PromptRecord{
				ID:           rapid.StringMatching(`[a-f0-9]{8}`).Draw(t, "id"),
				PromptText:   rapid.String().Draw(t, "prompt"),
				ResponseText: rapid.String().Draw(t, "response"),
				ProjectName:  rapid.StringMatching(`[a-z]{0,8}`).Draw(t, "project"),
				Timestamp:    time.Unix(sec, 0).UTC(),
			})
		}
		doc := export.New(recs, export.Filter{}, time.Unix(1_700_000_000, 0))

		out, err := (&export.MarkdownRenderer{}).Render(doc)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		back, err := export.Parse(out)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if len(back.Records) != len(recs) {
			t.Fatalf("got %d records, want %d", len(back.Records), len(recs))
		}
		for i := range recs {
			if back.Records[i].PromptText != recs[i].PromptText || back.Records[i].ResponseText != recs[i].ResponseText || !back.Records[i].Timestamp.Equal(recs[i].Timestamp) {
				t.Fatalf("record %d = %+v, want %+v", i, back.Records[i], recs[i])
			}
		}
	})
}

func TestMarkdownSections(t *testing.T) {
	out, err := (&export.MarkdownRenderer{}).Render(sampleDoc())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	md := string(out)
	for _, want := range []string{
		"## Summary",
		"- Records: 3",
		"| demo | 2 |",
		"## Conversations",
		"**Prompt**\n\n```\nWhat is Go?\n```",
		// A response containing a fence gets a longer one.
		"````\n```go\nfunc main() {}\n```\n````",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestTextRenderer(t *testing.T) {
	out, err := (&export.TextRenderer{}).Render(sampleDoc())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	text := string(out)
	if !strings.HasPrefix(text, "TIME") || !strings.Contains(text, "0f3c2a9e ") || !strings.Contains(text, "multi line prompt") {
		t.Errorf("text output:\n%s", text)
	}

	empty, _ := (&export.TextRenderer{}).Render(export.New(nil, export.Filter{}, time.Now()))
	if string(empty) != "No prompts recorded.\n" {
		t.Errorf("empty output = %q", empty)
	}
}

func TestParseJSON(t *testing.T) {
	out, err := (&export.JSONRenderer{}).Render(sampleDoc())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	doc, err := export.Parse(out)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Version != export.CurrentVersion || len(doc.Records) != 3 || doc.Filter.ProjectName != "demo" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestParseRejectsDamagedMarkdown(t *testing.T) {
	tests := map[string]string{
		"no sentinel": "# Prompts\n",
		"no payload":  "<!-- promptwatch-export-version: 1 -->\n",
		"bad base64":  "<!-- promptwatch-export-version: 1 -->\n<!-- promptwatch-data: %%% -->\n",
	}
	for name, in := range tests {
		if _, err := (&export.MarkdownParser{}).Parse([]byte(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRendererFor(t *testing.T) {
	for _, f := range []string{"", "text", "json", "markdown", "md"} {
		if _, err := export.RendererFor(f); err != nil {
			t.Errorf("RendererFor(%q): %v", f, err)
		}
	}
	if _, err := export.RendererFor("yaml"); err == nil {
		t.Error("expected error for yaml")
	}
}
