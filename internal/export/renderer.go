package export

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
)

const (
	versionSentinel = "<!-- promptwatch-export-version: 1 -->"
	dataPrefix      = "<!-- promptwatch-data: "
	dataSuffix      = " -->"
)

// Renderer serializes a Document to bytes.
type Renderer interface {
	Render(doc *Document) ([]byte, error)
}

// JSONRenderer renders a Document as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// TextRenderer renders one line per record for terminals.
type TextRenderer struct{}

func (r *TextRenderer) Render(doc *Document) ([]byte, error) {
	var sb strings.Builder
	if len(doc.Records) == 0 {
		sb.WriteString("No prompts recorded.\n")
		return []byte(sb.String()), nil
	}
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPROJECT\tSESSION\tPROMPT")
	for _, rec := range doc.Records {
		project := rec.ProjectName
		if project == "" {
			project = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
			project,
			shortID(rec.SessionID),
			oneLine(rec.PromptText, 60),
		)
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// MarkdownRenderer renders a Document as human-readable Markdown with
// an embedded base64 JSON payload for lossless round-trip parsing.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(doc *Document) ([]byte, error) {
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder

	// Sentinel and embedded payload.
	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	fmt.Fprintf(&sb, "# Prompts: %s\n\n", doc.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	// ## Summary
	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Records: %d\n", len(doc.Records))
	if doc.Filter.ProjectName != "" {
		fmt.Fprintf(&sb, "- Project: %s\n", doc.Filter.ProjectName)
	}
	if doc.Filter.SessionID != "" {
		fmt.Fprintf(&sb, "- Session: %s\n", doc.Filter.SessionID)
	}
	if projects := projectCounts(doc); len(projects) > 0 {
		sb.WriteString("\n| Project | Prompts |\n")
		sb.WriteString("|---------|---------|\n")
		for _, pc := range projects {
			fmt.Fprintf(&sb, "| %s | %d |\n", pc.name, pc.n)
		}
	}
	sb.WriteString("\n")

	// ## Conversations
	sb.WriteString("## Conversations\n\n")
	if len(doc.Records) == 0 {
		sb.WriteString("_No prompts recorded._\n")
	}
	for _, rec := range doc.Records {
		fmt.Fprintf(&sb, "### %s\n\n", rec.Timestamp.Format("2006-01-02 15:04:05"))
		if rec.ProjectName != "" {
			fmt.Fprintf(&sb, "- Project: %s\n", rec.ProjectName)
		}
		if rec.SessionID != "" {
			fmt.Fprintf(&sb, "- Session: `%s`\n", rec.SessionID)
		}
		if rec.TerminalType != "" {
			fmt.Fprintf(&sb, "- Terminal: %s\n", rec.TerminalType)
		}
		sb.WriteString("\n**Prompt**\n\n")
		writeFenced(&sb, rec.PromptText)
		sb.WriteString("\n**Response**\n\n")
		writeFenced(&sb, rec.ResponseText)
		sb.WriteString("\n")
	}

	return []byte(sb.String()), nil
}

func writeFenced(sb *strings.Builder, text string) {
	fence := "```"
	for strings.Contains(text, fence) {
		fence += "`"
	}
	sb.WriteString(fence + "\n")
	sb.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString(fence + "\n")
}

type projectCount struct {
	name string
	n    int
}

// projectCounts tallies records per project, busiest first.
func projectCounts(doc *Document) []projectCount {
	counts := map[string]int{}
	for _, rec := range doc.Records {
		if rec.ProjectName != "" {
			counts[rec.ProjectName]++
		}
	}
	out := make([]projectCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, projectCount{name, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].name < out[j].name
	})
	return out
}

func shortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// oneLine flattens s and cuts it to max runes.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
