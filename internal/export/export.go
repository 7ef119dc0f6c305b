// Package export renders stored prompt records for the prompts command and
// reads those renderings back for import.
package export

import (
	"fmt"
	"time"

	"github.com/fakeyudi/promptwatch/internal/record"
)

// Document is the complete, renderable result of one listing.
type Document struct {
	Version     int                    `json:"version"`
	GeneratedAt time.Time              `json:"generated_at"`
	Filter      Filter                 `json:"filter"`
	Records     []*record.PromptRecord `json:"records"`
}

// Filter echoes the selection that produced a Document.
type Filter struct {
	SessionID   string `json:"session_id,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// CurrentVersion is written into every Document.
const CurrentVersion = 1

// New returns a Document for records.
func New(records []*record.PromptRecord, filter Filter, now time.Time) *Document {
	if records == nil {
		records = []*record.PromptRecord{}
	}
	return &Document{
		Version:     CurrentVersion,
		GeneratedAt: now.UTC(),
		Filter:      filter,
		Records:     records,
	}
}

// RendererFor returns the renderer for "text", "json" or "markdown".
func RendererFor(format string) (Renderer, error) {
	switch format {
	case "", "text":
		return &TextRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want text, json or markdown)", format)
	}
}
