package export

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Parser deserializes an export file back into a Document.
type Parser interface {
	Parse(data []byte) (*Document, error)
}

// JSONParser parses a JSON-encoded Document.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON export: %w", err)
	}
	return &doc, nil
}

// MarkdownParser parses a Markdown-rendered Document by extracting the
// embedded base64 JSON payload from the sentinel comments.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) (*Document, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("not a promptwatch export: missing version sentinel")
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("not a promptwatch export: missing data payload")
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("not a promptwatch export: malformed data payload")
	}
	encoded := content[start : start+end]

	jsonBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("not a promptwatch export: corrupted base64 payload: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("not a promptwatch export: failed to parse embedded JSON: %w", err)
	}
	return &doc, nil
}

// Parse picks the parser from the content: Markdown exports start with the
// version sentinel, anything else is read as JSON.
func Parse(data []byte) (*Document, error) {
	if bytes.Contains(data, []byte(versionSentinel)) {
		return (&MarkdownParser{}).Parse(data)
	}
	return (&JSONParser{}).Parse(data)
}
