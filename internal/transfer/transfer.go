// Package transfer renders active memories to portable documents and parses
// such documents (and plain text files) back into units to save.
package transfer

import (
	"path/filepath"
	"strings"

	"github.com/Thianvelaz/Cognio/internal/model"
)

// Format names a document representation.
type Format string

const (
	JSON     Format = "json"
	Markdown Format = "markdown"
	Text     Format = "text"
)

// ImportedTag marks memories created from plain text files.
const ImportedTag = "imported"

// Unit is one memory parsed from a document, ready to be saved.
type Unit struct {
	Text    string
	Project *string
	Tags    []string
}

// ParseFormat accepts the canonical names and common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "markdown", "md":
		return Markdown, nil
	case "text", "txt", "plain":
		return Text, nil
	}
	return "", model.NewValidationError("format", "must be one of json, markdown, text")
}

// ExportFormat is ParseFormat restricted to formats that can be exported.
func ExportFormat(s string) (Format, error) {
	if strings.TrimSpace(s) == "" {
		return JSON, nil
	}
	f, err := ParseFormat(s)
	if err != nil || f == Text {
		return "", model.NewValidationError("format", "must be json or markdown")
	}
	return f, nil
}

// DetectFormat infers the format from a file name's extension. Unknown
// extensions are read as plain text.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return JSON
	case ".md", ".markdown":
		return Markdown
	}
	return Text
}

// ContentType is the MIME type used when serving a rendered document.
func (f Format) ContentType() string {
	switch f {
	case JSON:
		return "application/json"
	case Markdown:
		return "text/markdown; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// Parse dispatches to the parser for f.
func Parse(f Format, data []byte) ([]Unit, error) {
	switch f {
	case JSON:
		return ParseJSON(data)
	case Markdown:
		return ParseMarkdown(data), nil
	case Text:
		return ParseText(data), nil
	}
	return nil, model.NewValidationError("format", "unsupported format "+string(f))
}
