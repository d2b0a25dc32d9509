package transfer

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/Thianvelaz/Cognio/internal/model"
)

const (
	markdownTitle = "# Memory Export"
	sectionRule   = "---"
	projectPrefix = "**Project**:"
	tagsPrefix    = "**Tags**:"
	createdPrefix = "**Created**:"
	headingPrefix = "## "
)

// RenderMarkdown writes recs as rule-delimited sections under a title block.
func RenderMarkdown(recs []*model.MemoryRecord, exportedAt time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\n\n", markdownTitle)
	fmt.Fprintf(&b, "Exported: %s\n", exportedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Total memories: %d\n\n", len(recs))

	for i, r := range recs {
		fmt.Fprintf(&b, "%s\n\n", sectionRule)
		fmt.Fprintf(&b, "%sMemory %d\n\n", headingPrefix, i+1)
		if r.Project != nil {
			fmt.Fprintf(&b, "%s %s\n", projectPrefix, *r.Project)
		}
		if len(r.Tags) > 0 {
			fmt.Fprintf(&b, "%s %s\n", tagsPrefix, strings.Join(r.Tags, ", "))
		}
		fmt.Fprintf(&b, "%s %s\n\n", createdPrefix, model.FormatTimestamp(r.CreatedAt))
		b.WriteString(r.Text)
		b.WriteString("\n\n")
	}
	return b.Bytes()
}

// ParseMarkdown splits data on lines equal to "---". A leading title block
// is skipped. Heading and metadata lines at the top of each section recover
// project and tags. In sections written by RenderMarkdown the text after the
// blank line following "**Created**:" is taken verbatim, less the trailing
// blank line the renderer adds. Other sections are trimmed. Text containing
// a bare "---" line cannot round-trip.
func ParseMarkdown(data []byte) []Unit {
	var out []Unit
	for i, section := range splitSections(string(data)) {
		if i == 0 && strings.HasPrefix(strings.TrimSpace(section), markdownTitle) {
			continue
		}
		if u, ok := parseSection(section); ok {
			out = append(out, u)
		}
	}
	return out
}

// splitSections keeps every byte of a section, line endings included.
func splitSections(doc string) []string {
	var sections []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(doc, "\n") {
		if strings.TrimRight(line, " \t\r\n") == sectionRule {
			sections = append(sections, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteString(line)
	}
	return append(sections, cur.String())
}

func parseSection(section string) (Unit, bool) {
	var u Unit
	heading, meta := false, false
	rest := section
	for rest != "" {
		line, tail := cutLine(rest)
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case !heading && !meta && strings.HasPrefix(trimmed, headingPrefix):
			heading = true
		case strings.HasPrefix(trimmed, projectPrefix):
			p := strings.TrimSpace(strings.TrimPrefix(trimmed, projectPrefix))
			u.Project = model.NormalizeProject(&p)
			meta = true
		case strings.HasPrefix(trimmed, tagsPrefix):
			u.Tags = splitTags(strings.TrimPrefix(trimmed, tagsPrefix))
			meta = true
		case strings.HasPrefix(trimmed, createdPrefix):
			u.Text = renderedBody(tail)
			return u, strings.TrimSpace(u.Text) != ""
		default:
			u.Text = strings.TrimSpace(rest)
			return u, u.Text != ""
		}
		rest = tail
	}
	return u, false
}

// renderedBody undoes the blank line RenderMarkdown writes before the text
// and the "\n\n" it writes after it.
func renderedBody(s string) string {
	if strings.HasPrefix(s, "\r\n") {
		s = s[2:]
	} else {
		s = strings.TrimPrefix(s, "\n")
	}
	if strings.HasSuffix(s, "\r\n\r\n") {
		return strings.TrimSuffix(s, "\r\n\r\n")
	}
	return strings.TrimSuffix(s, "\n\n")
}

func cutLine(s string) (line, rest string) {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i+1], s[i+1:]
	}
	return s, ""
}

func splitTags(s string) []string {
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
