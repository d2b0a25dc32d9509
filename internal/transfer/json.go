package transfer

import (
	"encoding/json"
	"time"

	"github.com/Thianvelaz/Cognio/internal/model"
)

// Document is the structured export.
type Document struct {
	ExportedAt string   `json:"exported_at"`
	Count      int      `json:"count"`
	Memories   []Record `json:"memories"`
}

// Record is the portable form of a memory: no id, hash or embedding.
type Record struct {
	Text      string   `json:"text"`
	Project   *string  `json:"project"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"created_at"`
}

// RenderJSON writes recs, which must already be in export order.
func RenderJSON(recs []*model.MemoryRecord, exportedAt time.Time) ([]byte, error) {
	doc := Document{
		ExportedAt: exportedAt.UTC().Format(time.RFC3339),
		Count:      len(recs),
		Memories:   make([]Record, 0, len(recs)),
	}
	for _, r := range recs {
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		doc.Memories = append(doc.Memories, Record{
			Text:      r.Text,
			Project:   r.Project,
			Tags:      tags,
			CreatedAt: model.FormatTimestamp(r.CreatedAt),
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ParseJSON reads a Document. A bare array of records is accepted too.
func ParseJSON(data []byte) ([]Unit, error) {
	var records []Record
	var doc Document
	if err := json.Unmarshal(data, &doc); err == nil {
		records = doc.Memories
	} else if err := json.Unmarshal(data, &records); err != nil {
		return nil, model.NewValidationError("document", "not a JSON memory export: "+err.Error())
	}

	out := make([]Unit, 0, len(records))
	for _, r := range records {
		if r.Text == "" {
			continue
		}
		out = append(out, Unit{Text: r.Text, Project: r.Project, Tags: r.Tags})
	}
	return out, nil
}
