package validate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/Thianvelaz/Cognio/internal/model"
)

const (
	MaxTextLength    = 100_000
	MaxTags          = 50
	MaxTagLength     = 100
	MaxProjectLength = 200
)

func NonEmpty(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return model.NewValidationError(field, "is required")
	}
	return nil
}

func MaxLen(field string, v *string, limit int) error {
	if v == nil {
		return nil
	}
	if len(*v) > limit {
		return model.NewValidationError(field, fmt.Sprintf("exceeds %d characters", limit))
	}
	return nil
}

// MemoryID checks that id is a UUID.
func MemoryID(id string) error {
	if !strfmt.IsUUID(id) {
		return model.NewValidationError("id", "must be a UUID")
	}
	return nil
}

// SaveMemory validates the body of a save request.
func SaveMemory(text string, project *string, tags []string) error {
	if err := NonEmpty("text", text); err != nil {
		return err
	}
	if err := MaxLen("text", &text, MaxTextLength); err != nil {
		return err
	}
	if err := MaxLen("project", project, MaxProjectLength); err != nil {
		return err
	}
	if len(tags) > MaxTags {
		return model.NewValidationError("tags", fmt.Sprintf("at most %d tags allowed", MaxTags))
	}
	for i := range tags {
		if err := MaxLen("tags", &tags[i], MaxTagLength); err != nil {
			return err
		}
	}
	return nil
}

// OptionalInt parses an integer query parameter; empty yields def.
func OptionalInt(field, v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, model.NewValidationError(field, "must be an integer")
	}
	return n, nil
}

// OptionalFloat parses a float query parameter; empty yields nil.
func OptionalFloat(field, v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, model.NewValidationError(field, "must be a number")
	}
	return &f, nil
}

// OptionalDate parses an ISO-8601 date or date-time into unix seconds.
// Values without a zone are read as UTC; empty yields nil.
func OptionalDate(field, v string) (*int64, error) {
	if v == "" {
		return nil, nil
	}
	if dt, err := strfmt.ParseDateTime(v); err == nil {
		ts := model.Timestamp(time.Time(dt))
		return &ts, nil
	}
	if d, err := time.ParseInLocation(strfmt.RFC3339FullDate, v, time.UTC); err == nil {
		ts := model.Timestamp(d)
		return &ts, nil
	}
	return nil, model.NewValidationError(field, "must be an ISO-8601 date or date-time")
}
