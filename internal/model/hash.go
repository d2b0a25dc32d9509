package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// TextHash returns the lowercase hex SHA-256 digest of text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DedupKey derives the uniqueness key for a record. With perProject set,
// identical text under different projects yields different keys.
func DedupKey(textHash string, project *string, perProject bool) string {
	if !perProject {
		return textHash
	}
	p := ""
	if project != nil {
		p = *project
	}
	return p + "\x1f" + textHash
}

// Dedup scope names as recorded by stores.
const (
	DedupScopeGlobal  = "global"
	DedupScopeProject = "project"
)

// DedupScopeName names the scope DedupKey uses for perProject.
func DedupScopeName(perProject bool) string {
	if perProject {
		return DedupScopeProject
	}
	return DedupScopeGlobal
}

// Timestamp converts t to integer unix seconds.
func Timestamp(t time.Time) int64 {
	return t.Unix()
}

// FormatTimestamp renders unix seconds as RFC3339 in UTC ("...Z").
func FormatTimestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// NormalizeTags trims, drops empties, de-duplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NormalizeProject maps blank project names to nil.
func NormalizeProject(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
