// Package search scores stored memories against a query vector and orders
// them. It is exact and brute force: every candidate is compared.
package search

import (
	"math"
	"sort"

	"github.com/Thianvelaz/Cognio/internal/model"
)

// Hit pairs a record with its similarity to the query.
type Hit struct {
	Record *model.MemoryRecord
	Score  float64
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either norm is 0 or
// the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Score computes the similarity of every record to query.
func Score(query []float32, recs []*model.MemoryRecord) []Hit {
	hits := make([]Hit, len(recs))
	for i, r := range recs {
		hits[i] = Hit{Record: r, Score: CosineSimilarity(query, r.Embedding)}
	}
	return hits
}

// Rank drops hits scoring at or below threshold (when set), orders the rest
// by relevance and keeps at most limit of them. limit <= 0 keeps all.
func Rank(hits []Hit, threshold *float64, limit int) []Hit {
	out := hits
	if threshold != nil {
		out = make([]Hit, 0, len(hits))
		for _, h := range hits {
			if h.Score > *threshold {
				out = append(out, h)
			}
		}
	}
	SortByRelevance(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SortByRelevance orders by score, then created_at, then id, all descending.
func SortByRelevance(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Record.CreatedAt != b.Record.CreatedAt {
			return a.Record.CreatedAt > b.Record.CreatedAt
		}
		return a.Record.ID > b.Record.ID
	})
}

// SortRecency orders records newest first, ties broken by id descending.
func SortRecency(recs []*model.MemoryRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt > recs[j].CreatedAt
		}
		return recs[i].ID > recs[j].ID
	})
}

// ToScored converts hits to their response form with the score attached.
func ToScored(hits []Hit) []model.ScoredMemory {
	out := make([]model.ScoredMemory, len(hits))
	for i, h := range hits {
		s := h.Score
		out[i] = model.ScoredMemory{MemoryRecord: h.Record, Score: &s}
	}
	return out
}
