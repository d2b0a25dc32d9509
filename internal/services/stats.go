package services

import (
	"context"
	"math"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/Thianvelaz/Cognio/internal/model"
)

// Stats aggregates counts, tag frequency and an estimated storage footprint
// over active records.
func (s *MemoryService) Stats(ctx context.Context) (*model.Stats, error) {
	recs, err := s.store.Memories().ScanActive(ctx, model.Filter{})
	if err != nil {
		return nil, err
	}

	byProject := map[string]int{}
	tagCounts := map[string]int{}
	var bytes int64
	vectorBytes := int64(s.opts.Dimension) * 4
	for _, r := range recs {
		if r.Project != nil {
			byProject[*r.Project]++
		}
		for _, t := range r.Tags {
			tagCounts[t]++
		}
		bytes += int64(len(r.Text)) + vectorBytes
	}

	return &model.Stats{
		TotalMemories: len(recs),
		TotalProjects: len(byProject),
		StorageBytes:  bytes,
		StorageMB:     math.Round(float64(bytes)/(1024*1024)*100) / 100,
		StorageHuman:  humanize.IBytes(uint64(bytes)),
		ByProject:     byProject,
		TopTags:       topTags(tagCounts, s.opts.TopTags),
	}, nil
}

// topTags ranks tags by count descending, then lexically, keeping n.
func topTags(counts map[string]int, n int) []model.TagCount {
	out := make([]model.TagCount, 0, len(counts))
	for tag, c := range counts {
		out = append(out, model.TagCount{Tag: tag, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
