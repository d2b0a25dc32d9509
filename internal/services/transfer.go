package services

import (
	"context"
	"strings"

	"github.com/Thianvelaz/Cognio/internal/embeddings"
	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/transfer"
)

// Export renders every active record, oldest first.
func (s *MemoryService) Export(ctx context.Context, format transfer.Format) ([]byte, error) {
	recs, err := s.store.Memories().ScanActive(ctx, model.Filter{})
	if err != nil {
		return nil, err
	}
	// ScanActive is newest first.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}

	switch format {
	case transfer.JSON:
		return transfer.RenderJSON(recs, s.now())
	case transfer.Markdown:
		return transfer.RenderMarkdown(recs, s.now()), nil
	}
	return nil, model.NewValidationError("format", "must be json or markdown")
}

// importBatchSize bounds the texts sent in one embedding call.
const importBatchSize = 64

type importUnit struct {
	req  model.SaveRequest
	vec  []float32
	done bool
}

// Import parses data and saves each unit. When project is set it replaces
// the project of every unit. Units not already stored are embedded in
// batches. A unit that fails is logged and counted; it does not stop the
// rest.
func (s *MemoryService) Import(ctx context.Context, format transfer.Format, data []byte, project *string) (*model.ImportResult, error) {
	parsed, err := transfer.Parse(format, data)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureDedupScope(ctx); err != nil {
		return nil, err
	}
	override := model.NormalizeProject(project)

	res := &model.ImportResult{}
	fail := func(i int, err error) {
		res.Failed++
		s.log.Error().Err(err).Int("unit", i+1).Str("format", string(format)).Msg("import: save failed")
	}

	units := make([]importUnit, len(parsed))
	var pending []int
	seen := make(map[string]bool)
	for i, u := range parsed {
		units[i].req = model.SaveRequest{Text: u.Text, Project: u.Project, Tags: u.Tags}
		if override != nil {
			units[i].req.Project = override
		}
		if strings.TrimSpace(u.Text) == "" {
			units[i].done = true
			fail(i, model.NewValidationError("text", "must not be empty"))
			continue
		}
		key := model.DedupKey(model.TextHash(u.Text), model.NormalizeProject(units[i].req.Project), s.opts.DedupPerProject)
		if seen[key] {
			continue
		}
		seen[key] = true
		dup, err := s.findDuplicate(ctx, key)
		switch {
		case err != nil:
			units[i].done = true
			fail(i, err)
		case dup != nil:
			units[i].done = true
			res.Duplicates++
		default:
			pending = append(pending, i)
		}
	}

	s.embedPending(ctx, units, pending, fail)

	for i := range units {
		if units[i].done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := s.save(ctx, units[i].req, units[i].vec)
		switch {
		case err != nil:
			fail(i, err)
		case out.Duplicate:
			res.Duplicates++
		default:
			res.Imported++
		}
	}
	s.log.Info().
		Int("imported", res.Imported).
		Int("duplicates", res.Duplicates).
		Int("failed", res.Failed).
		Msg("import complete")
	return res, nil
}

// embedPending fills in vectors for the pending units batch by batch. When a
// batch call fails its units keep a nil vector and are embedded one by one
// on save, so a single bad text fails only its own unit.
func (s *MemoryService) embedPending(ctx context.Context, units []importUnit, pending []int, fail func(int, error)) {
	for start := 0; start < len(pending); start += importBatchSize {
		end := min(start+importBatchSize, len(pending))
		batch := pending[start:end]
		texts := make([]string, len(batch))
		for j, i := range batch {
			texts[j] = units[i].req.Text
		}
		vecs, err := embeddings.EmbedBatch(ctx, s.emb, texts)
		if err != nil {
			s.log.Warn().Err(err).Int("texts", len(texts)).Msg("import: batch embedding failed; embedding one by one")
			continue
		}
		for j, i := range batch {
			if err := embeddings.CheckDimension(vecs[j], s.opts.Dimension); err != nil {
				units[i].done = true
				fail(i, err)
				continue
			}
			units[i].vec = vecs[j]
		}
	}
}
