package engine

import (
	"context"
	"log"
	"sort"
)

// Drift reports divergence between the relational rows and their vector
// mirrors. Missing entries are relational rows with no embedding; orphans
// are embeddings whose relational row is gone.
type Drift struct {
	MissingMemoryVectors  []string
	OrphanMemoryVectors   []string
	MissingSummaryVectors []string
	OrphanSummaryVectors  []string
}

// Clean reports whether the two halves are fully in sync.
func (d *Drift) Clean() bool {
	return len(d.MissingMemoryVectors) == 0 &&
		len(d.OrphanMemoryVectors) == 0 &&
		len(d.MissingSummaryVectors) == 0 &&
		len(d.OrphanSummaryVectors) == 0
}

// Reconcile compares relational ids against vector ids for memories and
// summaries. With repair it re-embeds missing mirrors and deletes orphaned
// embeddings; per-id repair failures are logged and skipped so one bad row
// cannot block the rest. The returned drift describes the state found
// before any repairs ran.
//
// Unlike the memory operations this returns a Go error: it backs the
// restore utility, not the tool surface.
func (e *Engine) Reconcile(ctx context.Context, repair bool) (*Drift, error) {
	relMemories, err := e.relational.ListMemoryIDs(ctx)
	if err != nil {
		return nil, err
	}
	vecMemories, err := e.vectors.ListMemoryIDs(ctx)
	if err != nil {
		return nil, err
	}
	relSummaries, err := e.relational.ListSummaryIDs(ctx)
	if err != nil {
		return nil, err
	}
	vecSummaries, err := e.vectors.ListSummaryIDs(ctx)
	if err != nil {
		return nil, err
	}

	drift := &Drift{
		MissingMemoryVectors:  missingFrom(relMemories, vecMemories),
		OrphanMemoryVectors:   missingFrom(vecMemories, relMemories),
		MissingSummaryVectors: missingFrom(relSummaries, vecSummaries),
		OrphanSummaryVectors:  missingFrom(vecSummaries, relSummaries),
	}
	if !repair || drift.Clean() {
		return drift, nil
	}

	for _, id := range drift.MissingMemoryVectors {
		item, err := e.relational.GetMemory(ctx, id)
		if err != nil {
			log.Printf("engine: reconcile: cannot load memory %s: %v", id, err)
			continue
		}
		if err := e.vectors.UpsertMemory(ctx, item); err != nil {
			log.Printf("engine: reconcile: cannot re-embed memory %s: %v", id, err)
		}
	}

	for _, id := range drift.MissingSummaryVectors {
		s, err := e.relational.GetSummary(ctx, id)
		if err != nil {
			log.Printf("engine: reconcile: cannot load summary %s: %v", id, err)
			continue
		}
		// The summary embedding carries its owning topic, which lives on
		// the memory row.
		item, err := e.relational.GetMemory(ctx, s.MemoryID)
		if err != nil {
			log.Printf("engine: reconcile: cannot load memory %s for summary %s: %v", s.MemoryID, id, err)
			continue
		}
		if err := e.vectors.UpsertSummary(ctx, s, item.Topic); err != nil {
			log.Printf("engine: reconcile: cannot re-embed summary %s: %v", id, err)
		}
	}

	for _, id := range drift.OrphanMemoryVectors {
		if err := e.vectors.DeleteMemory(ctx, id); err != nil {
			log.Printf("engine: reconcile: cannot delete orphan memory embedding %s: %v", id, err)
		}
	}
	for _, id := range drift.OrphanSummaryVectors {
		if err := e.vectors.DeleteSummary(ctx, id); err != nil {
			log.Printf("engine: reconcile: cannot delete orphan summary embedding %s: %v", id, err)
		}
	}

	return drift, nil
}

// missingFrom returns the ids present in want but absent from have, sorted.
func missingFrom(want, have []string) []string {
	present := make(map[string]struct{}, len(have))
	for _, id := range have {
		present[id] = struct{}{}
	}
	var missing []string
	for _, id := range want {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}
