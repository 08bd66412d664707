package sync

import (
	"context"
	"fmt"
	"log"

	"github.com/chapterhq/roster-sync/internal/roster"
	"github.com/chapterhq/roster-sync/internal/state"
)

// LapsedResult reports one lapsed-member detection pass.
type LapsedResult struct {
	Removed       int `json:"removed"`
	CurrentCount  int `json:"current_count"`
	PreviousCount int `json:"previous_count"`
}

// DetectLapsed deactivates directory people whose email appears in
// the previous batch's processed set but not in the current one.
// Either set being empty is a hard error: an empty batch means an
// upload never arrived, and diffing against it would deactivate the
// entire membership.
func (p *Processor) DetectLapsed(ctx context.Context, currentBatch, previousBatch string) (LapsedResult, error) {
	var res LapsedResult

	current, err := p.store.Query(ctx, currentBatch, state.Processed, 0)
	if err != nil {
		return res, fmt.Errorf("querying current batch %s: %w", currentBatch, err)
	}
	previous, err := p.store.Query(ctx, previousBatch, state.Processed, 0)
	if err != nil {
		return res, fmt.Errorf("querying previous batch %s: %w", previousBatch, err)
	}

	res.CurrentCount = len(current)
	res.PreviousCount = len(previous)

	if res.CurrentCount == 0 {
		return res, fmt.Errorf("current batch %s has no processed records, refusing to deactivate", currentBatch)
	}
	if res.PreviousCount == 0 {
		return res, fmt.Errorf("previous batch %s has no processed records, refusing to deactivate", previousBatch)
	}

	diff := roster.Diff(batchRecords(previous), batchRecords(current))

	log.Printf("lapsed: current=%d previous=%d candidates=%d (dry_run=%v)",
		res.CurrentCount, res.PreviousCount, len(diff.Lapsed), p.dryRun)

	for _, rec := range diff.Lapsed {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		email := rec.Email()
		log.Printf("lapsed: deactivating %s", email)
		if !p.dryRun {
			if _, err := p.directory.DeactivateByEmail(ctx, email); err != nil {
				// A single lost deactivation self-corrects next week.
				log.Printf("lapsed: deactivating %s failed: %v", email, err)
				continue
			}
			p.cacheInvalidate(ctx, email)
		}
		res.Removed++
	}

	return res, nil
}

func (p *Processor) cacheInvalidate(ctx context.Context, email string) {
	if p.cache != nil {
		p.cache.Invalidate(ctx, email)
	}
}

// batchRecords projects state rows to email-only roster records so
// the batch differ can key them.
func batchRecords(items []state.Item) []roster.RawRecord {
	recs := make([]roster.RawRecord, 0, len(items))
	for _, item := range items {
		recs = append(recs, roster.RawRecord{roster.ColumnEmail: item.Email})
	}
	return recs
}
