// Package sync drives the reconciliation run: draining pending state
// rows into directory creates/updates, provisioning identity
// accounts, and detecting lapsed members between weekly batches.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chapterhq/roster-sync/internal/config"
	"github.com/chapterhq/roster-sync/internal/directory"
	"github.com/chapterhq/roster-sync/internal/mapper"
	"github.com/chapterhq/roster-sync/internal/roster"
	"github.com/chapterhq/roster-sync/internal/state"
)

// DirectoryAPI is the subset of the directory client the processor
// drives.
type DirectoryAPI interface {
	FindByEmail(ctx context.Context, email string) ([]directory.Person, error)
	GetByID(ctx context.Context, id string) (directory.Person, error)
	Create(ctx context.Context, person mapper.CanonicalPerson) (directory.Person, error)
	Update(ctx context.Context, person mapper.CanonicalPerson) (directory.Person, error)
	DeactivateByEmail(ctx context.Context, email string) ([]directory.Person, error)
	Namespace() string
}

// IdentityProvisioner mirrors directory writes into the identity
// system.
type IdentityProvisioner interface {
	Provision(ctx context.Context, email, givenName, familyName string) error
}

// StateStore is the persisted per-record status store.
type StateStore interface {
	Put(ctx context.Context, item state.Item) error
	Query(ctx context.Context, batch string, status state.Status, limit int) ([]state.Item, error)
	QueryAll(ctx context.Context, batch string) ([]state.Item, error)
	Count(ctx context.Context, batch string, status state.Status) (int, error)
	CountAll(ctx context.Context, batch string) (int, error)
}

// IDCache is the optional email → directory ID lookup cache.
type IDCache interface {
	Get(ctx context.Context, email string) string
	Set(ctx context.Context, email, directoryID string)
	Invalidate(ctx context.Context, email string)
}

// errBadPayload marks a stored record that cannot be deserialized.
var errBadPayload = errors.New("undecodable record payload")

// Result reports one processor invocation. HasMore signals that
// UNPROCESSED rows remain and the caller should invoke again.
type Result struct {
	NewMembers     int  `json:"new_members"`
	UpdatedMembers int  `json:"updated_members"`
	HasMore        bool `json:"hasMore"`
}

// Processor reconciles pending state rows against the directory and
// identity systems. Work is deliberately serial: one in-flight write
// per record keeps the retry and idempotency reasoning simple.
type Processor struct {
	store       StateStore
	directory   DirectoryAPI
	provisioner IdentityProvisioner
	classifier  *roster.Classifier
	cache       IDCache // nil disables caching

	batchSize int
	dryRun    bool
	now       func() time.Time
}

func NewProcessor(store StateStore, dir DirectoryAPI, provisioner IdentityProvisioner, cfg config.SyncConfig) *Processor {
	return &Processor{
		store:       store,
		directory:   dir,
		provisioner: provisioner,
		classifier:  roster.NewClassifier(cfg.GraceDays),
		batchSize:   cfg.BatchSize,
		dryRun:      cfg.DryRun,
		now:         time.Now,
	}
}

// SetCache attaches a directory-ID lookup cache.
func (p *Processor) SetCache(c IDCache) { p.cache = c }

// ProcessBatch claims and processes up to the batch-size limit of
// UNPROCESSED rows in the batch. A failing record is logged and left
// at PROCESSING for inspection; the rest of the batch continues.
func (p *Processor) ProcessBatch(ctx context.Context, batch string) (Result, error) {
	var res Result

	pending, err := p.store.Query(ctx, batch, state.Unprocessed, p.batchSize)
	if err != nil {
		return res, fmt.Errorf("querying unprocessed records: %w", err)
	}

	log.Printf("processor: batch %s, %d pending records (dry_run=%v)", batch, len(pending), p.dryRun)

	for _, item := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		item.Status = state.Processing
		if err := p.store.Put(ctx, item); err != nil {
			return res, fmt.Errorf("claiming record %s: %w", item.Email, err)
		}

		if err := p.processRecord(ctx, &item, &res); err != nil {
			if errors.Is(err, errBadPayload) {
				// A payload that cannot be parsed will never succeed
				// on requeue.
				log.Printf("processor: record %s failed permanently: %v", item.Email, err)
				item.Status = state.Failed
				if putErr := p.store.Put(ctx, item); putErr != nil {
					return res, fmt.Errorf("marking record %s failed: %w", item.Email, putErr)
				}
				continue
			}
			// Record stays PROCESSING for later inspection.
			log.Printf("processor: record %s failed: %v", item.Email, err)
			continue
		}

		item.Status = state.Processed
		if err := p.store.Put(ctx, item); err != nil {
			return res, fmt.Errorf("finalizing record %s: %w", item.Email, err)
		}
	}

	remainder, err := p.store.Count(ctx, batch, state.Unprocessed)
	if err != nil {
		return res, fmt.Errorf("counting remaining records: %w", err)
	}
	res.HasMore = remainder != 0

	log.Printf("processor: batch %s done, new=%d updated=%d hasMore=%v",
		batch, res.NewMembers, res.UpdatedMembers, res.HasMore)
	return res, nil
}

// Drain invokes ProcessBatch until the batch has no UNPROCESSED rows
// left, accumulating counters across invocations.
func (p *Processor) Drain(ctx context.Context, batch string) (Result, error) {
	var total Result
	for {
		res, err := p.ProcessBatch(ctx, batch)
		total.NewMembers += res.NewMembers
		total.UpdatedMembers += res.UpdatedMembers
		total.HasMore = res.HasMore
		if err != nil {
			return total, err
		}
		if !res.HasMore {
			return total, nil
		}
	}
}

func (p *Processor) processRecord(ctx context.Context, item *state.Item, res *Result) error {
	rec, err := roster.UnmarshalRaw(item.Raw)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}

	fm := mapper.NewFieldMapper(rec)
	if !p.classifier.IsMember(rec, p.now()) {
		fm.IsMember = "False"
	}

	people, err := p.lookup(ctx, item.Email)
	if err != nil {
		return err
	}

	if len(people) == 0 {
		person := fm.Person()
		log.Printf("processor: creating new member %s", item.Email)
		if !p.dryRun {
			created, err := p.directory.Create(ctx, person)
			if err != nil {
				return err
			}
			p.cacheSet(ctx, item.Email, created.ID(p.directory.Namespace()))
		}
		res.NewMembers++
	} else {
		if len(people) > 1 {
			// Directories should not hold duplicate people per email,
			// but when they do every match is updated independently.
			log.Printf("processor: %d directory matches for %s, updating all", len(people), item.Email)
		}
		for _, existing := range people {
			fm.DirectoryID = existing.ID(p.directory.Namespace())
			fm.Overrides = existing.Overrides()
			updated := fm.Person()

			log.Printf("processor: updating member %s (%s)", item.Email, fm.DirectoryID)
			if !p.dryRun {
				if _, err := p.directory.Update(ctx, updated); err != nil {
					return err
				}
				p.cacheSet(ctx, item.Email, fm.DirectoryID)
			}
			res.UpdatedMembers++
		}
	}

	if !p.dryRun {
		err := p.provisioner.Provision(ctx, item.Email,
			rec.Get("first_name", ""), rec.Get("last_name", ""))
		if err != nil {
			return err
		}
	}

	return nil
}

// lookup finds directory people for an email, trying the ID cache
// before falling back to a search. A stale cached ID is invalidated
// and the search rerun.
func (p *Processor) lookup(ctx context.Context, email string) ([]directory.Person, error) {
	if p.cache != nil {
		if id := p.cache.Get(ctx, email); id != "" {
			person, err := p.directory.GetByID(ctx, id)
			if err == nil {
				return []directory.Person{person}, nil
			}
			log.Printf("processor: cached directory ID %s for %s is stale: %v", id, email, err)
			p.cache.Invalidate(ctx, email)
		}
	}
	return p.directory.FindByEmail(ctx, email)
}

func (p *Processor) cacheSet(ctx context.Context, email, id string) {
	if p.cache != nil && id != "" {
		p.cache.Set(ctx, email, id)
	}
}

// Requeue resets PROCESSING rows back to UNPROCESSED, the operator
// remedy for records stranded by a crash mid-run.
func (p *Processor) Requeue(ctx context.Context, batch string) (int, error) {
	stuck, err := p.store.Query(ctx, batch, state.Processing, 0)
	if err != nil {
		return 0, fmt.Errorf("querying stuck records: %w", err)
	}

	for i, item := range stuck {
		item.Status = state.Unprocessed
		if err := p.store.Put(ctx, item); err != nil {
			return i, fmt.Errorf("requeueing record %s: %w", item.Email, err)
		}
	}
	return len(stuck), nil
}
