// Command processor drains this week's batch: every pending roster
// record is reconciled against the directory and identity systems.
// Meant to run from cron shortly after the weekly export arrives.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/chapterhq/roster-sync/internal/cache"
	"github.com/chapterhq/roster-sync/internal/config"
	"github.com/chapterhq/roster-sync/internal/directory"
	"github.com/chapterhq/roster-sync/internal/identity"
	"github.com/chapterhq/roster-sync/internal/notify"
	"github.com/chapterhq/roster-sync/internal/report"
	"github.com/chapterhq/roster-sync/internal/secrets"
	"github.com/chapterhq/roster-sync/internal/state"
	syncpkg "github.com/chapterhq/roster-sync/internal/sync"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "path to config file")
		batch      = flag.String("batch", "", "batch to process (default: current week)")
		dryRun     = flag.Bool("dry-run", false, "log actions without writing")
	)
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dryRun {
		cfg.Sync.DryRun = true
	}
	if *batch == "" {
		*batch = state.WeekBatch(time.Now())
	}

	if err := secrets.Resolve(ctx, cfg); err != nil {
		log.Fatalf("Failed to resolve secrets: %v", err)
	}

	store, err := state.NewStore(ctx, cfg.State)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
	}

	dirClient := directory.NewClient(cfg.Directory)
	idClient := identity.NewClient(ctx, cfg.Identity)
	provisioner := identity.NewProvisioner(idClient, cfg.Identity)

	processor := syncpkg.NewProcessor(store, dirClient, provisioner, cfg.Sync)
	if cfg.Cache.Enabled {
		idCache := cache.New(cfg.Cache)
		if err := idCache.Ping(ctx); err != nil {
			log.Printf("WARNING: redis unreachable, lookup cache disabled: %v", err)
		} else {
			processor.SetCache(idCache)
			defer idCache.Close()
		}
	}

	started := time.Now()
	res, runErr := processor.Drain(ctx, *batch)
	finished := time.Now()

	run := report.Run{
		Batch:          *batch,
		Kind:           report.KindProcess,
		NewMembers:     res.NewMembers,
		UpdatedMembers: res.UpdatedMembers,
		DryRun:         cfg.Sync.DryRun,
		StartedAt:      started,
		FinishedAt:     finished,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	recordRun(ctx, cfg, run)

	if runErr != nil {
		log.Fatalf("Batch %s failed: %v", *batch, runErr)
	}
	log.Printf("Batch %s complete: new=%d updated=%d", *batch, res.NewMembers, res.UpdatedMembers)
}

// recordRun writes run history and sends the summary email. Both are
// best effort: a dead reporting backend must not fail the sync.
func recordRun(ctx context.Context, cfg *config.Config, run report.Run) {
	if cfg.Report.Enabled {
		rec, err := report.Open(ctx, cfg.Report.DatabaseURL)
		if err != nil {
			log.Printf("WARNING: run history unavailable: %v", err)
		} else {
			defer rec.Close()
			if err := rec.EnsureSchema(ctx); err != nil {
				log.Printf("WARNING: ensuring run history schema: %v", err)
			} else if _, err := rec.Record(ctx, run); err != nil {
				log.Printf("WARNING: recording run: %v", err)
			}
		}
	}

	if cfg.Notify.Enabled {
		notifier, err := notify.NewNotifier(ctx, cfg.Notify)
		if err != nil {
			log.Printf("WARNING: notifier unavailable: %v", err)
			return
		}
		summary := notify.Summary{
			Batch:          run.Batch,
			Kind:           run.Kind,
			NewMembers:     run.NewMembers,
			UpdatedMembers: run.UpdatedMembers,
			RemovedMembers: run.RemovedMembers,
			DryRun:         run.DryRun,
			Error:          run.Error,
			Duration:       run.FinishedAt.Sub(run.StartedAt),
		}
		if err := notifier.Send(ctx, summary); err != nil {
			log.Printf("WARNING: sending run summary: %v", err)
		}
	}
}
