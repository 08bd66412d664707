// Command lapsed diffs this week's processed batch against last
// week's and deactivates members who dropped off the roster. Meant to
// run from cron after the processor has drained the current batch.
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
		current    = flag.String("current", "", "current batch (default: this week)")
		previous   = flag.String("previous", "", "previous batch (default: last week)")
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
	now := time.Now()
	if *current == "" {
		*current = state.WeekBatch(now)
	}
	if *previous == "" {
		*previous = state.PreviousWeekBatch(now)
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
		if err := idCache.Ping(ctx); err == nil {
			processor.SetCache(idCache)
			defer idCache.Close()
		}
	}

	started := time.Now()
	res, runErr := processor.DetectLapsed(ctx, *current, *previous)
	finished := time.Now()

	run := report.Run{
		Batch:          *current,
		Kind:           report.KindLapsed,
		RemovedMembers: res.Removed,
		DryRun:         cfg.Sync.DryRun,
		StartedAt:      started,
		FinishedAt:     finished,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	recordRun(ctx, cfg, run)

	if runErr != nil {
		log.Fatalf("Lapsed detection %s vs %s failed: %v", *current, *previous, runErr)
	}
	log.Printf("Lapsed detection complete: removed=%d current=%d previous=%d",
		res.Removed, res.CurrentCount, res.PreviousCount)
}

// recordRun writes run history and sends the summary email, both best
// effort.
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
		err = notifier.Send(ctx, notify.Summary{
			Batch:          run.Batch,
			Kind:           run.Kind,
			RemovedMembers: run.RemovedMembers,
			DryRun:         run.DryRun,
			Error:          run.Error,
			Duration:       run.FinishedAt.Sub(run.StartedAt),
		})
		if err != nil {
			log.Printf("WARNING: sending run summary: %v", err)
		}
	}
}
