// Command ingester loads a stored membership-export email from S3
// into the state table, seeding this week's batch for the processor.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/chapterhq/roster-sync/internal/config"
	"github.com/chapterhq/roster-sync/internal/ingest"
	"github.com/chapterhq/roster-sync/internal/secrets"
	"github.com/chapterhq/roster-sync/internal/state"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "path to config file")
		objectKey  = flag.String("key", "", "S3 object key of the stored export email")
	)
	flag.Parse()

	if *objectKey == "" {
		log.Fatal("-key is required")
	}

	ctx := context.Background()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := secrets.Resolve(ctx, cfg); err != nil {
		log.Fatalf("Failed to resolve secrets: %v", err)
	}

	store, err := state.NewStore(ctx, cfg.State)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
	}

	ingester, err := ingest.NewIngester(ctx, store, cfg.Ingest)
	if err != nil {
		log.Fatalf("Failed to initialize ingester: %v", err)
	}

	res, err := ingester.IngestObject(ctx, *objectKey)
	if err != nil {
		log.Fatalf("Ingest failed: %v", err)
	}
	log.Printf("Ingest complete: batch=%s loaded=%d skipped=%d", res.Batch, res.Loaded, res.Skipped)
}
