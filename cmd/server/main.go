package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chapterhq/roster-sync/internal/api"
	"github.com/chapterhq/roster-sync/internal/cache"
	"github.com/chapterhq/roster-sync/internal/config"
	"github.com/chapterhq/roster-sync/internal/directory"
	"github.com/chapterhq/roster-sync/internal/identity"
	"github.com/chapterhq/roster-sync/internal/ingest"
	"github.com/chapterhq/roster-sync/internal/secrets"
	"github.com/chapterhq/roster-sync/internal/state"
	syncpkg "github.com/chapterhq/roster-sync/internal/sync"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadFromEnv("config/config.yaml")
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

	var ingester api.Ingester
	if cfg.Ingest.S3Bucket != "" {
		ing, err := ingest.NewIngester(ctx, store, cfg.Ingest)
		if err != nil {
			log.Fatalf("Failed to initialize ingester: %v", err)
		}
		ingester = ing
	}

	handlers := api.NewHandlers(processor, store, ingester)
	router := api.SetupRoutes(handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // batch processing runs inline
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("ops server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down ops server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
