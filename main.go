package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pfsync/api"
	"pfsync/cache"
	"pfsync/config"
	"pfsync/feed"
	"pfsync/httputil"
	"pfsync/logging"
	"pfsync/scheduler"
	"pfsync/services"
	"pfsync/storage"
)

var (
	syncNow    = flag.Bool("sync", false, "Run one sync and exit")
	cleanupNow = flag.Bool("cleanup", false, "Run one cleanup and exit")
	dryRun     = flag.Bool("dry-run", false, "With -cleanup: report the diff without deleting")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting pfsync...")

	if cfg.Feed.URL == "" {
		log.Fatal("FEED_URL is required")
	}

	ctx := context.Background()

	store, err := storage.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer store.Close(ctx)
	log.Printf("Connected to MongoDB database %q", cfg.Mongo.Database)

	runlog, err := storage.NewRunLog(cfg.RunLogPath)
	if err != nil {
		log.Printf("Warning: run history disabled: %v", err)
	} else {
		defer runlog.Close()
		log.Printf("Run history database: %s", cfg.RunLogPath)
	}

	clients := httputil.NewClients(&cfg.Feed)
	fetcher := feed.NewFetcher(clients.Feed, cfg.Feed.URL)

	agentCache := cache.New(cfg.Cache.Type, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	linker := services.NewAgentLinker(store, agentCache, cfg.LinkConcurrency, cfg.Cache.TTL)

	syncService := services.NewSyncService(fetcher, store, linker)
	cleanupService := services.NewCleanupService(fetcher, store)
	if runlog != nil {
		syncService.SetRunLog(runlog)
		cleanupService.SetRunLog(runlog)
	}

	if *syncNow {
		report, err := syncService.Run(ctx)
		if err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		log.Printf("Sync complete: %d processed, %d created, %d updated, %d patched, %d skipped, %d failed",
			report.Processed, report.Created, report.Updated, report.PatchedPublishDate, report.Skipped, report.Failed)
		return
	}

	if *cleanupNow {
		opts := services.CleanupOptions{
			DryRun:          *dryRun,
			DeleteChunkSize: cfg.Cleanup.DeleteChunkSize,
			AgentChunkSize:  cfg.Cleanup.AgentChunkSize,
		}
		report, err := cleanupService.Run(ctx, opts)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		if report.DryRun {
			log.Printf("Cleanup dry run: %d of %d stored listings would be deleted",
				report.Counts.ToDelete, report.Counts.DBScanned)
		} else {
			log.Printf("Cleanup complete: deleted %d listings, updated %d agents",
				report.Counts.DeletedListings, report.Counts.AgentsUpdated)
		}
		return
	}

	// Daemon mode: HTTP API plus scheduled syncs, one run at a time.
	guard := &services.RunGuard{}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(&cfg.Scheduler, syncService, guard)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	var runLister api.RunLister
	if runlog != nil {
		runLister = runlog
	}
	server := api.NewServer(syncService, cleanupService, guard, store, runLister)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: HTTP shutdown: %v", err)
	}
	log.Println("Goodbye!")
}
