package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/MKhiriev/go-confluence-sync/internal/adapter"
	"github.com/MKhiriev/go-confluence-sync/internal/config"
	"github.com/MKhiriev/go-confluence-sync/internal/logger"
	"github.com/MKhiriev/go-confluence-sync/internal/service"
	"github.com/MKhiriev/go-confluence-sync/internal/store"
	"github.com/MKhiriev/go-confluence-sync/internal/watcher"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

const watchDebounce = 2 * time.Second

func main() {
	printBuildInfo()

	log := logger.NewLogger("confluence-sync")
	cfg, err := config.GetStructuredConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	mode := flag.Arg(0)
	if mode == "" {
		mode = "sync"
	}
	if mode == "watch" {
		log = logger.NewFileLogger("confluence-sync")
	}

	remote := adapter.NewConfluenceStore(adapter.ConfluenceConfig{
		BaseURL:  cfg.Confluence.URL,
		Username: cfg.Confluence.Username,
		APIToken: cfg.Confluence.APIToken,
		SpaceKey: cfg.Confluence.SpaceKey,
		Timeout:  cfg.Confluence.RequestTimeout,
	}, log)

	content, err := store.NewContentStore(cfg.Local.ContentDir, cfg.Local.AttachmentsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("create content store")
	}

	state, err := store.NewStateStore(cfg.Local.CacheDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open sync state")
	}

	syncer := service.NewSyncer(
		content, state, remote,
		service.NewChangeDetector(), service.NewConflictResolver(),
		log, cfg.Sync.Workers, cfg.Sync.ConflictRetries,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "sync":
		runOnce(ctx, syncer, service.DirectionBoth, log)
	case "push":
		runOnce(ctx, syncer, service.DirectionPush, log)
	case "pull":
		runOnce(ctx, syncer, service.DirectionPull, log)
	case "watch":
		runWatch(ctx, syncer, cfg, log)
	case "ack":
		runAck(syncer, flag.Arg(1), log)
	case "conflicts":
		printConflicts(syncer)
	default:
		log.Fatal().Str("mode", mode).Msg("unknown mode, expected sync|push|pull|watch|ack|conflicts")
	}
}

func runOnce(ctx context.Context, syncer service.Syncer, dir service.Direction, log *logger.Logger) {
	report, err := syncer.RunPass(ctx, dir)
	if err != nil {
		log.Fatal().Err(err).Msg("sync pass failed")
	}

	for _, res := range report.Results {
		fmt.Printf("%-40s %-16s %s\n", res.LocalID, res.Classification, res.Action)
	}

	if failed := report.Failed(); len(failed) > 0 {
		for _, res := range failed {
			log.Error().Err(res.Err).Str("local_id", res.LocalID).Msg("item failed")
		}
		os.Exit(1)
	}
}

func runWatch(ctx context.Context, syncer service.Syncer, cfg *config.StructuredConfig, log *logger.Logger) {
	w, err := watcher.New(cfg.Local.ContentDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("start content watcher")
	}

	job := service.NewSyncJob(syncer, w.Events(), log)
	job.Start(ctx, cfg.Sync.Interval, watchDebounce)
	log.Info().
		Str("content_dir", cfg.Local.ContentDir).
		Dur("interval", cfg.Sync.Interval).
		Msg("watch mode started")

	<-ctx.Done()
	job.Stop()
	if err = w.Stop(); err != nil {
		log.Error().Err(err).Msg("stop content watcher")
	}
	log.Info().Msg("watch mode stopped")
}

func runAck(syncer service.Syncer, localID string, log *logger.Logger) {
	if localID == "" {
		log.Fatal().Msg("usage: ack <local-id>")
	}
	if err := syncer.Acknowledge(localID); err != nil {
		log.Fatal().Err(err).Msg("acknowledge conflict")
	}
	fmt.Printf("conflict on %q acknowledged; it will be resolved on the next pass\n", localID)
}

func printConflicts(syncer service.Syncer) {
	held := syncer.HeldConflicts()
	if len(held) == 0 {
		fmt.Println("no held conflicts")
		return
	}

	ids := make([]string, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("%-40s %s\n", id, held[id])
	}
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
