package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardpulse/cardpulse/internal/archive"
	"github.com/cardpulse/cardpulse/internal/config"
	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/logger"
	"github.com/cardpulse/cardpulse/internal/marketplace"
	"github.com/cardpulse/cardpulse/internal/marketplace/blokpax"
	"github.com/cardpulse/cardpulse/internal/marketplace/ebay"
	"github.com/cardpulse/cardpulse/internal/marketplace/opensea"
	"github.com/cardpulse/cardpulse/internal/normalize"
	"github.com/cardpulse/cardpulse/internal/repository"
	"github.com/cardpulse/cardpulse/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "cardpulse-scrape",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	mode := flag.String("mode", "scheduled", "Scrape mode: scheduled or backfill")
	snapshots := flag.Bool("snapshots", false, "Run snapshot aggregation instead of scraping")
	replayKey := flag.String("replay", "", "Archive key of a raw payload batch to replay through the normalizer")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	itemRepo := repository.NewItemRepository(db)
	listingRepo := repository.NewListingRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	jobRepo := repository.NewJobRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if *snapshots {
		snapshotService := service.NewSnapshotService(
			itemRepo,
			listingRepo,
			snapshotRepo,
			appLogger,
			&service.SnapshotConfig{
				Currency:        cfg.Snapshot.Currency,
				Window:          cfg.Snapshot.Window,
				FloorSampleSize: cfg.Snapshot.FloorSampleSize,
				MinDeltaVolume:  cfg.Snapshot.MinDeltaVolume,
				DeltaClampPct:   cfg.Snapshot.DeltaClampPct,
			},
		)

		windowEnd := time.Now().UTC().Truncate(time.Hour)
		stats, err := snapshotService.Run(ctx, windowEnd)
		if err != nil {
			appLogger.WithError(err).Fatal("Snapshot run failed")
		}
		appLogger.WithFields(logger.Fields{
			"items":    stats.Items,
			"written":  stats.Written,
			"skipped":  stats.Skipped,
			"failures": stats.Failures,
		}).Info("Snapshot run completed")
		return
	}

	scrapeMode := domain.ScrapeMode(*mode)
	if scrapeMode != domain.ScrapeModeScheduled && scrapeMode != domain.ScrapeModeBackfill {
		appLogger.WithField("mode", *mode).Fatal("Unknown scrape mode")
	}
	if *replayKey != "" && !cfg.Archive.Enabled {
		appLogger.Fatal("Replay requires archive storage to be enabled")
	}

	// Initialize raw payload archive
	var rawArchive archive.RawArchive = archive.Noop{}
	if cfg.Archive.Enabled {
		s3Archive, err := archive.NewS3Archive(&archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize archive storage")
		}
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
		rawArchive = s3Archive
	}

	// Initialize marketplace adapters
	adapters := buildAdapters(cfg)
	if len(adapters) == 0 {
		appLogger.Fatal("No marketplace adapters enabled")
	}

	// Initialize services
	normalizer := normalize.New(cfg.Treatments.Aliases)
	gate := service.NewDedupGate(listingRepo, service.NewLogSink(appLogger), appLogger)
	registry := service.NewJobRegistry()

	scrapeService := service.NewScrapeService(
		itemRepo,
		jobRepo,
		gate,
		normalizer,
		adapters,
		rawArchive,
		registry,
		appLogger,
		&service.ScrapeConfig{
			Workers:       cfg.Scrape.Workers,
			Interval:      cfg.Scrape.Interval,
			ItemTimeout:   cfg.Scrape.ItemTimeout,
			BackfillLimit: cfg.Scrape.BackfillLimit,
		},
	)

	if *replayKey != "" {
		stats, err := scrapeService.Replay(ctx, *replayKey)
		if err != nil {
			appLogger.WithError(err).Fatal("Replay failed")
		}
		appLogger.WithFields(logger.Fields{
			logger.FieldMarketplace: stats.Marketplace,
			logger.FieldItemID:      stats.ItemID,
			"listings":              stats.Listings,
			"errors":                stats.Errors,
		}).Info("Replay completed")
		return
	}

	jobID, err := scrapeService.Trigger(ctx, scrapeMode)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to start scrape job")
	}

	// The run executes asynchronously; poll until the job reaches a terminal
	// state so the process exit code reflects the outcome.
	job := waitForJob(ctx, jobRepo, scrapeService, jobID, appLogger)

	appLogger.WithFields(logger.Fields{
		logger.FieldJobID:  job.ID,
		logger.FieldStatus: string(job.Status),
		"total":            job.TotalItems,
		"processed":        job.ProcessedItems,
		"errors":           job.ErrorCount,
	}).Info("Scrape run completed")

	if job.Status == domain.JobStatusFailed {
		appLogger.WithField("last_error", job.LastError).Fatal("Scrape job failed")
	}
}

// waitForJob polls the job record until it reaches a terminal state. A shutdown
// signal cancels the job and keeps polling so the final counts are reported.
func waitForJob(ctx context.Context, jobs *repository.JobRepository, scrape *service.ScrapeService, jobID string, log *logger.Logger) *domain.IngestionJob {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		select {
		case <-done:
			scrape.Cancel(jobID)
			done = nil
		case <-ticker.C:
		}

		job, err := jobs.GetByID(context.Background(), jobID)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				log.WithField(logger.FieldJobID, jobID).Fatal("Job record disappeared")
			}
			log.WithError(err).Warn("Failed to poll job status")
			continue
		}
		if job.Status.IsTerminal() {
			return job
		}
	}
}

// buildAdapters creates one adapter per enabled marketplace.
func buildAdapters(cfg *config.Config) []marketplace.Adapter {
	var adapters []marketplace.Adapter
	if cfg.Marketplaces.EBay.Enabled {
		adapters = append(adapters, ebay.NewAdapter(&ebay.Config{
			BaseURL: cfg.Marketplaces.EBay.BaseURL,
			APIKey:  cfg.Marketplaces.EBay.APIKey,
		}))
	}
	if cfg.Marketplaces.Blokpax.Enabled {
		adapters = append(adapters, blokpax.NewAdapter(&blokpax.Config{
			BaseURL: cfg.Marketplaces.Blokpax.BaseURL,
			APIKey:  cfg.Marketplaces.Blokpax.APIKey,
		}))
	}
	if cfg.Marketplaces.OpenSea.Enabled {
		adapters = append(adapters, opensea.NewAdapter(&opensea.Config{
			BaseURL: cfg.Marketplaces.OpenSea.BaseURL,
			APIKey:  cfg.Marketplaces.OpenSea.APIKey,
		}))
	}
	return adapters
}
