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

	"github.com/cardpulse/cardpulse/internal/api"
	"github.com/cardpulse/cardpulse/internal/api/middleware"
	"github.com/cardpulse/cardpulse/internal/archive"
	"github.com/cardpulse/cardpulse/internal/config"
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
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

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

	// Initialize raw payload archive
	ctx := context.Background()
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

	// Initialize event sinks
	var events service.EventSink = service.NewLogSink(appLogger)
	if cfg.Events.WebhookURL != "" {
		events = service.NewCompositeSink(
			service.NewLogSink(appLogger),
			service.NewWebhookSink(cfg.Events.WebhookURL, appLogger),
		)
	}

	// Initialize services
	normalizer := normalize.New(cfg.Treatments.Aliases)
	gate := service.NewDedupGate(listingRepo, events, appLogger)
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

	scheduler := service.NewScheduler(scrapeService, snapshotService, appLogger, &service.SchedulerConfig{
		ScrapeInterval:   cfg.Scrape.Interval,
		SnapshotInterval: cfg.Snapshot.Interval,
	})
	scheduler.Start()
	defer scheduler.Stop()

	// Setup router
	router := api.SetupRouter(&api.RouterDeps{
		Scrape:    scrapeService,
		Snapshot:  snapshotService,
		Scheduler: scheduler,
		Items:     itemRepo,
		Listings:  listingRepo,
		Snapshots: snapshotRepo,
		Jobs:      jobRepo,
		Logger:    appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
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
