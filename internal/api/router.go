package api

import (
	"github.com/cardpulse/cardpulse/internal/api/handler"
	"github.com/cardpulse/cardpulse/internal/api/middleware"
	"github.com/cardpulse/cardpulse/internal/logger"
	"github.com/cardpulse/cardpulse/internal/repository"
	"github.com/cardpulse/cardpulse/internal/service"
	"github.com/gin-gonic/gin"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Scrape    *service.ScrapeService
	Snapshot  *service.SnapshotService
	Scheduler *service.Scheduler
	Items     *repository.ItemRepository
	Listings  *repository.ListingRepository
	Snapshots *repository.SnapshotRepository
	Jobs      *repository.JobRepository
	Logger    *logger.Logger
	CORS      middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *RouterDeps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	marketHandler := handler.NewMarketHandler(deps.Items, deps.Listings, deps.Snapshots)
	adminHandler := handler.NewAdminHandler(deps.Scrape, deps.Snapshot, deps.Scheduler, deps.Jobs, deps.Logger)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Market reads
		v1.GET("/items", marketHandler.ListItems)
		v1.GET("/items/:id", marketHandler.GetItem)
		v1.GET("/items/:id/listings", marketHandler.ListListings)
		v1.GET("/items/:id/snapshots", marketHandler.ListSnapshots)
		v1.GET("/items/:id/price", marketHandler.LatestSnapshot)

		// Admin operations
		admin := v1.Group("/admin")
		{
			admin.POST("/scrape", adminHandler.TriggerScrape)
			admin.GET("/jobs", adminHandler.ListJobs)
			admin.GET("/jobs/:id", adminHandler.GetJob)
			admin.POST("/jobs/:id/cancel", adminHandler.CancelJob)
			admin.POST("/snapshots/run", adminHandler.RunSnapshots)
			admin.GET("/scheduler", adminHandler.SchedulerStatus)
		}
	}

	return r
}
