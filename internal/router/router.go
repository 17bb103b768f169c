// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/lexflow/intake-backend/internal/config"
	"github.com/lexflow/intake-backend/internal/handlers"
	"github.com/lexflow/intake-backend/internal/jobs"
	"github.com/lexflow/intake-backend/internal/middleware"
	"github.com/lexflow/intake-backend/internal/services"
	"github.com/lexflow/intake-backend/internal/taxonomy"
)

// Services bundles everything the router and the worker pool share.
type Services struct {
	Taxonomy      *taxonomy.Store
	TaxonomyCache *taxonomy.TreeCache
	Queue         *jobs.Repo
	Intake        *services.IntakeService
	Storage       *services.StorageService
	Templates     *services.TemplateService
	Notifications *services.NotificationService
	Documents     *services.DocumentService
}

// BuildServices wires the service graph.
func BuildServices(db *gorm.DB, cfg *config.Config) (*Services, error) {
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	taxonomyStore := taxonomy.NewStore(db)
	taxonomyCache := taxonomy.NewTreeCache(taxonomyStore, redisClient,
		time.Duration(cfg.Pipeline.TaxonomyCacheTTL)*time.Second)

	queue := jobs.NewRepo(db)
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}
	templateService := services.NewTemplateService(cfg)
	notificationService := services.NewNotificationService(db, cfg)
	intakeService := services.NewIntakeService(db, taxonomyStore, queue)
	documentService := services.NewDocumentService(db, templateService, storageService, notificationService)

	return &Services{
		Taxonomy:      taxonomyStore,
		TaxonomyCache: taxonomyCache,
		Queue:         queue,
		Intake:        intakeService,
		Storage:       storageService,
		Templates:     templateService,
		Notifications: notificationService,
		Documents:     documentService,
	}, nil
}

func Initialize(svcs *Services, cfg *config.Config) *gin.Engine {
	// Initialize handlers
	intakeHandler := handlers.NewIntakeHandler(svcs.Intake, svcs.Storage)
	taxonomyHandler := handlers.NewTaxonomyHandler(svcs.Taxonomy, svcs.TaxonomyCache)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		cases := v1.Group("/cases")
		{
			cases.POST("", middleware.IntakeRateLimit(), intakeHandler.SubmitCase)
			cases.GET("", middleware.OperatorRateLimit(), intakeHandler.ListCases)
			cases.GET("/:id/status", middleware.OperatorRateLimit(), intakeHandler.GetCaseStatus)
			cases.POST("/:id/retry", middleware.OperatorRateLimit(), intakeHandler.RetryCase)
			cases.POST("/:id/cancel", middleware.OperatorRateLimit(), intakeHandler.CancelGeneration)
		}

		tax := v1.Group("/taxonomy")
		{
			tax.GET("", taxonomyHandler.GetTaxonomy)
			tax.POST("/categories", taxonomyHandler.PublishCategory)
			tax.POST("/options", taxonomyHandler.PublishOption)
			tax.DELETE("/categories/:code", taxonomyHandler.DeleteCategory)
			tax.DELETE("/options/:code", taxonomyHandler.DeleteOption)
		}
	}

	return r
}
