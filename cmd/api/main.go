package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"creditflow/internal/config"
	"creditflow/internal/database"
	_ "creditflow/internal/docs" // Import swagger docs
	"creditflow/internal/events"
	"creditflow/internal/handlers"
	"creditflow/internal/logger"
	"creditflow/internal/middleware"
	"creditflow/internal/services"
	"creditflow/internal/validator"
)

// @title           creditflow API
// @version         1.0
// @description     Credit triage: allocate incoming money against returns, reimbursements, spread items, goals and income buckets.

// @host      localhost:8080
// @BasePath  /api

// @securityDefinitions.apikey SessionAuth
// @in header
// @name Authorization
// @description Session token issued by the auth proxy, sent as the session cookie or a Bearer header.

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbConfig, err := database.NewConfig(appConfig)
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("failed to close database: %v", err)
		}
	}()

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	publisher, err := newPublisher(appConfig)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	validator.Register()

	// Initialize services
	db := dbManager.DB()
	auditService := services.NewAuditService(db)
	categoryService := services.NewCategoryService(db)
	goalService := services.NewGoalService(db)
	spreadService := services.NewSpreadService(db)
	ledgerService := services.NewLedgerService(db, publisher)
	allocationService := services.NewAllocationService(db, ledgerService, publisher)
	matchingService := services.NewMatchingService(db,
		services.WithLimits(appConfig.SearchDefaultLimit, appConfig.SearchMaxLimit))
	triageService := services.NewTriageService(ledgerService, allocationService, goalService, spreadService, categoryService)

	// Initialize handlers
	creditHandler := handlers.NewCreditHandler(triageService, allocationService, ledgerService, auditService)
	transactionHandler := handlers.NewTransactionHandler(ledgerService, matchingService, auditService)
	goalHandler := handlers.NewGoalHandler(goalService, auditService)
	spreadHandler := handlers.NewSpreadHandler(spreadService, auditService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	pipelineHandler := handlers.NewPipelineHandler(ledgerService, auditService)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RequestTimeout(appConfig.RequestTimeout))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Bank-sync pipeline, authenticated by API key
	pipeline := api.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(appConfig.PipelineAPIKeyHash))
	pipeline.POST("/transactions", pipelineHandler.ImportTransactions)

	// Session routes
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware())

	credits := protected.Group("/credits")
	credits.GET("/unallocated", creditHandler.GetUnallocated)
	credits.POST("/allocate", creditHandler.Allocate)
	credits.DELETE("/allocate", creditHandler.Revert)
	credits.POST("/reset", creditHandler.ResetCredit)
	credits.GET("/:id/allocations", creditHandler.ListAllocations)

	transactions := protected.Group("/transactions")
	transactions.GET("/search", transactionHandler.SearchTransactions)
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.ListTransactions)
	transactions.GET("/:id", transactionHandler.GetTransaction)
	transactions.PATCH("/:id", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	goals := protected.Group("/goals")
	goals.POST("", goalHandler.CreateGoal)
	goals.GET("", goalHandler.ListGoals)
	goals.GET("/:id", goalHandler.GetGoal)

	spreadItems := protected.Group("/spread-items")
	spreadItems.POST("", spreadHandler.CreateSpreadItem)
	spreadItems.GET("", spreadHandler.ListSpreadItems)
	spreadItems.GET("/:id", spreadHandler.GetSpreadItem)

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.ListCategories)

	log.Infof("Starting creditflow server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}

// newPublisher returns an AMQP publisher when AMQP_URL is set and a no-op
// publisher otherwise.
func newPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		logger.Get().Info("AMQP_URL not set, allocation events are not published")
		return events.NopPublisher{}, nil
	}
	return events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
}
