package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"creditflow/internal/events"
	"creditflow/internal/handlers"
	"creditflow/internal/logger"
	"creditflow/internal/middleware"
	"creditflow/internal/models"
	"creditflow/internal/services"
	"creditflow/internal/testutil"
	"creditflow/internal/validator"
)

const pipelineKey = "pipeline-test-key"

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB        *gorm.DB
	Router    *gin.Engine
	Publisher *events.MemoryPublisher
}

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	keyHash, err := bcrypt.GenerateFromPassword([]byte(pipelineKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash pipeline key: %v", err)
	}

	publisher := &events.MemoryPublisher{}

	// Services
	auditService := services.NewAuditService(db)
	categoryService := services.NewCategoryService(db)
	goalService := services.NewGoalService(db)
	spreadService := services.NewSpreadService(db)
	ledgerService := services.NewLedgerService(db, publisher)
	allocationService := services.NewAllocationService(db, ledgerService, publisher)
	matchingService := services.NewMatchingService(db)
	triageService := services.NewTriageService(ledgerService, allocationService, goalService, spreadService, categoryService)

	// Handlers
	creditHandler := handlers.NewCreditHandler(triageService, allocationService, ledgerService, auditService)
	transactionHandler := handlers.NewTransactionHandler(ledgerService, matchingService, auditService)
	goalHandler := handlers.NewGoalHandler(goalService, auditService)
	spreadHandler := handlers.NewSpreadHandler(spreadService, auditService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	pipelineHandler := handlers.NewPipelineHandler(ledgerService, auditService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	api := router.Group("/api")

	pipeline := api.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(string(keyHash)))
	pipeline.POST("/transactions", pipelineHandler.ImportTransactions)

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

	return &testApp{DB: db, Router: router, Publisher: publisher}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// importTransactions posts a batch through the pipeline endpoint.
func (app *testApp) importTransactions(t *testing.T, userID, transactionsJSON string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/pipeline/transactions",
		strings.NewReader(`{"user_id":"`+userID+`","transactions":`+transactionsJSON+`}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", pipelineKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("import failed: %d %s", rec.Code, rec.Body.String())
	}
}

// transactionByDescription looks up an imported row.
func (app *testApp) transactionByDescription(t *testing.T, userID, description string) *models.Transaction {
	t.Helper()
	var tx models.Transaction
	if err := app.DB.Where("user_id = ? AND description = ?", userID, description).First(&tx).Error; err != nil {
		t.Fatalf("transaction %q not found: %v", description, err)
	}
	return &tx
}

// newSession returns a user id and a session token for it.
func newSession(t *testing.T) (userID, token string) {
	t.Helper()
	userID = testutil.NewUserID()
	token, err := middleware.GenerateSessionToken(userID, userID+"@test.local")
	if err != nil {
		t.Fatalf("failed to generate session token: %v", err)
	}
	return userID, token
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// daysAgo renders a date n days before now as YYYY-MM-DD.
func daysAgo(n int) string {
	return time.Now().UTC().AddDate(0, 0, -n).Format(time.DateOnly)
}
