package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"creditflow/internal/middleware"
	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/pagination"
	"creditflow/internal/services"
	"creditflow/internal/validator"
)

const testUserID = "0190b3a4-7c1e-7000-8000-00000000aaaa"

// --- mock services ---

type auditEntry struct {
	action     string
	resourceID string
	changes    map[string]interface{}
}

type mockAuditService struct {
	entries []auditEntry
}

func (m *mockAuditService) Log(_, action string, _ models.AuditResource, resourceID, _ string, changes map[string]interface{}) {
	m.entries = append(m.entries, auditEntry{action: action, resourceID: resourceID, changes: changes})
}

var _ services.AuditServicer = (*mockAuditService)(nil)

type mockLedgerService struct {
	createTransactionFn  func(userID string, in services.NewTransaction) (*models.Transaction, error)
	importTransactionsFn func(userID string, items []services.NewTransaction) ([]models.Transaction, error)
	getTransactionFn     func(userID, transactionID string) (*models.Transaction, error)
	listTransactionsFn   func(userID string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	updateTransactionFn  func(userID, transactionID string, update services.TransactionUpdate) (*models.Transaction, error)
	deleteTransactionFn  func(userID, transactionID string) error
	resetCreditFn        func(userID, transactionID string) (*models.Transaction, error)
}

func (m *mockLedgerService) CreateTransaction(_ context.Context, userID string, in services.NewTransaction) (*models.Transaction, error) {
	if m.createTransactionFn != nil {
		return m.createTransactionFn(userID, in)
	}
	return &models.Transaction{}, nil
}

func (m *mockLedgerService) ImportTransactions(_ context.Context, userID string, items []services.NewTransaction) ([]models.Transaction, error) {
	if m.importTransactionsFn != nil {
		return m.importTransactionsFn(userID, items)
	}
	return make([]models.Transaction, len(items)), nil
}

func (m *mockLedgerService) GetTransaction(_ context.Context, userID, transactionID string) (*models.Transaction, error) {
	if m.getTransactionFn != nil {
		return m.getTransactionFn(userID, transactionID)
	}
	return &models.Transaction{}, nil
}

func (m *mockLedgerService) ListTransactions(_ context.Context, userID string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	if m.listTransactionsFn != nil {
		return m.listTransactionsFn(userID, page, filter)
	}
	resp := pagination.NewPageResponse([]models.Transaction{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockLedgerService) ListCredits(context.Context, string, string) ([]models.Transaction, error) {
	return []models.Transaction{}, nil
}

func (m *mockLedgerService) ListPendingReturns(context.Context, string, int) ([]models.Transaction, error) {
	return []models.Transaction{}, nil
}

func (m *mockLedgerService) UpdateTransaction(_ context.Context, userID, transactionID string, update services.TransactionUpdate) (*models.Transaction, error) {
	if m.updateTransactionFn != nil {
		return m.updateTransactionFn(userID, transactionID, update)
	}
	return &models.Transaction{}, nil
}

func (m *mockLedgerService) DeleteTransaction(_ context.Context, userID, transactionID string) error {
	if m.deleteTransactionFn != nil {
		return m.deleteTransactionFn(userID, transactionID)
	}
	return nil
}

func (m *mockLedgerService) ResetCredit(_ context.Context, userID, transactionID string) (*models.Transaction, error) {
	if m.resetCreditFn != nil {
		return m.resetCreditFn(userID, transactionID)
	}
	return &models.Transaction{}, nil
}

func (m *mockLedgerService) AdjustRemaining(*gorm.DB, string, money.Cents) (*models.Transaction, error) {
	return &models.Transaction{}, nil
}

var _ services.LedgerServicer = (*mockLedgerService)(nil)

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func injectUserID(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, uid)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	if _, ok := result["error"].(string); !ok {
		t.Fatalf("expected error message in response, got: %v", result)
	}
	if result["code"] != code {
		t.Errorf("expected error code %q, got %q", code, result["code"])
	}
}

func TestGetUserIDMissing(t *testing.T) {
	r := gin.New()
	handler := NewTransactionHandler(&mockLedgerService{}, nil, &mockAuditService{})
	r.GET("/transactions/:id", handler.GetTransaction)

	rec := doRequest(r, http.MethodGet, "/transactions/"+testUserID, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	assertErrorCode(t, parseJSON(t, rec), "UNAUTHORIZED")
}

func TestParseFlexibleTime(t *testing.T) {
	for _, v := range []string{"2024-03-10", "2024-03-10T12:30:00Z", "2024-03-10T12:30:00-05:00"} {
		if _, err := parseFlexibleTime(v); err != nil {
			t.Errorf("expected %q to parse: %v", v, err)
		}
	}
	if _, err := parseFlexibleTime("03/10/2024"); err == nil {
		t.Error("expected US date format to be rejected")
	}
}
