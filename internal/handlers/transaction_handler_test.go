package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "creditflow/internal/errors"
	"creditflow/internal/models"
	"creditflow/internal/pagination"
	"creditflow/internal/services"
)

const txID = "0190b3a4-7c1e-7000-8000-000000000b01"

type mockMatchingService struct {
	searchFn func(userID string, q services.SearchQuery) (*services.SearchResult, error)
}

func (m *mockMatchingService) Search(_ context.Context, userID string, q services.SearchQuery) (*services.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(userID, q)
	}
	return &services.SearchResult{Tagged: []models.Transaction{}, Results: []models.Transaction{}, Days: 30}, nil
}

var _ services.MatchingServicer = (*mockMatchingService)(nil)

func setupTransactionRouter(handler *TransactionHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.GET("/transactions/search", handler.SearchTransactions)
	auth.POST("/transactions", handler.CreateTransaction)
	auth.GET("/transactions", handler.ListTransactions)
	auth.GET("/transactions/:id", handler.GetTransaction)
	auth.PATCH("/transactions/:id", handler.UpdateTransaction)
	auth.DELETE("/transactions/:id", handler.DeleteTransaction)
	return r
}

func TestTransactionHandler_Search(t *testing.T) {
	t.Run("parses credit amount into cents", func(t *testing.T) {
		var got services.SearchQuery
		matching := &mockMatchingService{searchFn: func(_ string, q services.SearchQuery) (*services.SearchResult, error) {
			got = q
			return &services.SearchResult{Days: 60, Exhausted: true}, nil
		}}
		handler := NewTransactionHandler(&mockLedgerService{}, matching, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodGet,
			"/transactions/search?type=return&days=60&q=amazon&credit_amount=42.17&credit_description=AMZN%20REFUND", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Type != "return" || got.Days != 60 || got.Query != "amazon" {
			t.Errorf("unexpected query %+v", got)
		}
		if got.CreditAmount != 4217 || got.CreditDesc != "AMZN REFUND" {
			t.Errorf("unexpected credit fields %+v", got)
		}
		if parseJSON(t, rec)["exhausted"] != true {
			t.Error("expected exhausted true")
		}
	})

	t.Run("returns 400 on missing type", func(t *testing.T) {
		handler := NewTransactionHandler(&mockLedgerService{}, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodGet, "/transactions/search?q=x", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on bad credit amount", func(t *testing.T) {
		handler := NewTransactionHandler(&mockLedgerService{}, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodGet, "/transactions/search?type=healthcare&credit_amount=abc", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestTransactionHandler_Create(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var got services.NewTransaction
		ledger := &mockLedgerService{createTransactionFn: func(_ string, in services.NewTransaction) (*models.Transaction, error) {
			got = in
			return &models.Transaction{Base: models.Base{ID: txID}, Amount: in.Amount, Description: in.Description}, nil
		}}
		audit := &mockAuditService{}
		handler := NewTransactionHandler(ledger, &mockMatchingService{}, audit)

		rec := doRequest(setupTransactionRouter(handler), http.MethodPost, "/transactions",
			`{"amount":-42.17,"description":"Amazon order","date":"2024-05-03","is_return":true}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Amount != -4217 || !got.IsReturn || !got.IsUserEntered {
			t.Errorf("unexpected input %+v", got)
		}
		if got.Date.Format("2006-01-02") != "2024-05-03" {
			t.Errorf("expected parsed date, got %v", got.Date)
		}
		if len(audit.entries) != 1 || audit.entries[0].resourceID != txID {
			t.Errorf("expected audit entry for %s, got %+v", txID, audit.entries)
		}
	})

	t.Run("returns 400 on bad date", func(t *testing.T) {
		handler := NewTransactionHandler(&mockLedgerService{}, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodPost, "/transactions",
			`{"amount":10,"description":"cash","date":"05/03/2024"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on missing description", func(t *testing.T) {
		handler := NewTransactionHandler(&mockLedgerService{}, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodPost, "/transactions", `{"amount":10}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestTransactionHandler_List(t *testing.T) {
	t.Run("passes filters through", func(t *testing.T) {
		var gotFilter services.TransactionFilter
		var gotPage pagination.PageRequest
		ledger := &mockLedgerService{listTransactionsFn: func(_ string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
			gotFilter, gotPage = filter, page
			resp := pagination.NewPageResponse([]models.Transaction{}, 2, 10, 0)
			return &resp, nil
		}}
		handler := NewTransactionHandler(ledger, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodGet,
			"/transactions?page=2&page_size=10&from_date=2024-05-01&direction=credit&only_returns=true", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotPage.Page != 2 || gotPage.PageSize != 10 {
			t.Errorf("unexpected page %+v", gotPage)
		}
		if gotFilter.FromDate == nil || gotFilter.Direction != "credit" || !gotFilter.OnlyReturns {
			t.Errorf("unexpected filter %+v", gotFilter)
		}
	})

	t.Run("returns 400 on bad direction", func(t *testing.T) {
		handler := NewTransactionHandler(&mockLedgerService{}, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodGet, "/transactions?direction=sideways", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestTransactionHandler_Get(t *testing.T) {
	t.Run("returns 404 when missing", func(t *testing.T) {
		ledger := &mockLedgerService{getTransactionFn: func(string, string) (*models.Transaction, error) {
			return nil, apperrors.ErrTransactionNotFound
		}}
		handler := NewTransactionHandler(ledger, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodGet, "/transactions/"+txID, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "TRANSACTION_NOT_FOUND")
	})

	t.Run("returns 400 on invalid id", func(t *testing.T) {
		handler := NewTransactionHandler(&mockLedgerService{}, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodGet, "/transactions/123", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestTransactionHandler_Update(t *testing.T) {
	t.Run("empty category clears it", func(t *testing.T) {
		var got services.TransactionUpdate
		ledger := &mockLedgerService{updateTransactionFn: func(_, _ string, update services.TransactionUpdate) (*models.Transaction, error) {
			got = update
			return &models.Transaction{Base: models.Base{ID: txID}}, nil
		}}
		handler := NewTransactionHandler(ledger, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodPatch, "/transactions/"+txID,
			`{"category_id":"","is_healthcare":true}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !got.ClearCategory || got.CategoryID != nil {
			t.Errorf("expected category cleared, got %+v", got)
		}
		if got.IsHealthcare == nil || !*got.IsHealthcare {
			t.Error("expected is_healthcare set")
		}
	})

	t.Run("returns 409 when unflagging allocated expense", func(t *testing.T) {
		ledger := &mockLedgerService{updateTransactionFn: func(string, string, services.TransactionUpdate) (*models.Transaction, error) {
			return nil, apperrors.ErrTransactionHasAllocations
		}}
		handler := NewTransactionHandler(ledger, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodPatch, "/transactions/"+txID, `{"is_return":false}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "TRANSACTION_HAS_ALLOCATIONS")
	})

	t.Run("returns 400 on invalid category", func(t *testing.T) {
		handler := NewTransactionHandler(&mockLedgerService{}, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodPatch, "/transactions/"+txID, `{"category_id":"groceries"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestTransactionHandler_Delete(t *testing.T) {
	t.Run("returns ok", func(t *testing.T) {
		audit := &mockAuditService{}
		handler := NewTransactionHandler(&mockLedgerService{}, &mockMatchingService{}, audit)

		rec := doRequest(setupTransactionRouter(handler), http.MethodDelete, "/transactions/"+txID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if parseJSON(t, rec)["ok"] != true {
			t.Error("expected ok true")
		}
		if len(audit.entries) != 1 || audit.entries[0].action != services.AuditActionDeleteTx {
			t.Errorf("expected delete audit entry, got %+v", audit.entries)
		}
	})

	t.Run("returns 400 for synced transaction", func(t *testing.T) {
		ledger := &mockLedgerService{deleteTransactionFn: func(string, string) error {
			return apperrors.ErrTransactionNotDeletable
		}}
		handler := NewTransactionHandler(ledger, &mockMatchingService{}, &mockAuditService{})

		rec := doRequest(setupTransactionRouter(handler), http.MethodDelete, "/transactions/"+txID, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "TRANSACTION_NOT_DELETABLE")
	})
}
