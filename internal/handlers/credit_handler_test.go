package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "creditflow/internal/errors"
	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/pagination"
	"creditflow/internal/services"
)

const (
	creditID     = "0190b3a4-7c1e-7000-8000-000000000c01"
	targetID     = "0190b3a4-7c1e-7000-8000-000000000e01"
	allocationID = "0190b3a4-7c1e-7000-8000-000000000a01"
)

// --- mock triage and allocation services ---

type mockTriageService struct {
	getUnallocatedFn func(userID, month string) (*services.TriageView, error)
}

func (m *mockTriageService) GetUnallocated(_ context.Context, userID, month string) (*services.TriageView, error) {
	if m.getUnallocatedFn != nil {
		return m.getUnallocatedFn(userID, month)
	}
	return &services.TriageView{Month: month}, nil
}

var _ services.TriageServicer = (*mockTriageService)(nil)

type mockAllocationService struct {
	allocateFn        func(userID string, req services.AllocateRequest) (*services.AllocateResult, error)
	revertFn          func(userID, allocationID string) (*services.RevertResult, error)
	listAllocationsFn func(userID, creditID string, page pagination.PageRequest) (*pagination.PageResponse[models.Allocation], error)
}

func (m *mockAllocationService) Allocate(_ context.Context, userID string, req services.AllocateRequest) (*services.AllocateResult, error) {
	if m.allocateFn != nil {
		return m.allocateFn(userID, req)
	}
	return &services.AllocateResult{
		Allocation: &models.Allocation{Base: models.Base{ID: allocationID}, CreditID: req.CreditID, Type: req.Type, Amount: req.Amount},
		Credit:     &models.Transaction{Base: models.Base{ID: req.CreditID}},
	}, nil
}

func (m *mockAllocationService) Revert(_ context.Context, userID, allocationID string) (*services.RevertResult, error) {
	if m.revertFn != nil {
		return m.revertFn(userID, allocationID)
	}
	return &services.RevertResult{
		Allocation: &models.Allocation{Base: models.Base{ID: allocationID}, CreditID: creditID},
		Credit:     &models.Transaction{Base: models.Base{ID: creditID}},
	}, nil
}

func (m *mockAllocationService) ListAllocations(_ context.Context, userID, creditID string, page pagination.PageRequest) (*pagination.PageResponse[models.Allocation], error) {
	if m.listAllocationsFn != nil {
		return m.listAllocationsFn(userID, creditID, page)
	}
	resp := pagination.NewPageResponse([]models.Allocation{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockAllocationService) LiveAllocations(context.Context, string, []string) (map[string][]models.Allocation, error) {
	return map[string][]models.Allocation{}, nil
}

func (m *mockAllocationService) SpreadOffsets(context.Context, string, string) (map[string]money.Cents, error) {
	return map[string]money.Cents{}, nil
}

var _ services.AllocationServicer = (*mockAllocationService)(nil)

func setupCreditRouter(handler *CreditHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.GET("/credits/unallocated", handler.GetUnallocated)
	auth.POST("/credits/allocate", handler.Allocate)
	auth.DELETE("/credits/allocate", handler.Revert)
	auth.POST("/credits/reset", handler.ResetCredit)
	auth.GET("/credits/:id/allocations", handler.ListAllocations)
	return r
}

func TestCreditHandler_GetUnallocated(t *testing.T) {
	t.Run("passes month through", func(t *testing.T) {
		var gotMonth string
		triage := &mockTriageService{getUnallocatedFn: func(_, month string) (*services.TriageView, error) {
			gotMonth = month
			return &services.TriageView{Month: month, TotalUnallocated: 15000}, nil
		}}
		handler := NewCreditHandler(triage, &mockAllocationService{}, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodGet, "/credits/unallocated?month=2024-03", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotMonth != "2024-03" {
			t.Errorf("expected month 2024-03, got %q", gotMonth)
		}
		if total := parseJSON(t, rec)["total_unallocated"]; total != 150.0 {
			t.Errorf("expected total in dollars, got %v", total)
		}
	})

	t.Run("returns 400 on bad month", func(t *testing.T) {
		handler := NewCreditHandler(&mockTriageService{}, &mockAllocationService{}, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodGet, "/credits/unallocated?month=March", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestCreditHandler_Allocate(t *testing.T) {
	t.Run("converts loose body to tagged target", func(t *testing.T) {
		var got services.AllocateRequest
		allocs := &mockAllocationService{allocateFn: func(_ string, req services.AllocateRequest) (*services.AllocateResult, error) {
			got = req
			return &services.AllocateResult{
				Allocation: &models.Allocation{Base: models.Base{ID: allocationID}, CreditID: req.CreditID, Amount: req.Amount},
				Credit:     &models.Transaction{Base: models.Base{ID: req.CreditID}, Amount: 15000},
				Complete:   true,
			}, nil
		}}
		audit := &mockAuditService{}
		handler := NewCreditHandler(&mockTriageService{}, allocs, &mockLedgerService{}, audit)

		rec := doRequest(setupCreditRouter(handler), http.MethodPost, "/credits/allocate",
			`{"credit_id":"`+creditID+`","action":"return","amount":150,"original_id":"`+targetID+`"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Type != models.AllocationTypeReturn || got.Amount != 15000 {
			t.Errorf("unexpected request: %+v", got)
		}
		if got.Target.Kind != models.TargetKindTransaction || got.Target.ID != targetID {
			t.Errorf("expected transaction target, got %+v", got.Target)
		}

		body := parseJSON(t, rec)
		if body["ok"] != true || body["complete"] != true {
			t.Errorf("expected ok and complete, got %v", body)
		}
		if len(audit.entries) != 1 || audit.entries[0].action != services.AuditActionAllocate {
			t.Errorf("expected one ALLOCATE audit entry, got %+v", audit.entries)
		}
	})

	t.Run("original_id names the spread item for spread_offset", func(t *testing.T) {
		for _, field := range []string{"original_id", "spread_item_id"} {
			var got services.AllocateRequest
			allocs := &mockAllocationService{allocateFn: func(_ string, req services.AllocateRequest) (*services.AllocateResult, error) {
				got = req
				return (&mockAllocationService{}).Allocate(context.Background(), "", req)
			}}
			handler := NewCreditHandler(&mockTriageService{}, allocs, &mockLedgerService{}, &mockAuditService{})

			rec := doRequest(setupCreditRouter(handler), http.MethodPost, "/credits/allocate",
				`{"credit_id":"`+creditID+`","action":"spread_offset","amount":50,"`+field+`":"`+targetID+`"}`)

			if rec.Code != http.StatusOK {
				t.Fatalf("%s: expected 200, got %d: %s", field, rec.Code, rec.Body.String())
			}
			if got.Target.Kind != models.TargetKindSpread || got.Target.ID != targetID {
				t.Errorf("%s: expected spread target, got %+v", field, got.Target)
			}
		}
	})

	t.Run("returns 400 on original_id and spread_item_id together", func(t *testing.T) {
		handler := NewCreditHandler(&mockTriageService{}, &mockAllocationService{}, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodPost, "/credits/allocate",
			`{"credit_id":"`+creditID+`","action":"spread_offset","amount":50,"original_id":"`+targetID+`","spread_item_id":"`+targetID+`"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_TARGET")
	})

	t.Run("untargeted action has no target", func(t *testing.T) {
		var got services.AllocateRequest
		allocs := &mockAllocationService{allocateFn: func(_ string, req services.AllocateRequest) (*services.AllocateResult, error) {
			got = req
			return (&mockAllocationService{}).Allocate(context.Background(), "", req)
		}}
		handler := NewCreditHandler(&mockTriageService{}, allocs, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodPost, "/credits/allocate",
			`{"credit_id":"`+creditID+`","action":"tax_refund","amount":"12.34"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Target.Kind != models.TargetKindNone || got.Amount != 1234 {
			t.Errorf("unexpected request: %+v", got)
		}
	})

	t.Run("returns 400 on two target ids", func(t *testing.T) {
		handler := NewCreditHandler(&mockTriageService{}, &mockAllocationService{}, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodPost, "/credits/allocate",
			`{"credit_id":"`+creditID+`","action":"goal","amount":10,"goal_id":"`+targetID+`","category_id":"`+targetID+`"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_TARGET")
	})

	t.Run("returns 400 on unknown action", func(t *testing.T) {
		handler := NewCreditHandler(&mockTriageService{}, &mockAllocationService{}, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodPost, "/credits/allocate",
			`{"credit_id":"`+creditID+`","action":"gift","amount":10}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("maps service errors", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{apperrors.ErrAmountExceedsRemaining, http.StatusBadRequest, "AMOUNT_EXCEEDS_REMAINING"},
			{apperrors.ErrTargetOverMatched, http.StatusBadRequest, "TARGET_OVER_MATCHED"},
			{apperrors.ErrCreditNotFound, http.StatusNotFound, "CREDIT_NOT_FOUND"},
			{apperrors.ErrInvariantViolation, http.StatusConflict, "INVARIANT_VIOLATION"},
		}
		for _, tc := range cases {
			allocs := &mockAllocationService{allocateFn: func(string, services.AllocateRequest) (*services.AllocateResult, error) {
				return nil, tc.err
			}}
			audit := &mockAuditService{}
			handler := NewCreditHandler(&mockTriageService{}, allocs, &mockLedgerService{}, audit)

			rec := doRequest(setupCreditRouter(handler), http.MethodPost, "/credits/allocate",
				`{"credit_id":"`+creditID+`","action":"other_income","amount":10}`)

			if rec.Code != tc.status {
				t.Errorf("%s: expected %d, got %d", tc.code, tc.status, rec.Code)
			}
			assertErrorCode(t, parseJSON(t, rec), tc.code)
			if len(audit.entries) != 0 {
				t.Errorf("%s: failed allocation should not be audited", tc.code)
			}
		}
	})
}

func TestCreditHandler_Revert(t *testing.T) {
	t.Run("returns ok", func(t *testing.T) {
		var gotID string
		allocs := &mockAllocationService{revertFn: func(_, id string) (*services.RevertResult, error) {
			gotID = id
			return &services.RevertResult{
				Allocation: &models.Allocation{Base: models.Base{ID: id}, CreditID: creditID},
				Credit:     &models.Transaction{Base: models.Base{ID: creditID}},
			}, nil
		}}
		handler := NewCreditHandler(&mockTriageService{}, allocs, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodDelete, "/credits/allocate",
			`{"allocation_id":"`+allocationID+`"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotID != allocationID {
			t.Errorf("expected %s, got %s", allocationID, gotID)
		}
		if parseJSON(t, rec)["ok"] != true {
			t.Error("expected ok true")
		}
	})

	t.Run("returns 409 when already reverted", func(t *testing.T) {
		allocs := &mockAllocationService{revertFn: func(string, string) (*services.RevertResult, error) {
			return nil, apperrors.ErrAlreadyReverted
		}}
		handler := NewCreditHandler(&mockTriageService{}, allocs, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodDelete, "/credits/allocate",
			`{"allocation_id":"`+allocationID+`"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "ALREADY_REVERTED")
	})

	t.Run("returns 400 on missing id", func(t *testing.T) {
		handler := NewCreditHandler(&mockTriageService{}, &mockAllocationService{}, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodDelete, "/credits/allocate", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestCreditHandler_ResetCredit(t *testing.T) {
	t.Run("returns transaction", func(t *testing.T) {
		ledger := &mockLedgerService{resetCreditFn: func(_, id string) (*models.Transaction, error) {
			return &models.Transaction{Base: models.Base{ID: id}, Amount: 5000, CreditAllocation: models.CreditAllocationUnallocated}, nil
		}}
		handler := NewCreditHandler(&mockTriageService{}, &mockAllocationService{}, ledger, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodPost, "/credits/reset",
			`{"transaction_id":"`+creditID+`"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := parseJSON(t, rec)
		tx, ok := body["transaction"].(map[string]interface{})
		if !ok || tx["credit_allocation"] != "unallocated" {
			t.Errorf("unexpected body %v", body)
		}
	})

	t.Run("returns 400 for expense", func(t *testing.T) {
		ledger := &mockLedgerService{resetCreditFn: func(string, string) (*models.Transaction, error) {
			return nil, apperrors.ErrNotACredit
		}}
		handler := NewCreditHandler(&mockTriageService{}, &mockAllocationService{}, ledger, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodPost, "/credits/reset",
			`{"transaction_id":"`+creditID+`"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "NOT_A_CREDIT")
	})
}

func TestCreditHandler_ListAllocations(t *testing.T) {
	t.Run("returns page", func(t *testing.T) {
		allocs := &mockAllocationService{listAllocationsFn: func(_, id string, page pagination.PageRequest) (*pagination.PageResponse[models.Allocation], error) {
			resp := pagination.NewPageResponse([]models.Allocation{{CreditID: id}}, 1, 20, 1)
			return &resp, nil
		}}
		handler := NewCreditHandler(&mockTriageService{}, allocs, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodGet, "/credits/"+creditID+"/allocations", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if parseJSON(t, rec)["total_items"] != 1.0 {
			t.Error("expected total_items 1")
		}
	})

	t.Run("returns 400 on invalid id", func(t *testing.T) {
		handler := NewCreditHandler(&mockTriageService{}, &mockAllocationService{}, &mockLedgerService{}, &mockAuditService{})

		rec := doRequest(setupCreditRouter(handler), http.MethodGet, "/credits/not-a-uuid/allocations", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
