package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "creditflow/internal/errors"
	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/pagination"
	"creditflow/internal/services"
)

// CreditHandler serves the credit triage endpoints.
type CreditHandler struct {
	triageService     services.TriageServicer
	allocationService services.AllocationServicer
	ledgerService     services.LedgerServicer
	auditService      services.AuditServicer
}

// NewCreditHandler creates a new CreditHandler.
func NewCreditHandler(
	triageService services.TriageServicer,
	allocationService services.AllocationServicer,
	ledgerService services.LedgerServicer,
	auditService services.AuditServicer,
) *CreditHandler {
	return &CreditHandler{
		triageService:     triageService,
		allocationService: allocationService,
		ledgerService:     ledgerService,
		auditService:      auditService,
	}
}

// GetUnallocated returns the triage view for a month
// @Summary     Unallocated credits
// @Description Credits of the month split into open and fully allocated, with the goals, expense categories, pending returns and spread items they can be assigned to
// @Tags        credits
// @Produce     json
// @Security    SessionAuth
// @Param       month query string false "Month as YYYY-MM (default current month)"
// @Success     200 {object} services.TriageView
// @Failure     400 {object} ErrorResponse "Invalid month"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /credits/unallocated [get]
func (h *CreditHandler) GetUnallocated(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query struct {
		Month string `form:"month" binding:"omitempty,year_month"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "month must be YYYY-MM"))
		return
	}

	view, err := h.triageService.GetUnallocated(c.Request.Context(), userID, query.Month)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// AllocateRequest is the allocate payload. At most one of the target id
// fields may be set and it must be the one the action requires. For
// spread_offset, original_id carries the spread item id and spread_item_id is
// an alias.
type AllocateRequest struct {
	CreditID      string      `json:"credit_id" binding:"required,uuid"`
	Action        string      `json:"action" binding:"required,allocation_action"`
	Amount        money.Cents `json:"amount" binding:"required" swaggertype:"number" example:"42.17"`
	OriginalID    *string     `json:"original_id" binding:"omitempty,uuid"`
	SpreadItemID  *string     `json:"spread_item_id" binding:"omitempty,uuid"`
	CategoryID    *string     `json:"category_id" binding:"omitempty,uuid"`
	GoalID        *string     `json:"goal_id" binding:"omitempty,uuid"`
	Label         string      `json:"label" binding:"max=200"`
	ParentID      *string     `json:"parent_id" binding:"omitempty,max=100"`
	ResetExisting bool        `json:"reset_existing"`
}

// AllocateResponse is returned after a successful allocation.
type AllocateResponse struct {
	OK bool `json:"ok"`
	services.AllocateResult
}

// toServiceRequest converts the loose payload into a request with a single
// tagged target.
func (r *AllocateRequest) toServiceRequest() (services.AllocateRequest, error) {
	req := services.AllocateRequest{
		CreditID:      r.CreditID,
		Type:          models.AllocationType(r.Action),
		Amount:        r.Amount,
		Label:         r.Label,
		ParentID:      r.ParentID,
		ResetExisting: r.ResetExisting,
		Target:        services.AllocationTarget{Kind: models.TargetKindNone},
	}

	// original_id names the spread item for spread_offset and the
	// original expense for every other action.
	originalKind := models.TargetKindTransaction
	if req.Type == models.AllocationTypeSpreadOffset {
		originalKind = models.TargetKindSpread
	}

	candidates := []struct {
		kind models.TargetKind
		id   *string
	}{
		{originalKind, r.OriginalID},
		{models.TargetKindSpread, r.SpreadItemID},
		{models.TargetKindCategory, r.CategoryID},
		{models.TargetKindGoal, r.GoalID},
	}
	found := 0
	for _, cand := range candidates {
		if cand.id == nil || *cand.id == "" {
			continue
		}
		found++
		req.Target = services.AllocationTarget{Kind: cand.kind, ID: *cand.id}
	}
	if found > 1 {
		return req, apperrors.WithMessage(apperrors.ErrInvalidTarget, "only one target id may be given")
	}
	return req, nil
}

// Allocate assigns part of a credit to a target
// @Summary     Allocate a credit
// @Description Assign part of a credit to a return, reimbursement, spend offset, spread item, goal or income bucket. Amounts are dollars.
// @Tags        credits
// @Accept      json
// @Produce     json
// @Security    SessionAuth
// @Param       request body AllocateRequest true "Allocation"
// @Success     200 {object} AllocateResponse
// @Failure     400 {object} ErrorResponse "Invalid input, amount exceeds remaining or target over matched"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Credit or target not found"
// @Failure     409 {object} ErrorResponse "Invariant violation"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /credits/allocate [post]
func (h *CreditHandler) Allocate(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var body AllocateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}
	req, err := body.toServiceRequest()
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.allocationService.Allocate(c.Request.Context(), userID, req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	changes := map[string]interface{}{
		"credit_id": result.Allocation.CreditID,
		"type":      result.Allocation.Type,
		"amount":    result.Allocation.Amount,
		"target_id": result.Allocation.TargetID(),
	}
	if len(result.Reverted) > 0 {
		ids := make([]string, len(result.Reverted))
		for i := range result.Reverted {
			ids[i] = result.Reverted[i].ID
		}
		changes["reverted"] = ids
	}
	h.auditService.Log(userID, services.AuditActionAllocate, models.AuditResourceAllocation, result.Allocation.ID, c.ClientIP(), changes)

	c.JSON(http.StatusOK, AllocateResponse{OK: true, AllocateResult: *result})
}

// RevertRequest identifies the allocation to undo.
type RevertRequest struct {
	AllocationID string `json:"allocation_id" binding:"required,uuid"`
}

// Revert undoes an allocation
// @Summary     Undo an allocation
// @Description Revert a live allocation, restoring the credit and target balances. A second revert returns ALREADY_REVERTED.
// @Tags        credits
// @Accept      json
// @Produce     json
// @Security    SessionAuth
// @Param       request body RevertRequest true "Allocation to revert"
// @Success     200 {object} OKResponse
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Allocation not found"
// @Failure     409 {object} ErrorResponse "Already reverted"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /credits/allocate [delete]
func (h *CreditHandler) Revert(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RevertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	result, err := h.allocationService.Revert(c.Request.Context(), userID, req.AllocationID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionRevert, models.AuditResourceAllocation, req.AllocationID, c.ClientIP(),
		map[string]interface{}{"credit_id": result.Allocation.CreditID, "amount": result.Allocation.Amount})

	c.JSON(http.StatusOK, OKResponse{OK: true})
}

// ResetRequest identifies the transaction to send back to triage.
type ResetRequest struct {
	TransactionID string `json:"transaction_id" binding:"required,uuid"`
}

// ResetCredit marks an incoming transaction as an unallocated credit
// @Summary     Reset a credit
// @Description Move an incoming transaction classified as income back into the triage pool
// @Tags        credits
// @Accept      json
// @Produce     json
// @Security    SessionAuth
// @Param       request body ResetRequest true "Transaction to reset"
// @Success     200 {object} map[string]interface{} "ok and the updated transaction"
// @Failure     400 {object} ErrorResponse "Not an incoming transaction"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /credits/reset [post]
func (h *CreditHandler) ResetCredit(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	transaction, err := h.ledgerService.ResetCredit(c.Request.Context(), userID, req.TransactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionResetCredit, models.AuditResourceTransaction, transaction.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"ok": true, "transaction": transaction})
}

// ListAllocations returns a credit's allocation history
// @Summary     Allocation history
// @Description Paginated allocations of a credit, newest first, reverted rows included
// @Tags        credits
// @Produce     json
// @Security    SessionAuth
// @Param       id        path  string true  "Credit ID"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 200)"
// @Success     200 {object} pagination.PageResponse[models.Allocation]
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Credit not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /credits/{id}/allocations [get]
func (h *CreditHandler) ListAllocations(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	creditID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	result, err := h.allocationService.ListAllocations(c.Request.Context(), userID, creditID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
