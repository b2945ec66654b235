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

// TransactionHandler handles transaction-related requests.
type TransactionHandler struct {
	ledgerService   services.LedgerServicer
	matchingService services.MatchingServicer
	auditService    services.AuditServicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(ledgerService services.LedgerServicer, matchingService services.MatchingServicer, auditService services.AuditServicer) *TransactionHandler {
	return &TransactionHandler{ledgerService: ledgerService, matchingService: matchingService, auditService: auditService}
}

// SearchRequest holds the candidate search query string.
type SearchRequest struct {
	Type              string `form:"type" binding:"required,search_type"`
	Days              int    `form:"days" binding:"omitempty,min=1"`
	Query             string `form:"q" binding:"max=200"`
	CategoryID        string `form:"category_id" binding:"omitempty,uuid"`
	CreditDescription string `form:"credit_description" binding:"max=500"`
	CreditAmount      string `form:"credit_amount"`
	Limit             int    `form:"limit" binding:"omitempty,min=1"`
}

// SearchTransactions finds expenses a credit might settle
// @Summary     Search match candidates
// @Description Tagged candidates, an optional suggested best match and general results within a look-back window. Widen with days=180, 365 and 730.
// @Tags        transactions
// @Produce     json
// @Security    SessionAuth
// @Param       type               query string true  "return or healthcare"
// @Param       days               query int    false "Look-back window in days (default 90, max 730)"
// @Param       q                  query string false "Text matched against description and category name"
// @Param       category_id        query string false "Category filter"
// @Param       credit_description query string false "Description of the credit being matched"
// @Param       credit_amount      query number false "Amount of the credit being matched, in dollars"
// @Param       limit              query int    false "Maximum results (default 50)"
// @Success     200 {object} services.SearchResult
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/search [get]
func (h *TransactionHandler) SearchTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	var amount money.Cents
	if req.CreditAmount != "" {
		amount, err = money.Parse(req.CreditAmount)
		if err != nil || amount < 0 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid credit_amount"))
			return
		}
	}

	result, err := h.matchingService.Search(c.Request.Context(), userID, services.SearchQuery{
		Type:         req.Type,
		Query:        req.Query,
		Category:     req.CategoryID,
		Days:         req.Days,
		Limit:        req.Limit,
		CreditAmount: amount,
		CreditDesc:   req.CreditDescription,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CreateTransactionRequest represents the request payload for recording a transaction
type CreateTransactionRequest struct {
	Amount       money.Cents `json:"amount" binding:"required" swaggertype:"number" example:"-42.17"`
	Description  string      `json:"description" binding:"required,max=500"`
	Date         *string     `json:"date"`
	CategoryID   *string     `json:"category_id" binding:"omitempty,uuid"`
	IsReturn     bool        `json:"is_return"`
	IsHealthcare bool        `json:"is_healthcare"`
	IsFixed      bool        `json:"is_fixed"`
	IsAmortized  bool        `json:"is_amortized"`
}

func (r *CreateTransactionRequest) toNewTransaction(userEntered bool) (services.NewTransaction, error) {
	in := services.NewTransaction{
		Amount:        r.Amount,
		Description:   r.Description,
		CategoryID:    r.CategoryID,
		IsReturn:      r.IsReturn,
		IsHealthcare:  r.IsHealthcare,
		IsFixed:       r.IsFixed,
		IsAmortized:   r.IsAmortized,
		IsUserEntered: userEntered,
	}
	if r.Date != nil && *r.Date != "" {
		parsed, err := parseFlexibleTime(*r.Date)
		if err != nil {
			return in, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
		}
		in.Date = parsed
	}
	return in, nil
}

// CreateTransaction records a user-entered transaction
// @Summary     Create a transaction
// @Description Record a manual transaction. Positive amounts are credits, negative amounts are expenses. Amounts are dollars.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    SessionAuth
// @Param       request body CreateTransactionRequest true "Transaction details"
// @Success     201 {object} map[string]interface{} "Transaction created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}
	in, err := req.toNewTransaction(true)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.ledgerService.CreateTransaction(c.Request.Context(), userID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionCreateTx, models.AuditResourceTransaction, transaction.ID, c.ClientIP(),
		map[string]interface{}{"amount": transaction.Amount, "description": transaction.Description})

	c.JSON(http.StatusCreated, gin.H{"transaction": transaction})
}

// ListTransactions returns the user's transactions
// @Summary     List transactions
// @Description Paginated transactions, newest first, with optional filters
// @Tags        transactions
// @Produce     json
// @Security    SessionAuth
// @Param       page         query int    false "Page number (default 1)"
// @Param       page_size    query int    false "Items per page (default 20, max 200)"
// @Param       from_date    query string false "Start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date      query string false "End date (RFC3339 or YYYY-MM-DD)"
// @Param       category_id  query string false "Category filter"
// @Param       direction    query string false "credit or expense"
// @Param       only_returns query bool   false "Only return-flagged expenses"
// @Success     200 {object} pagination.PageResponse[models.Transaction]
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [get]
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	filter, err := parseTransactionFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.ledgerService.ListTransactions(c.Request.Context(), userID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func parseTransactionFilter(c *gin.Context) (services.TransactionFilter, error) {
	var filter services.TransactionFilter

	if v := c.Query("from_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid from_date format, use RFC3339 or YYYY-MM-DD")
		}
		filter.FromDate = &t
	}

	if v := c.Query("to_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid to_date format, use RFC3339 or YYYY-MM-DD")
		}
		filter.ToDate = &t
	}

	if v := c.Query("category_id"); v != "" {
		if err := validateID(v); err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid category_id")
		}
		filter.CategoryID = &v
	}

	switch v := c.Query("direction"); v {
	case "", "credit", "expense":
		filter.Direction = v
	default:
		return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid direction, must be credit or expense")
	}

	filter.OnlyReturns = c.Query("only_returns") == "true"
	return filter, nil
}

// GetTransaction returns a single transaction
// @Summary     Get transaction by ID
// @Tags        transactions
// @Produce     json
// @Security    SessionAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} map[string]interface{} "Transaction details"
// @Failure     400 {object} ErrorResponse "Invalid transaction ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.ledgerService.GetTransaction(c.Request.Context(), userID, transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// UpdateTransactionRequest represents the request payload for updating a transaction.
// An empty category_id clears the category.
type UpdateTransactionRequest struct {
	Description  *string `json:"description" binding:"omitempty,max=500"`
	CategoryID   *string `json:"category_id"`
	IsReturn     *bool   `json:"is_return"`
	IsHealthcare *bool   `json:"is_healthcare"`
	IsFixed      *bool   `json:"is_fixed"`
	IsAmortized  *bool   `json:"is_amortized"`
}

// UpdateTransaction edits a transaction's description, category and flags
// @Summary     Update transaction
// @Description Amounts and dates are owned by the bank sync and cannot be edited. Unflagging a return or healthcare expense with live allocations is rejected.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    SessionAuth
// @Param       id      path string                   true "Transaction ID"
// @Param       request body UpdateTransactionRequest true "Fields to update"
// @Success     200 {object} map[string]interface{} "Updated transaction"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     409 {object} ErrorResponse "Transaction has allocations"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [patch]
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	txID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	update := services.TransactionUpdate{
		Description:  req.Description,
		IsReturn:     req.IsReturn,
		IsHealthcare: req.IsHealthcare,
		IsFixed:      req.IsFixed,
		IsAmortized:  req.IsAmortized,
	}
	if req.CategoryID != nil {
		if *req.CategoryID == "" {
			update.ClearCategory = true
		} else if err := validateID(*req.CategoryID); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid category_id"))
			return
		} else {
			update.CategoryID = req.CategoryID
		}
	}

	transaction, err := h.ledgerService.UpdateTransaction(c.Request.Context(), userID, txID, update)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionUpdateTx, models.AuditResourceTransaction, txID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// DeleteTransaction deletes a user-entered transaction
// @Summary     Delete transaction
// @Description Only user-entered transactions without live allocations can be deleted
// @Tags        transactions
// @Produce     json
// @Security    SessionAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} OKResponse
// @Failure     400 {object} ErrorResponse "Invalid transaction ID or not deletable"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     409 {object} ErrorResponse "Transaction has allocations"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [delete]
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.ledgerService.DeleteTransaction(c.Request.Context(), userID, transactionID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionDeleteTx, models.AuditResourceTransaction, transactionID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, OKResponse{OK: true})
}
