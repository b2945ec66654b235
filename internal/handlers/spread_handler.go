package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/services"
)

// SpreadHandler handles spread item requests.
type SpreadHandler struct {
	spreadService services.SpreadServicer
	auditService  services.AuditServicer
}

// NewSpreadHandler creates a new SpreadHandler.
func NewSpreadHandler(spreadService services.SpreadServicer, auditService services.AuditServicer) *SpreadHandler {
	return &SpreadHandler{spreadService: spreadService, auditService: auditService}
}

// CreateSpreadItemRequest represents the request payload for creating a spread item.
// With transaction_id set, description, total and start month default to the expense's.
type CreateSpreadItemRequest struct {
	Description   string      `json:"description" binding:"max=500"`
	TotalAmount   money.Cents `json:"total_amount" swaggertype:"number" example:"1200.00"`
	Months        int         `json:"months" binding:"required,min=1,max=120"`
	StartMonth    string      `json:"start_month" binding:"omitempty,year_month"`
	TransactionID *string     `json:"transaction_id" binding:"omitempty,uuid"`
}

// CreateSpreadItem creates an amortized spread item
// @Summary     Create a spread item
// @Description Spread a large expense over a number of months. Amounts are dollars.
// @Tags        spread-items
// @Accept      json
// @Produce     json
// @Security    SessionAuth
// @Param       request body CreateSpreadItemRequest true "Spread item details"
// @Success     201 {object} map[string]interface{} "Spread item created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /spread-items [post]
func (h *SpreadHandler) CreateSpreadItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateSpreadItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	item, err := h.spreadService.CreateSpreadItem(c.Request.Context(), userID, services.NewSpreadItem{
		Description:   req.Description,
		TotalAmount:   req.TotalAmount,
		Months:        req.Months,
		StartMonth:    req.StartMonth,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionCreateSpread, models.AuditResourceSpreadItem, item.ID, c.ClientIP(),
		map[string]interface{}{"total_amount": item.TotalAmount, "months": item.Months})

	c.JSON(http.StatusCreated, gin.H{"spread_item": item})
}

// ListSpreadItems returns the user's spread items
// @Summary     List spread items
// @Tags        spread-items
// @Produce     json
// @Security    SessionAuth
// @Param       month query string false "Only items with a portion due in this YYYY-MM month"
// @Success     200 {object} map[string]interface{} "List of spread items"
// @Failure     400 {object} ErrorResponse "Invalid month"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /spread-items [get]
func (h *SpreadHandler) ListSpreadItems(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query struct {
		Month string `form:"month" binding:"omitempty,year_month"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	items, err := h.spreadService.ListSpreadItems(c.Request.Context(), userID, query.Month)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"spread_items": items})
}

// GetSpreadItem returns a single spread item
// @Summary     Get spread item by ID
// @Tags        spread-items
// @Produce     json
// @Security    SessionAuth
// @Param       id path string true "Spread item ID"
// @Success     200 {object} map[string]interface{} "Spread item details"
// @Failure     400 {object} ErrorResponse "Invalid spread item ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Spread item not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /spread-items/{id} [get]
func (h *SpreadHandler) GetSpreadItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	itemID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	item, err := h.spreadService.GetSpreadItem(c.Request.Context(), userID, itemID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"spread_item": item})
}
