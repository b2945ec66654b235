package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"creditflow/internal/models"
	"creditflow/internal/services"
)

// PipelineHandler accepts bank-sync output.
type PipelineHandler struct {
	ledgerService services.LedgerServicer
	auditService  services.AuditServicer
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(ledgerService services.LedgerServicer, auditService services.AuditServicer) *PipelineHandler {
	return &PipelineHandler{ledgerService: ledgerService, auditService: auditService}
}

// ImportTransactionsRequest is a batch of synced transactions for one user.
type ImportTransactionsRequest struct {
	UserID       string                     `json:"user_id" binding:"required,uuid"`
	Transactions []CreateTransactionRequest `json:"transactions" binding:"required,min=1,max=1000,dive"`
}

// ImportTransactions records a batch of synced transactions
// @Summary     Import synced transactions
// @Description Insert a batch of bank-synced transactions for a user in one database transaction (pipeline endpoint). Incoming amounts enter the triage pool.
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Param       X-API-Key header   string                    true "Pipeline API key"
// @Param       request   body     ImportTransactionsRequest true "Transactions"
// @Success     201       {object} map[string]int            "Imported count"
// @Failure     400       {object} ErrorResponse             "Invalid input"
// @Failure     401       {object} ErrorResponse             "Invalid API key"
// @Failure     404       {object} ErrorResponse             "Category not found"
// @Failure     503       {object} ErrorResponse             "Pipeline not configured"
// @Router      /pipeline/transactions [post]
func (h *PipelineHandler) ImportTransactions(c *gin.Context) {
	var req ImportTransactionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	items := make([]services.NewTransaction, len(req.Transactions))
	for i := range req.Transactions {
		in, err := req.Transactions[i].toNewTransaction(false)
		if err != nil {
			respondWithError(c, err)
			return
		}
		items[i] = in
	}

	created, err := h.ledgerService.ImportTransactions(c.Request.Context(), req.UserID, items)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(req.UserID, services.AuditActionImportTx, models.AuditResourceTransaction, "", c.ClientIP(),
		map[string]interface{}{"count": len(created)})

	c.JSON(http.StatusCreated, gin.H{"imported": len(created)})
}
