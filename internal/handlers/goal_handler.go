package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/services"
)

// GoalHandler handles savings goal requests.
type GoalHandler struct {
	goalService  services.GoalServicer
	auditService services.AuditServicer
}

// NewGoalHandler creates a new GoalHandler.
func NewGoalHandler(goalService services.GoalServicer, auditService services.AuditServicer) *GoalHandler {
	return &GoalHandler{goalService: goalService, auditService: auditService}
}

// CreateGoalRequest represents the request payload for creating a goal.
type CreateGoalRequest struct {
	Name         string          `json:"name" binding:"required,max=100"`
	GoalType     models.GoalType `json:"goal_type" binding:"omitempty,goal_type"`
	TargetAmount money.Cents     `json:"target_amount" binding:"required" swaggertype:"number" example:"500.00"`
}

// CreateGoal creates a savings goal
// @Summary     Create a goal
// @Description Create a savings goal that goal allocations contribute to. Amounts are dollars.
// @Tags        goals
// @Accept      json
// @Produce     json
// @Security    SessionAuth
// @Param       request body CreateGoalRequest true "Goal details"
// @Success     201 {object} map[string]interface{} "Goal created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /goals [post]
func (h *GoalHandler) CreateGoal(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	goal, err := h.goalService.CreateGoal(c.Request.Context(), userID, req.Name, req.GoalType, req.TargetAmount)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionCreateGoal, models.AuditResourceGoal, goal.ID, c.ClientIP(),
		map[string]interface{}{"name": goal.Name, "target_amount": goal.TargetAmount})

	c.JSON(http.StatusCreated, gin.H{"goal": goal})
}

// ListGoals returns the user's goals
// @Summary     List goals
// @Tags        goals
// @Produce     json
// @Security    SessionAuth
// @Param       open query bool false "Only active goals with room left"
// @Success     200 {object} map[string]interface{} "List of goals"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /goals [get]
func (h *GoalHandler) ListGoals(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	goals, err := h.goalService.ListGoals(c.Request.Context(), userID, c.Query("open") == "true")
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

// GetGoal returns a single goal
// @Summary     Get goal by ID
// @Tags        goals
// @Produce     json
// @Security    SessionAuth
// @Param       id path string true "Goal ID"
// @Success     200 {object} map[string]interface{} "Goal details"
// @Failure     400 {object} ErrorResponse "Invalid goal ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Goal not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /goals/{id} [get]
func (h *GoalHandler) GetGoal(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	goalID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	goal, err := h.goalService.GetGoal(c.Request.Context(), userID, goalID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"goal": goal})
}
