package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "creditflow/internal/errors"
	"creditflow/internal/models"
	"creditflow/internal/money"
)

// goalService handles savings goals.
type goalService struct {
	db *gorm.DB
}

// NewGoalService creates a new GoalServicer.
func NewGoalService(db *gorm.DB) GoalServicer {
	return &goalService{db: db}
}

// CreateGoal creates an active goal with no progress.
func (s *goalService) CreateGoal(ctx context.Context, userID, name string, goalType models.GoalType, target money.Cents) (*models.Goal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "goal name is required")
	}
	if target <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "target amount must be greater than zero")
	}
	if goalType == "" {
		goalType = models.GoalTypeFundTarget
	}

	goal := &models.Goal{
		UserID:       userID,
		Name:         name,
		GoalType:     goalType,
		TargetAmount: target,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(goal).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return goal, nil
}

// GetGoal retrieves a goal by ID for a specific user.
func (s *goalService) GetGoal(ctx context.Context, userID, goalID string) (*models.Goal, error) {
	var goal models.Goal
	if err := s.db.WithContext(ctx).Scopes(models.OwnedRow(goalID, userID)).First(&goal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrGoalNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &goal, nil
}

// ListGoals returns the user's goals. With openOnly, only active goals that
// have not reached their target are returned.
func (s *goalService) ListGoals(ctx context.Context, userID string, openOnly bool) ([]models.Goal, error) {
	q := s.db.WithContext(ctx).Scopes(models.OwnedBy(userID))
	if openOnly {
		q = q.Where("is_active = ? AND current_cents < target_cents", true)
	}

	goals := []models.Goal{}
	if err := q.Order("created_at ASC").Find(&goals).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return goals, nil
}
