package models

import "creditflow/internal/money"

// GoalType represents how a goal is measured.
type GoalType string

const (
	GoalTypeMonthlySavings GoalType = "monthly_savings"
	GoalTypeFundTarget     GoalType = "fund_target"
	GoalTypeCategoryLimit  GoalType = "category_limit"
	GoalTypeNetWorth       GoalType = "net_worth"
)

// Goal is a savings target that goal allocations contribute to.
type Goal struct {
	Base
	UserID        string      `gorm:"type:uuid;not null;index" json:"user_id"`
	Name          string      `gorm:"not null" json:"name"`
	GoalType      GoalType    `gorm:"not null" json:"goal_type"`
	TargetAmount  money.Cents `gorm:"column:target_cents;not null" json:"target_amount"`
	CurrentAmount money.Cents `gorm:"column:current_cents;not null;default:0" json:"current_amount"`
	IsActive      bool        `gorm:"not null;default:true" json:"is_active"`
}

// Remaining returns how much the goal can still absorb.
func (g *Goal) Remaining() money.Cents {
	if g.CurrentAmount >= g.TargetAmount {
		return 0
	}
	return g.TargetAmount - g.CurrentAmount
}
