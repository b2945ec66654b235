package models

import (
	"time"

	"creditflow/internal/money"
)

// AllocationType names what a slice of a credit was used for.
type AllocationType string

const (
	AllocationTypeReturn       AllocationType = "return"
	AllocationTypeHealthcare   AllocationType = "healthcare"
	AllocationTypeSpendOffset  AllocationType = "spend_offset"
	AllocationTypeSpreadOffset AllocationType = "spread_offset"
	AllocationTypeGoal         AllocationType = "goal"
	AllocationTypeOtherIncome  AllocationType = "other_income"
	AllocationTypeTaxRefund    AllocationType = "tax_refund"
)

// AllocationTypes lists every supported allocation type.
var AllocationTypes = []AllocationType{
	AllocationTypeReturn,
	AllocationTypeHealthcare,
	AllocationTypeSpendOffset,
	AllocationTypeSpreadOffset,
	AllocationTypeGoal,
	AllocationTypeOtherIncome,
	AllocationTypeTaxRefund,
}

// TargetKind discriminates what an allocation's target id refers to.
type TargetKind string

const (
	TargetKindNone        TargetKind = "none"
	TargetKindTransaction TargetKind = "transaction"
	TargetKindSpread      TargetKind = "spread"
	TargetKindCategory    TargetKind = "category"
	TargetKindGoal        TargetKind = "goal"
)

// TargetKindFor returns the only target kind accepted by an allocation type.
func TargetKindFor(t AllocationType) (TargetKind, bool) {
	switch t {
	case AllocationTypeReturn, AllocationTypeHealthcare:
		return TargetKindTransaction, true
	case AllocationTypeSpreadOffset:
		return TargetKindSpread, true
	case AllocationTypeSpendOffset:
		return TargetKindCategory, true
	case AllocationTypeGoal:
		return TargetKindGoal, true
	case AllocationTypeOtherIncome, AllocationTypeTaxRefund:
		return TargetKindNone, true
	}
	return "", false
}

// Allocation assigns part of a credit to exactly one target. Reverted
// allocations are kept with RevertedAt set.
type Allocation struct {
	Base
	UserID   string         `gorm:"type:uuid;not null;index" json:"user_id"`
	CreditID string         `gorm:"type:uuid;not null;index" json:"credit_id"`
	Type     AllocationType `gorm:"column:allocation_type;not null" json:"allocation_type"`
	Amount   money.Cents    `gorm:"column:amount_cents;not null" json:"amount"`

	TargetKind          TargetKind `gorm:"not null" json:"target_kind"`
	TargetTransactionID *string    `gorm:"type:uuid;index" json:"target_transaction_id,omitempty"`
	TargetSpreadItemID  *string    `gorm:"type:uuid;index" json:"target_spread_item_id,omitempty"`
	TargetCategoryID    *string    `gorm:"type:uuid" json:"target_category_id,omitempty"`
	TargetGoalID        *string    `gorm:"type:uuid;index" json:"target_goal_id,omitempty"`

	Label      string     `json:"label"`
	Month      string     `gorm:"size:7;not null;index" json:"month"`
	ParentID   *string    `gorm:"index" json:"parent_id,omitempty"`
	RevertedAt *time.Time `json:"reverted_at,omitempty"`
}

// TargetID returns the id of whichever target the allocation points at.
func (a *Allocation) TargetID() string {
	for _, id := range []*string{a.TargetTransactionID, a.TargetSpreadItemID, a.TargetCategoryID, a.TargetGoalID} {
		if id != nil {
			return *id
		}
	}
	return ""
}

// IsReverted reports whether the allocation has been undone.
func (a *Allocation) IsReverted() bool {
	return a.RevertedAt != nil
}
