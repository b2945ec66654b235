package models

import (
	"time"

	"creditflow/internal/money"
)

// ReturnStatus tracks a return-flagged purchase until its refund arrives.
type ReturnStatus string

const (
	ReturnStatusNone     ReturnStatus = "none"
	ReturnStatusPending  ReturnStatus = "pending"
	ReturnStatusReceived ReturnStatus = "received"
)

// ReimbursementStatus tracks a healthcare expense until it is reimbursed.
type ReimbursementStatus string

const (
	ReimbursementStatusNone     ReimbursementStatus = "none"
	ReimbursementStatusPending  ReimbursementStatus = "pending"
	ReimbursementStatusPartial  ReimbursementStatus = "partial"
	ReimbursementStatusComplete ReimbursementStatus = "complete"
)

// CreditAllocation classifies an incoming transaction for triage.
type CreditAllocation string

const (
	CreditAllocationNone        CreditAllocation = ""
	CreditAllocationUnallocated CreditAllocation = "unallocated"
	CreditAllocationIncome      CreditAllocation = "income"
)

// Transaction represents a synced or user-entered financial event.
//
// RemainingAmount is the unmatched portion of |Amount|: for a credit it is the
// part not yet allocated, for a return or healthcare expense the part not yet
// refunded. AllocatedAmount + RemainingAmount always equals |Amount|.
type Transaction struct {
	Base
	UserID      string      `gorm:"type:uuid;not null;index" json:"user_id"`
	Date        time.Time   `gorm:"not null;index" json:"date"`
	Amount      money.Cents `gorm:"column:amount_cents;not null" json:"amount"`
	Description string      `json:"description"`
	CategoryID  *string     `gorm:"type:uuid" json:"category_id,omitempty"`

	IsReturn      bool `gorm:"not null;default:false" json:"is_return"`
	IsHealthcare  bool `gorm:"not null;default:false" json:"is_healthcare"`
	IsFixed       bool `gorm:"not null;default:false" json:"is_fixed"`
	IsAmortized   bool `gorm:"not null;default:false" json:"is_amortized"`
	IsUserEntered bool `gorm:"not null;default:false" json:"is_user_entered"`

	ReturnStatus        ReturnStatus        `gorm:"not null;default:none" json:"return_status"`
	ReimbursementStatus ReimbursementStatus `gorm:"not null;default:none" json:"reimbursement_status"`
	CreditAllocation    CreditAllocation    `gorm:"not null;default:''" json:"credit_allocation,omitempty"`

	RemainingAmount money.Cents `gorm:"column:remaining_cents;not null;default:0" json:"remaining_amount"`
	AllocatedAmount money.Cents `gorm:"column:allocated_cents;not null;default:0" json:"allocated_amount"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// IsCredit reports whether the transaction is an incoming amount awaiting triage.
func (t *Transaction) IsCredit() bool {
	return t.Amount > 0 && t.CreditAllocation == CreditAllocationUnallocated
}

// IsExpense reports whether the transaction is an outgoing amount.
func (t *Transaction) IsExpense() bool {
	return t.Amount < 0
}

// RefreshStatuses re-derives return and reimbursement status from the flags
// and the remaining unmatched balance.
func (t *Transaction) RefreshStatuses() {
	if !t.IsReturn {
		t.ReturnStatus = ReturnStatusNone
	} else if t.RemainingAmount <= 0 {
		t.ReturnStatus = ReturnStatusReceived
	} else {
		t.ReturnStatus = ReturnStatusPending
	}

	switch {
	case !t.IsHealthcare:
		t.ReimbursementStatus = ReimbursementStatusNone
	case t.RemainingAmount <= 0:
		t.ReimbursementStatus = ReimbursementStatusComplete
	case t.RemainingAmount < t.Amount.Abs():
		t.ReimbursementStatus = ReimbursementStatusPartial
	default:
		t.ReimbursementStatus = ReimbursementStatusPending
	}
}
