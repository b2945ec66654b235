package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/uuid"

	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewUserID returns a fresh user id. Users live in the session provider, so
// tests only need distinct ids.
func NewUserID() string {
	return uuid.New()
}

// DaysAgo returns the current time shifted back by n days.
func DaysAgo(n int) time.Time {
	return time.Now().AddDate(0, 0, -n)
}

// CreateTestCategory creates a category of the given type.
func CreateTestCategory(t *testing.T, db *gorm.DB, userID string, categoryType models.CategoryType) *models.Category {
	t.Helper()
	return CreateTestCategoryNamed(t, db, userID, fmt.Sprintf("Test Category %d", nextID()), categoryType)
}

// CreateTestCategoryNamed creates a category with the given name and type.
func CreateTestCategoryNamed(t *testing.T, db *gorm.DB, userID, name string, categoryType models.CategoryType) *models.Category {
	t.Helper()

	category := &models.Category{
		UserID: userID,
		Name:   name,
		Type:   categoryType,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestTransaction inserts tx after filling in the ledger defaults:
// remaining starts at |amount| and statuses follow the flags.
func CreateTestTransaction(t *testing.T, db *gorm.DB, tx *models.Transaction) *models.Transaction {
	t.Helper()

	if tx.Date.IsZero() {
		tx.Date = time.Now()
	}
	tx.Date = tx.Date.UTC()
	if tx.Description == "" {
		tx.Description = fmt.Sprintf("Test Transaction %d", nextID())
	}
	tx.RemainingAmount = tx.Amount.Abs()
	tx.AllocatedAmount = 0
	tx.RefreshStatuses()

	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestCredit creates an unallocated incoming transaction of amount cents.
func CreateTestCredit(t *testing.T, db *gorm.DB, userID string, amount money.Cents, description string, date time.Time) *models.Transaction {
	t.Helper()
	return CreateTestTransaction(t, db, &models.Transaction{
		UserID:           userID,
		Amount:           amount,
		Description:      description,
		Date:             date,
		CreditAllocation: models.CreditAllocationUnallocated,
	})
}

// CreateTestExpense creates an outgoing transaction; amount is the positive magnitude.
func CreateTestExpense(t *testing.T, db *gorm.DB, userID string, amount money.Cents, description string, date time.Time) *models.Transaction {
	t.Helper()
	return CreateTestTransaction(t, db, &models.Transaction{
		UserID:      userID,
		Amount:      -amount,
		Description: description,
		Date:        date,
	})
}

// CreateTestReturnExpense creates an expense flagged as awaiting a return refund.
func CreateTestReturnExpense(t *testing.T, db *gorm.DB, userID string, amount money.Cents, description string, date time.Time) *models.Transaction {
	t.Helper()
	return CreateTestTransaction(t, db, &models.Transaction{
		UserID:      userID,
		Amount:      -amount,
		Description: description,
		Date:        date,
		IsReturn:    true,
	})
}

// CreateTestHealthcareExpense creates an expense flagged as awaiting reimbursement.
func CreateTestHealthcareExpense(t *testing.T, db *gorm.DB, userID string, amount money.Cents, description string, date time.Time) *models.Transaction {
	t.Helper()
	return CreateTestTransaction(t, db, &models.Transaction{
		UserID:       userID,
		Amount:       -amount,
		Description:  description,
		Date:         date,
		IsHealthcare: true,
	})
}

// CreateTestGoal creates an active fund goal with the given target and progress.
func CreateTestGoal(t *testing.T, db *gorm.DB, userID string, target, current money.Cents) *models.Goal {
	t.Helper()

	goal := &models.Goal{
		UserID:        userID,
		Name:          fmt.Sprintf("Test Goal %d", nextID()),
		GoalType:      models.GoalTypeFundTarget,
		TargetAmount:  target,
		CurrentAmount: current,
		IsActive:      true,
	}
	if err := db.Create(goal).Error; err != nil {
		t.Fatalf("failed to create test goal: %v", err)
	}
	return goal
}

// CreateTestSpreadItem creates an active spread item starting in startMonth.
func CreateTestSpreadItem(t *testing.T, db *gorm.DB, userID string, monthly money.Cents, months int, startMonth string) *models.SpreadItem {
	t.Helper()

	item := &models.SpreadItem{
		UserID:         userID,
		Description:    fmt.Sprintf("Test Spread %d", nextID()),
		TotalAmount:    monthly * money.Cents(months),
		Months:         months,
		MonthlyPortion: monthly,
		StartMonth:     startMonth,
		IsActive:       true,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create test spread item: %v", err)
	}
	return item
}

// ReloadTransaction reads the current state of a transaction.
func ReloadTransaction(t *testing.T, db *gorm.DB, id string) *models.Transaction {
	t.Helper()

	var tx models.Transaction
	if err := db.First(&tx, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload transaction %s: %v", id, err)
	}
	return &tx
}

// AssertTransactionBalance checks that remaining and allocated amounts match and sum to |amount|.
func AssertTransactionBalance(t *testing.T, tx *models.Transaction, remaining, allocated money.Cents) {
	t.Helper()

	if tx.RemainingAmount != remaining {
		t.Errorf("expected remaining %s, got %s", remaining, tx.RemainingAmount)
	}
	if tx.AllocatedAmount != allocated {
		t.Errorf("expected allocated %s, got %s", allocated, tx.AllocatedAmount)
	}
	if tx.RemainingAmount+tx.AllocatedAmount != tx.Amount.Abs() {
		t.Errorf("remaining %s + allocated %s does not equal |amount| %s", tx.RemainingAmount, tx.AllocatedAmount, tx.Amount.Abs())
	}
}
