package testutil_test

import (
	"testing"

	"creditflow/internal/errors"
	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/testutil"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	// Verify all tables exist by doing a simple count query on each model.
	var count int64
	for _, table := range []string{"categories", "transactions", "goals", "spread_items", "allocations", "audit_logs"} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestSetupTestDBIsolation(t *testing.T) {
	db1 := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db1)
	db2 := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db2)

	testutil.CreateTestCategory(t, db1, testutil.NewUserID(), models.CategoryTypeExpense)

	var count int64
	if err := db2.Model(&models.Category{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected isolated database, found %d categories", count)
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	userID := testutil.NewUserID()

	credit := testutil.CreateTestCredit(t, db, userID, 4217, "Target Refund", testutil.DaysAgo(1))
	if !credit.IsCredit() {
		t.Error("expected fixture to be an unallocated credit")
	}
	testutil.AssertTransactionBalance(t, credit, 4217, 0)

	expense := testutil.CreateTestReturnExpense(t, db, userID, 4217, "Target", testutil.DaysAgo(3))
	if expense.Amount != -4217 {
		t.Errorf("expected amount -4217, got %d", expense.Amount)
	}
	if expense.ReturnStatus != models.ReturnStatusPending {
		t.Errorf("expected pending return, got %s", expense.ReturnStatus)
	}

	hc := testutil.CreateTestHealthcareExpense(t, db, userID, 15000, "Clinic", testutil.DaysAgo(10))
	if hc.ReimbursementStatus != models.ReimbursementStatusPending {
		t.Errorf("expected pending reimbursement, got %s", hc.ReimbursementStatus)
	}

	goal := testutil.CreateTestGoal(t, db, userID, 50000, 10000)
	if goal.Remaining() != money.Cents(40000) {
		t.Errorf("expected goal room 40000, got %d", goal.Remaining())
	}

	item := testutil.CreateTestSpreadItem(t, db, userID, 10000, 12, "2024-01")
	if item.TotalAmount != 120000 {
		t.Errorf("expected total 120000, got %d", item.TotalAmount)
	}

	reloaded := testutil.ReloadTransaction(t, db, credit.ID)
	if reloaded.Description != "Target Refund" {
		t.Errorf("expected reloaded description, got %s", reloaded.Description)
	}
}

func TestAssertAppError(t *testing.T) {
	err := errors.WithMessage(errors.ErrCreditNotFound, "custom message")
	testutil.AssertAppError(t, err, "CREDIT_NOT_FOUND")
}

func TestAssertNoError(t *testing.T) {
	testutil.AssertNoError(t, nil)
}
