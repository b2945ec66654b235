package testutil

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	apperrors "creditflow/internal/errors"
	"creditflow/internal/models"
	"creditflow/internal/money"
)

// AssertAppError checks that err is an *AppError with the expected error code.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError %s, got %T: %v", expectedCode, err, err)
	}

	if appErr.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertLiveAllocations checks that a credit's allocated amount equals the
// sum of its unreverted allocations.
func AssertLiveAllocations(t *testing.T, db *gorm.DB, creditID string) {
	t.Helper()

	credit := ReloadTransaction(t, db, creditID)

	var live int64
	if err := db.Model(&models.Allocation{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("credit_id = ? AND reverted_at IS NULL", creditID).
		Scan(&live).Error; err != nil {
		t.Fatalf("failed to sum allocations: %v", err)
	}
	if money.Cents(live) != credit.AllocatedAmount {
		t.Errorf("live allocations %s != allocated %s for credit %s", money.Cents(live), credit.AllocatedAmount, creditID)
	}
}
