// Package errors provides custom error types for the creditflow API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError with the same code, so that
// errors.Is works against the sentinels even after WithMessage or Wrap.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized  = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidAPIKey = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or missing API key", StatusCode: http.StatusUnauthorized}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Ledger errors.
var (
	ErrTransactionNotFound       = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
	ErrTransactionNotDeletable   = &AppError{Code: "TRANSACTION_NOT_DELETABLE", Message: "Only user-entered transactions can be deleted", StatusCode: http.StatusBadRequest}
	ErrTransactionHasAllocations = &AppError{Code: "TRANSACTION_HAS_ALLOCATIONS", Message: "Transaction is referenced by live allocations", StatusCode: http.StatusConflict}
	ErrInvariantViolation        = &AppError{Code: "INVARIANT_VIOLATION", Message: "Remaining amount would leave the valid range", StatusCode: http.StatusConflict}
	ErrNotACredit                = &AppError{Code: "NOT_A_CREDIT", Message: "Only incoming transactions can be triaged as credits", StatusCode: http.StatusBadRequest}
)

// Category errors.
var (
	ErrCategoryNotFound = &AppError{Code: "CATEGORY_NOT_FOUND", Message: "Category not found", StatusCode: http.StatusNotFound}
)

// Allocation errors.
var (
	ErrCreditNotFound         = &AppError{Code: "CREDIT_NOT_FOUND", Message: "Credit not found", StatusCode: http.StatusNotFound}
	ErrAllocationNotFound     = &AppError{Code: "ALLOCATION_NOT_FOUND", Message: "Allocation not found", StatusCode: http.StatusNotFound}
	ErrAmountExceedsRemaining = &AppError{Code: "AMOUNT_EXCEEDS_REMAINING", Message: "Amount exceeds the credit's remaining balance", StatusCode: http.StatusBadRequest}
	ErrTargetOverMatched      = &AppError{Code: "TARGET_OVER_MATCHED", Message: "Amount exceeds the target's unmatched balance", StatusCode: http.StatusBadRequest}
	ErrAlreadyReverted        = &AppError{Code: "ALREADY_REVERTED", Message: "Allocation has already been reverted", StatusCode: http.StatusConflict}
	ErrInvalidTarget          = &AppError{Code: "INVALID_TARGET", Message: "Target is not valid for this allocation type", StatusCode: http.StatusBadRequest}
)

// Goal errors.
var (
	ErrGoalNotFound       = &AppError{Code: "GOAL_NOT_FOUND", Message: "Goal not found", StatusCode: http.StatusNotFound}
	ErrGoalTargetExceeded = &AppError{Code: "GOAL_TARGET_EXCEEDED", Message: "Amount would push the goal past its target", StatusCode: http.StatusBadRequest}
)

// Spread item errors.
var (
	ErrSpreadItemNotFound = &AppError{Code: "SPREAD_ITEM_NOT_FOUND", Message: "Spread item not found", StatusCode: http.StatusNotFound}
	ErrSpreadItemInactive = &AppError{Code: "SPREAD_ITEM_INACTIVE", Message: "Spread item is not active for this month", StatusCode: http.StatusBadRequest}
)
