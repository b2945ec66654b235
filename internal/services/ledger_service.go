package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "creditflow/internal/errors"
	"creditflow/internal/events"
	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/pagination"
)

// maxImportBatch bounds a single pipeline import.
const maxImportBatch = 1000

// ledgerService owns transactions and their remaining/allocated bookkeeping.
type ledgerService struct {
	db        *gorm.DB
	publisher events.Publisher
}

// NewLedgerService creates a new LedgerServicer.
func NewLedgerService(db *gorm.DB, publisher events.Publisher) LedgerServicer {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ledgerService{db: db, publisher: publisher}
}

// CreateTransaction records a single transaction.
func (s *ledgerService) CreateTransaction(ctx context.Context, userID string, in NewTransaction) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.createTransactionWithDB(tx, userID, in)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ImportTransactions records a batch of transactions atomically.
func (s *ledgerService) ImportTransactions(ctx context.Context, userID string, items []NewTransaction) ([]models.Transaction, error) {
	if len(items) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "at least one transaction is required")
	}
	if len(items) > maxImportBatch {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("at most %d transactions per import", maxImportBatch))
	}

	created := make([]models.Transaction, 0, len(items))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, item := range items {
			t, err := s.createTransactionWithDB(tx, userID, item)
			if err != nil {
				var appErr *apperrors.AppError
				if errors.As(err, &appErr) {
					return apperrors.WithMessage(appErr, fmt.Sprintf("transaction %d: %s", i, appErr.Message))
				}
				return err
			}
			created = append(created, *t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// createTransactionWithDB creates a transaction with a given database connection (useful for transactions)
func (s *ledgerService) createTransactionWithDB(tx *gorm.DB, userID string, in NewTransaction) (*models.Transaction, error) {
	if in.Amount == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must not be zero")
	}
	if in.Amount > 0 && (in.IsReturn || in.IsHealthcare) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "only expenses can be flagged as return or healthcare")
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}
	in.Date = in.Date.UTC()

	var category *models.Category
	if in.CategoryID != nil {
		var err error
		category, err = findCategory(tx, userID, *in.CategoryID)
		if err != nil {
			return nil, err
		}
	}

	t := &models.Transaction{
		UserID:          userID,
		Date:            in.Date,
		Amount:          in.Amount,
		Description:     strings.TrimSpace(in.Description),
		CategoryID:      in.CategoryID,
		IsReturn:        in.IsReturn,
		IsHealthcare:    in.IsHealthcare,
		IsFixed:         in.IsFixed,
		IsAmortized:     in.IsAmortized,
		IsUserEntered:   in.IsUserEntered,
		RemainingAmount: in.Amount.Abs(),
	}
	if in.Amount > 0 {
		t.CreditAllocation = models.CreditAllocationUnallocated
		if category != nil && category.Type == models.CategoryTypeIncome {
			t.CreditAllocation = models.CreditAllocationIncome
		}
	}
	t.RefreshStatuses()

	if err := tx.Create(t).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return t, nil
}

// GetTransaction retrieves a transaction by ID for a specific user
func (s *ledgerService) GetTransaction(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.WithContext(ctx).Preload("Category").
		Scopes(models.OwnedRow(transactionID, userID)).
		First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &t, nil
}

// ListTransactions retrieves a paginated, filtered list of a user's transactions.
func (s *ledgerService) ListTransactions(ctx context.Context, userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	base := s.db.WithContext(ctx).Model(&models.Transaction{}).Scopes(models.OwnedBy(userID))
	base = applyTransactionFilters(base, filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Scopes(pagination.Paginate(page)).
		Preload("Category").
		Order("date DESC").
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		q = q.Where("date <= ?", *f.ToDate)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	switch f.Direction {
	case "credit":
		q = q.Where("amount_cents > 0")
	case "expense":
		q = q.Where("amount_cents < 0")
	}
	if f.OnlyReturns {
		q = q.Where("is_return = ?", true)
	}
	return q
}

// ListCredits returns the month's incoming transactions still in the triage
// pool, newest first. Positive amounts classified as income are excluded.
func (s *ledgerService) ListCredits(ctx context.Context, userID, month string) ([]models.Transaction, error) {
	start, end, err := models.MonthBounds(month)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "month must be YYYY-MM")
	}

	credits := []models.Transaction{}
	if err := s.db.WithContext(ctx).Preload("Category").
		Where("user_id = ? AND amount_cents > 0 AND credit_allocation = ?", userID, models.CreditAllocationUnallocated).
		Where("date >= ? AND date < ?", start, end).
		Order("date DESC, id DESC").
		Find(&credits).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return credits, nil
}

// ListPendingReturns returns return-flagged purchases still awaiting a refund.
func (s *ledgerService) ListPendingReturns(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	returns := []models.Transaction{}
	if err := s.db.WithContext(ctx).Preload("Category").
		Where("user_id = ? AND amount_cents < 0 AND is_return = ? AND return_status = ? AND remaining_cents > 0",
			userID, true, models.ReturnStatusPending).
		Order("date DESC").
		Limit(limit).
		Find(&returns).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return returns, nil
}

// UpdateTransaction applies a partial edit. Flag changes re-derive the
// return and reimbursement statuses; a flag cannot be cleared while live
// allocations depend on it.
func (s *ledgerService) UpdateTransaction(ctx context.Context, userID, transactionID string, update TransactionUpdate) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTransaction(tx, userID, transactionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrTransactionNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if update.Description != nil {
			t.Description = strings.TrimSpace(*update.Description)
		}

		categoryChanged := false
		var category *models.Category
		switch {
		case update.ClearCategory:
			categoryChanged = t.CategoryID != nil
			t.CategoryID = nil
		case update.CategoryID != nil:
			category, err = findCategory(tx, userID, *update.CategoryID)
			if err != nil {
				return err
			}
			categoryChanged = t.CategoryID == nil || *t.CategoryID != category.ID
			t.CategoryID = &category.ID
		}

		if (update.IsReturn != nil && *update.IsReturn) || (update.IsHealthcare != nil && *update.IsHealthcare) {
			if !t.IsExpense() {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "only expenses can be flagged as return or healthcare")
			}
		}
		if update.IsReturn != nil && !*update.IsReturn && t.IsReturn {
			if err := ensureNoLiveTargetAllocations(tx, t.ID, models.AllocationTypeReturn); err != nil {
				return err
			}
		}
		if update.IsHealthcare != nil && !*update.IsHealthcare && t.IsHealthcare {
			if err := ensureNoLiveTargetAllocations(tx, t.ID, models.AllocationTypeHealthcare); err != nil {
				return err
			}
		}
		if update.IsReturn != nil {
			t.IsReturn = *update.IsReturn
		}
		if update.IsHealthcare != nil {
			t.IsHealthcare = *update.IsHealthcare
		}
		if update.IsFixed != nil {
			t.IsFixed = *update.IsFixed
		}
		if update.IsAmortized != nil {
			t.IsAmortized = *update.IsAmortized
		}

		// A positive transaction with nothing allocated follows its category
		// in and out of the triage pool.
		if categoryChanged && t.Amount > 0 && t.AllocatedAmount == 0 {
			if category != nil && category.Type == models.CategoryTypeIncome {
				t.CreditAllocation = models.CreditAllocationIncome
			} else {
				t.CreditAllocation = models.CreditAllocationUnallocated
			}
		}
		t.RefreshStatuses()

		if err := tx.Model(t).Select(
			"description", "category_id", "is_return", "is_healthcare", "is_fixed", "is_amortized",
			"return_status", "reimbursement_status", "credit_allocation",
		).Updates(t).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteTransaction soft-deletes a user-entered transaction that no live
// allocation references.
func (s *ledgerService) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTransaction(tx, userID, transactionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrTransactionNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if !t.IsUserEntered {
			return apperrors.ErrTransactionNotDeletable
		}

		var live int64
		if err := tx.Model(&models.Allocation{}).
			Where("reverted_at IS NULL AND (credit_id = ? OR target_transaction_id = ?)", t.ID, t.ID).
			Count(&live).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if live > 0 {
			return apperrors.ErrTransactionHasAllocations
		}

		if err := tx.Delete(t).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// ResetCredit puts a positive transaction back into the triage pool.
func (s *ledgerService) ResetCredit(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTransaction(tx, userID, transactionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrTransactionNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if t.Amount <= 0 {
			return apperrors.ErrNotACredit
		}
		if t.CreditAllocation != models.CreditAllocationUnallocated {
			t.CreditAllocation = models.CreditAllocationUnallocated
			if err := tx.Model(t).Update("credit_allocation", t.CreditAllocation).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishEvents(ctx, s.publisher, events.AllocationEvent{
		Type:      events.TypeCreditReset,
		UserID:    userID,
		CreditID:  result.ID,
		Amount:    result.Amount,
		Remaining: result.RemainingAmount,
		Timestamp: time.Now().UTC(),
	})
	return result, nil
}

// AdjustRemaining applies delta to a transaction's remaining amount and -delta
// to its allocated amount inside the caller's transaction. The update is
// conditional, so a stale read can never push either side below zero.
func (s *ledgerService) AdjustRemaining(tx *gorm.DB, transactionID string, delta money.Cents) (*models.Transaction, error) {
	res := tx.Model(&models.Transaction{}).
		Where("id = ?", transactionID).
		Where("remaining_cents + ? >= 0 AND allocated_cents - ? >= 0", int64(delta), int64(delta)).
		Updates(map[string]interface{}{
			"remaining_cents": gorm.Expr("remaining_cents + ?", int64(delta)),
			"allocated_cents": gorm.Expr("allocated_cents - ?", int64(delta)),
		})
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.Transaction{}).Where("id = ?", transactionID).Count(&count).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count == 0 {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.WithMessage(apperrors.ErrInvariantViolation,
			fmt.Sprintf("adjusting transaction %s by %s would leave its remaining amount out of range", transactionID, delta))
	}

	var t models.Transaction
	if err := tx.Where("id = ?", transactionID).First(&t).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &t, nil
}

// lockTransaction loads a user's transaction with a row lock held until the
// surrounding transaction ends. SQLite ignores the lock clause.
func lockTransaction(tx *gorm.DB, userID, transactionID string) (*models.Transaction, error) {
	var t models.Transaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(models.OwnedRow(transactionID, userID)).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func findCategory(tx *gorm.DB, userID, categoryID string) (*models.Category, error) {
	var category models.Category
	if err := tx.Scopes(models.OwnedRow(categoryID, userID)).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

func ensureNoLiveTargetAllocations(tx *gorm.DB, transactionID string, allocationType models.AllocationType) error {
	var live int64
	if err := tx.Model(&models.Allocation{}).
		Where("target_transaction_id = ? AND allocation_type = ? AND reverted_at IS NULL", transactionID, allocationType).
		Count(&live).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if live > 0 {
		return apperrors.WithMessage(apperrors.ErrTransactionHasAllocations,
			fmt.Sprintf("transaction has live %s allocations; revert them first", allocationType))
	}
	return nil
}
