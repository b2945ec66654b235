package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "creditflow/internal/errors"
	"creditflow/internal/models"
	"creditflow/internal/money"
)

// maxSpreadMonths bounds how long an expense can be amortized.
const maxSpreadMonths = 120

// spreadService handles amortized spread items.
type spreadService struct {
	db *gorm.DB
}

// NewSpreadService creates a new SpreadServicer.
func NewSpreadService(db *gorm.DB) SpreadServicer {
	return &spreadService{db: db}
}

// CreateSpreadItem amortizes an amount over a number of months. When the item
// is linked to an expense, the expense is marked amortized and supplies the
// defaults for description, total and start month.
func (s *spreadService) CreateSpreadItem(ctx context.Context, userID string, in NewSpreadItem) (*models.SpreadItem, error) {
	if in.Months < 1 || in.Months > maxSpreadMonths {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "months must be between 1 and 120")
	}
	if in.StartMonth != "" {
		if _, err := time.Parse(models.MonthLayout, in.StartMonth); err != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "start_month must be YYYY-MM")
		}
	}

	var item *models.SpreadItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.TransactionID != nil {
			var source models.Transaction
			if err := tx.Scopes(models.OwnedRow(*in.TransactionID, userID)).First(&source).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.ErrTransactionNotFound
				}
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if !source.IsExpense() {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "only expenses can be spread")
			}
			if in.Description == "" {
				in.Description = source.Description
			}
			if in.TotalAmount == 0 {
				in.TotalAmount = source.Amount.Abs()
			}
			if in.StartMonth == "" {
				in.StartMonth = models.MonthOf(source.Date)
			}
			if err := tx.Model(&source).Update("is_amortized", true).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		in.Description = strings.TrimSpace(in.Description)
		if in.Description == "" {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "description is required")
		}
		if in.TotalAmount <= 0 {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "total amount must be greater than zero")
		}
		if in.StartMonth == "" {
			in.StartMonth = models.MonthOf(time.Now())
		}

		item = &models.SpreadItem{
			UserID:         userID,
			TransactionID:  in.TransactionID,
			Description:    in.Description,
			TotalAmount:    in.TotalAmount,
			Months:         in.Months,
			MonthlyPortion: monthlyPortion(in.TotalAmount, in.Months),
			StartMonth:     in.StartMonth,
			IsActive:       true,
		}
		if err := tx.Create(item).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// monthlyPortion rounds up so the portions cover the total.
func monthlyPortion(total money.Cents, months int) money.Cents {
	n := money.Cents(months)
	return (total + n - 1) / n
}

// GetSpreadItem retrieves a spread item by ID for a specific user.
func (s *spreadService) GetSpreadItem(ctx context.Context, userID, itemID string) (*models.SpreadItem, error) {
	var item models.SpreadItem
	if err := s.db.WithContext(ctx).Scopes(models.OwnedRow(itemID, userID)).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSpreadItemNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &item, nil
}

// ListSpreadItems returns the user's spread items. A non-empty month keeps
// only the items with a portion due that month.
func (s *spreadService) ListSpreadItems(ctx context.Context, userID, month string) ([]models.SpreadItem, error) {
	if month != "" {
		if _, err := time.Parse(models.MonthLayout, month); err != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "month must be YYYY-MM")
		}
	}

	var items []models.SpreadItem
	if err := s.db.WithContext(ctx).
		Scopes(models.OwnedBy(userID)).
		Order("start_month ASC, created_at ASC").
		Find(&items).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if month == "" {
		return items, nil
	}
	active := make([]models.SpreadItem, 0, len(items))
	for _, item := range items {
		if item.ActiveIn(month) {
			active = append(active, item)
		}
	}
	return active, nil
}
