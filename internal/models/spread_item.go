package models

import (
	"fmt"
	"time"

	"creditflow/internal/money"
)

// MonthLayout is the YYYY-MM layout used for month keys.
const MonthLayout = "2006-01"

// SpreadItem is a large expense amortized over a number of months.
type SpreadItem struct {
	Base
	UserID         string      `gorm:"type:uuid;not null;index" json:"user_id"`
	TransactionID  *string     `gorm:"type:uuid" json:"transaction_id,omitempty"`
	Description    string      `gorm:"not null" json:"description"`
	TotalAmount    money.Cents `gorm:"column:total_cents;not null" json:"total_amount"`
	Months         int         `gorm:"not null" json:"months"`
	MonthlyPortion money.Cents `gorm:"column:monthly_portion_cents;not null" json:"monthly_portion"`
	StartMonth     string      `gorm:"size:7;not null" json:"start_month"`
	IsActive       bool        `gorm:"not null;default:true" json:"is_active"`
}

// ActiveIn reports whether the item has a portion due in the given YYYY-MM month.
func (s *SpreadItem) ActiveIn(month string) bool {
	if !s.IsActive {
		return false
	}
	start, err := time.Parse(MonthLayout, s.StartMonth)
	if err != nil {
		return false
	}
	m, err := time.Parse(MonthLayout, month)
	if err != nil {
		return false
	}
	end := start.AddDate(0, s.Months, 0)
	return !m.Before(start) && m.Before(end)
}

// MonthsRemaining returns how many portions are still due from month on.
func (s *SpreadItem) MonthsRemaining(month string) int {
	start, err1 := time.Parse(MonthLayout, s.StartMonth)
	m, err2 := time.Parse(MonthLayout, month)
	if err1 != nil || err2 != nil {
		return 0
	}
	elapsed := (m.Year()-start.Year())*12 + int(m.Month()-start.Month())
	left := s.Months - elapsed
	if left < 0 {
		return 0
	}
	if left > s.Months {
		return s.Months
	}
	return left
}

// MonthOf returns the YYYY-MM key of t.
func MonthOf(t time.Time) string {
	return t.Format(MonthLayout)
}

// MonthBounds returns the half-open [start, end) interval of a YYYY-MM month in UTC.
func MonthBounds(month string) (time.Time, time.Time, error) {
	start, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q: %w", month, err)
	}
	return start, start.AddDate(0, 1, 0), nil
}
