package services

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"

	apperrors "creditflow/internal/errors"
	"creditflow/internal/models"
	"creditflow/internal/money"
)

// Search types.
const (
	SearchTypeReturn     = "return"
	SearchTypeHealthcare = "healthcare"
)

// SuggestionThreshold is the score a candidate must exceed to be suggested.
const SuggestionThreshold = 0.55

// Scoring weights.
const (
	weightAmount  = 0.5
	weightTokens  = 0.3
	weightRecency = 0.2
)

// SearchWindows is the progressive-widening sequence of look-back windows, in days.
var SearchWindows = []int{90, 180, 365, 730}

// MaxSearchDays is the furthest back a search may look.
const MaxSearchDays = 730

// genericCreditWords carry no information about which purchase a credit settles.
var genericCreditWords = map[string]bool{
	"refund":        true,
	"refunds":       true,
	"return":        true,
	"returns":       true,
	"credit":        true,
	"reimbursement": true,
	"reimb":         true,
	"rebate":        true,
	"payment":       true,
	"deposit":       true,
	"adjustment":    true,
}

// matchingService finds candidate expenses for a credit.
type matchingService struct {
	db           *gorm.DB
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// MatchingOption configures a matching service.
type MatchingOption func(*matchingService)

// WithLimits overrides the default and maximum result counts.
func WithLimits(defaultLimit, maxLimit int) MatchingOption {
	return func(s *matchingService) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

// WithClock sets the clock the search window is anchored to.
func WithClock(now func() time.Time) MatchingOption {
	return func(s *matchingService) {
		s.now = now
	}
}

// NewMatchingService creates a new MatchingServicer.
func NewMatchingService(db *gorm.DB, opts ...MatchingOption) MatchingServicer {
	s := &matchingService{
		db:           db,
		defaultLimit: 50,
		maxLimit:     200,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	return s
}

// Search returns tagged candidates, general results and an optional best match
// for a credit within a look-back window anchored at the current time.
func (s *matchingService) Search(ctx context.Context, userID string, q SearchQuery) (*SearchResult, error) {
	switch q.Type {
	case SearchTypeReturn, SearchTypeHealthcare:
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "type must be return or healthcare")
	}

	days := NormalizeDays(q.Days)
	limit := q.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	now := s.now().UTC()
	since := now.AddDate(0, 0, -days)
	db := s.db.WithContext(ctx)

	tagged := []models.Transaction{}
	taggedQ := s.candidates(db, userID, since, q)
	if q.Type == SearchTypeReturn {
		taggedQ = taggedQ.Where("transactions.is_return = ? AND transactions.return_status = ?", true, models.ReturnStatusPending)
	} else {
		taggedQ = taggedQ.Where("transactions.is_healthcare = ? AND transactions.reimbursement_status IN ?", true,
			[]models.ReimbursementStatus{models.ReimbursementStatusPending, models.ReimbursementStatusPartial})
	}
	if err := taggedQ.Order("transactions.date DESC, transactions.id DESC").Limit(limit).Find(&tagged).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	results := []models.Transaction{}
	if err := s.candidates(db, userID, since, q).
		Order("transactions.date DESC, transactions.id DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	out := &SearchResult{
		Tagged:    tagged,
		Results:   results,
		Days:      days,
		NextDays:  NextWindow(days),
		Exhausted: days >= MaxSearchDays,
	}

	if q.CreditAmount > 0 {
		seen := make(map[string]bool, len(tagged)+len(results))
		best, bestScore := -1, 0.0
		pool := append(append([]models.Transaction{}, tagged...), results...)
		for i := range pool {
			if seen[pool[i].ID] {
				continue
			}
			seen[pool[i].ID] = true
			score := ScoreCandidate(q.CreditAmount, q.CreditDesc, &pool[i], now, days)
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best >= 0 && bestScore > SuggestionThreshold {
			suggested := pool[best]
			out.Suggested = &suggested
			out.SuggestedScore = math.Round(bestScore*1000) / 1000
		}
	}

	return out, nil
}

// candidates builds the shared filter: the user's expenses with an unmatched
// balance inside the window, narrowed by category and free text.
func (s *matchingService) candidates(db *gorm.DB, userID string, since time.Time, q SearchQuery) *gorm.DB {
	query := db.Model(&models.Transaction{}).
		Select("transactions.*").
		Joins("LEFT JOIN categories ON categories.id = transactions.category_id").
		Preload("Category").
		Where("transactions.user_id = ?", userID).
		Where("transactions.amount_cents < 0 AND transactions.remaining_cents > 0").
		Where("transactions.date >= ?", since)

	if q.Category != "" {
		query = query.Where("transactions.category_id = ?", q.Category)
	}
	if text := strings.TrimSpace(q.Query); text != "" {
		like := "%" + escapeLike(strings.ToLower(text)) + "%"
		query = query.Where(
			"LOWER(transactions.description) LIKE ? ESCAPE '\\' OR LOWER(COALESCE(categories.name, '')) LIKE ? ESCAPE '\\'",
			like, like,
		)
	}
	return query
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// NormalizeDays defaults a missing window to the first step and clamps it to
// the supported range.
func NormalizeDays(days int) int {
	if days <= 0 {
		return SearchWindows[0]
	}
	if days > MaxSearchDays {
		return MaxSearchDays
	}
	return days
}

// NextWindow returns the next wider window after days, or nil once the
// ceiling has been reached.
func NextWindow(days int) *int {
	for _, w := range SearchWindows {
		if w > days {
			next := w
			return &next
		}
	}
	return nil
}

// ScoreCandidate rates how likely an expense is to be the purchase a credit
// settles: amount closeness, description overlap and recency within the window.
func ScoreCandidate(creditAmount money.Cents, creditDesc string, tx *models.Transaction, now time.Time, days int) float64 {
	return weightAmount*amountCloseness(creditAmount, tx.Amount.Abs()) +
		weightTokens*tokenOverlap(creditDesc, tx.Description) +
		weightRecency*recency(tx.Date, now, days)
}

func amountCloseness(credit, candidate money.Cents) float64 {
	if credit <= 0 {
		return 0
	}
	diff := float64((credit - candidate).Abs())
	closeness := 1 - diff/float64(credit)
	if closeness < 0 {
		return 0
	}
	return closeness
}

func tokenOverlap(creditDesc, candidateDesc string) float64 {
	tokens := significantTokens(creditDesc)
	if len(tokens) == 0 {
		return 0
	}
	candidate := strings.ToLower(candidateDesc)
	words := make(map[string]bool)
	for _, w := range tokenize(candidateDesc) {
		words[w] = true
	}

	matched := 0
	for _, t := range tokens {
		if words[t] || strings.Contains(candidate, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

func recency(date, now time.Time, days int) float64 {
	if days <= 0 {
		return 0
	}
	age := now.Sub(date).Hours() / 24
	if age < 0 {
		age = 0
	}
	r := 1 - age/float64(days)
	if r < 0 {
		return 0
	}
	return r
}

func significantTokens(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range tokenize(s) {
		if len(t) < 2 || genericCreditWords[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
