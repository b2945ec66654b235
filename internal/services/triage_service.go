package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "creditflow/internal/errors"
	"creditflow/internal/models"
	"creditflow/internal/money"
)

// pendingReturnsLimit caps the pending returns shown on the triage screen.
const pendingReturnsLimit = 50

// triageService composes the read-only triage view from the other services.
type triageService struct {
	ledger      LedgerServicer
	allocations AllocationServicer
	goals       GoalServicer
	spreads     SpreadServicer
	categories  CategoryServicer
}

// NewTriageService creates a new TriageServicer.
func NewTriageService(
	ledger LedgerServicer,
	allocations AllocationServicer,
	goals GoalServicer,
	spreads SpreadServicer,
	categories CategoryServicer,
) TriageServicer {
	return &triageService{
		ledger:      ledger,
		allocations: allocations,
		goals:       goals,
		spreads:     spreads,
		categories:  categories,
	}
}

// GetUnallocated returns the month's credits split by state, with their live
// allocations, and the targets a credit can be assigned to. Month defaults to
// the current one.
func (s *triageService) GetUnallocated(ctx context.Context, userID, month string) (*TriageView, error) {
	if month == "" {
		month = models.MonthOf(time.Now().UTC())
	}
	if _, _, err := models.MonthBounds(month); err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "month must be YYYY-MM")
	}

	var (
		credits    []models.Transaction
		liveAllocs map[string][]models.Allocation
		goals      []models.Goal
		categories []models.Category
		returns    []models.Transaction
		items      []models.SpreadItem
		offsets    map[string]money.Cents
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		credits, err = s.ledger.ListCredits(gctx, userID, month)
		if err != nil {
			return err
		}
		ids := make([]string, len(credits))
		for i := range credits {
			ids[i] = credits[i].ID
		}
		liveAllocs, err = s.allocations.LiveAllocations(gctx, userID, ids)
		return err
	})
	g.Go(func() error {
		var err error
		goals, err = s.goals.ListGoals(gctx, userID, true)
		return err
	})
	g.Go(func() error {
		expense := models.CategoryTypeExpense
		var err error
		categories, err = s.categories.ListCategories(gctx, userID, &expense)
		return err
	})
	g.Go(func() error {
		var err error
		returns, err = s.ledger.ListPendingReturns(gctx, userID, pendingReturnsLimit)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.spreads.ListSpreadItems(gctx, userID, month)
		if err != nil {
			return err
		}
		offsets, err = s.allocations.SpreadOffsets(gctx, userID, month)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &TriageView{
		Month:             month,
		Credits:           []CreditView{},
		AllocatedCredits:  []CreditView{},
		Goals:             make([]GoalOption, 0, len(goals)),
		ExpenseCategories: categories,
		PendingReturns:    returns,
		SpreadItems:       make([]SpreadOption, 0, len(items)),
	}

	// credits arrive newest first, which is the order both lists use.
	for _, c := range credits {
		allocs := liveAllocs[c.ID]
		if allocs == nil {
			allocs = []models.Allocation{}
		}
		cv := CreditView{Transaction: c, State: CreditStateOf(&c), Allocations: allocs}
		if cv.State == CreditStateFullyAllocated {
			view.AllocatedCredits = append(view.AllocatedCredits, cv)
			continue
		}
		view.Credits = append(view.Credits, cv)
		view.TotalUnallocated += c.RemainingAmount
	}

	for _, goal := range goals {
		if room := goal.Remaining(); room > 0 {
			view.Goals = append(view.Goals, GoalOption{Goal: goal, Room: room})
		}
	}

	for _, item := range items {
		left := item.MonthlyPortion - offsets[item.ID]
		if left < 0 {
			left = 0
		}
		view.SpreadItems = append(view.SpreadItems, SpreadOption{
			SpreadItem:         item,
			RemainingThisMonth: left,
			MonthsRemaining:    item.MonthsRemaining(month),
		})
	}

	return view, nil
}

// CreditStateOf derives a credit's triage state from its balances.
func CreditStateOf(t *models.Transaction) CreditState {
	switch {
	case t.RemainingAmount <= 0:
		return CreditStateFullyAllocated
	case t.RemainingAmount >= t.Amount.Abs():
		return CreditStateUnallocated
	default:
		return CreditStatePartiallyAllocated
	}
}
