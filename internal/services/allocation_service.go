package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "creditflow/internal/errors"
	"creditflow/internal/events"
	"creditflow/internal/logger"
	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/pagination"
)

// allocationService is the only writer of allocations and, through the
// ledger, of the remaining/allocated amounts they move.
type allocationService struct {
	db        *gorm.DB
	ledger    LedgerServicer
	publisher events.Publisher
}

// NewAllocationService creates a new AllocationServicer.
func NewAllocationService(db *gorm.DB, ledger LedgerServicer, publisher events.Publisher) AllocationServicer {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &allocationService{db: db, ledger: ledger, publisher: publisher}
}

// Allocate assigns part of a credit to a target. Every check is repeated
// against locked rows inside one database transaction, so a failure leaves
// no partial state and concurrent requests cannot spend the same money.
func (s *allocationService) Allocate(ctx context.Context, userID string, req AllocateRequest) (*AllocateResult, error) {
	kind, err := validateAllocateRequest(&req)
	if err != nil {
		return nil, err
	}

	var (
		result  *AllocateResult
		pending []events.AllocationEvent
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		pending = pending[:0]

		var reverted []models.Allocation
		if req.ResetExisting {
			var evts []events.AllocationEvent
			var err error
			reverted, evts, err = s.revertByParent(tx, userID, *req.ParentID, now)
			if err != nil {
				return err
			}
			pending = append(pending, evts...)
		}

		r, err := s.allocateWithDB(tx, userID, req, kind)
		if err != nil {
			return err
		}
		r.Reverted = reverted
		result = r
		pending = append(pending, events.AllocationEvent{
			Type:           events.TypeAllocationCreated,
			UserID:         userID,
			CreditID:       r.Credit.ID,
			AllocationID:   r.Allocation.ID,
			AllocationType: string(r.Allocation.Type),
			TargetID:       r.Allocation.TargetID(),
			Amount:         r.Allocation.Amount,
			Remaining:      r.Credit.RemainingAmount,
			Timestamp:      now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishEvents(ctx, s.publisher, pending...)
	return result, nil
}

// validateAllocateRequest checks the request shape and returns the target
// kind its allocation type requires.
func validateAllocateRequest(req *AllocateRequest) (models.TargetKind, error) {
	if req.CreditID == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "credit_id is required")
	}
	kind, ok := models.TargetKindFor(req.Type)
	if !ok {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("unknown allocation type %q", req.Type))
	}
	if req.Amount <= 0 {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if req.Target.Kind == "" && kind == models.TargetKindNone {
		req.Target.Kind = models.TargetKindNone
	}
	if req.Target.Kind != kind {
		return "", apperrors.WithMessage(apperrors.ErrInvalidTarget,
			fmt.Sprintf("%s allocations require a %s target", req.Type, kind))
	}
	if kind != models.TargetKindNone && req.Target.ID == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidTarget,
			fmt.Sprintf("%s allocations require a %s id", req.Type, kind))
	}
	if kind == models.TargetKindNone && req.Target.ID != "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidTarget,
			fmt.Sprintf("%s allocations take no target", req.Type))
	}
	if req.ResetExisting && (req.ParentID == nil || *req.ParentID == "") {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "reset_existing requires parent_id")
	}
	return kind, nil
}

func (s *allocationService) allocateWithDB(tx *gorm.DB, userID string, req AllocateRequest, kind models.TargetKind) (*AllocateResult, error) {
	// Lock order is always credit, then target.
	credit, err := lockTransaction(tx, userID, req.CreditID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCreditNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !credit.IsCredit() {
		return nil, apperrors.ErrNotACredit
	}

	amount, err := clampToRoom(req.Amount, credit.RemainingAmount, apperrors.ErrAmountExceedsRemaining, "the credit's remaining")
	if err != nil {
		return nil, err
	}

	alloc := &models.Allocation{
		UserID:     userID,
		CreditID:   credit.ID,
		Type:       req.Type,
		TargetKind: kind,
		Label:      req.Label,
		Month:      models.MonthOf(credit.Date),
		ParentID:   req.ParentID,
	}

	var (
		target     *models.Transaction
		goal       *models.Goal
		targetName string
	)
	switch kind {
	case models.TargetKindTransaction:
		target, err = lockTransaction(tx, userID, req.Target.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrTransactionNotFound
			}
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if !target.IsExpense() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidTarget, "target must be an expense")
		}
		amount, err = clampToRoom(amount, target.RemainingAmount, apperrors.ErrTargetOverMatched, "the target's unmatched")
		if err != nil {
			return nil, err
		}
		alloc.TargetTransactionID = &target.ID
		targetName = target.Description

	case models.TargetKindSpread:
		var item models.SpreadItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(models.OwnedRow(req.Target.ID, userID)).
			First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrSpreadItemNotFound
			}
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if !item.ActiveIn(alloc.Month) {
			return nil, apperrors.WithMessage(apperrors.ErrSpreadItemInactive,
				fmt.Sprintf("spread item has no portion due in %s", alloc.Month))
		}
		used, err := spreadUsed(tx, item.ID, alloc.Month)
		if err != nil {
			return nil, err
		}
		amount, err = clampToRoom(amount, item.MonthlyPortion-used, apperrors.ErrTargetOverMatched, "this month's spread portion")
		if err != nil {
			return nil, err
		}
		alloc.TargetSpreadItemID = &item.ID
		targetName = item.Description

	case models.TargetKindCategory:
		category, err := findCategory(tx, userID, req.Target.ID)
		if err != nil {
			return nil, err
		}
		if category.Type != models.CategoryTypeExpense {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidTarget, "spend offsets must target an expense category")
		}
		alloc.TargetCategoryID = &category.ID
		targetName = category.Name

	case models.TargetKindGoal:
		goal = &models.Goal{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(models.OwnedRow(req.Target.ID, userID)).
			First(goal).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrGoalNotFound
			}
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if !goal.IsActive {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidTarget, "goal is not active")
		}
		amount, err = clampToRoom(amount, goal.Remaining(), apperrors.ErrGoalTargetExceeded, "the goal's remaining room")
		if err != nil {
			return nil, err
		}
		alloc.TargetGoalID = &goal.ID
		targetName = goal.Name
	}

	alloc.Amount = amount
	if alloc.Label == "" {
		alloc.Label = defaultLabel(req.Type, targetName)
	}
	if err := tx.Create(alloc).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	updatedCredit, err := s.ledger.AdjustRemaining(tx, credit.ID, -amount)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvariantViolation) {
			return nil, apperrors.WithMessage(apperrors.ErrAmountExceedsRemaining, err.Error())
		}
		return nil, err
	}

	if target != nil {
		updatedTarget, err := s.ledger.AdjustRemaining(tx, target.ID, -amount)
		if err != nil {
			if errors.Is(err, apperrors.ErrInvariantViolation) {
				return nil, apperrors.WithMessage(apperrors.ErrTargetOverMatched, err.Error())
			}
			return nil, err
		}
		// Expenses picked from general results get flagged by the allocation.
		switch req.Type {
		case models.AllocationTypeReturn:
			updatedTarget.IsReturn = true
		case models.AllocationTypeHealthcare:
			updatedTarget.IsHealthcare = true
		}
		if err := saveStatuses(tx, updatedTarget); err != nil {
			return nil, err
		}
	}

	if goal != nil {
		res := tx.Model(&models.Goal{}).
			Where("id = ? AND current_cents + ? <= target_cents", goal.ID, int64(amount)).
			Update("current_cents", gorm.Expr("current_cents + ?", int64(amount)))
		if res.Error != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, apperrors.ErrGoalTargetExceeded
		}
	}

	return &AllocateResult{
		Allocation: alloc,
		Credit:     updatedCredit,
		Complete:   updatedCredit.RemainingAmount == 0,
	}, nil
}

// clampToRoom accepts amounts up to one cent above room and trims them to room.
func clampToRoom(amount, room money.Cents, sentinel *apperrors.AppError, what string) (money.Cents, error) {
	if room <= 0 || amount > room+money.Epsilon {
		if room < 0 {
			room = 0
		}
		return 0, apperrors.WithMessage(sentinel,
			fmt.Sprintf("amount %s exceeds %s amount of %s", amount, what, room))
	}
	return money.Min(amount, room), nil
}

func defaultLabel(t models.AllocationType, targetName string) string {
	var prefix string
	switch t {
	case models.AllocationTypeReturn:
		prefix = "Return"
	case models.AllocationTypeHealthcare:
		prefix = "Reimbursement"
	case models.AllocationTypeSpendOffset:
		prefix = "Offset"
	case models.AllocationTypeSpreadOffset:
		prefix = "Spread"
	case models.AllocationTypeGoal:
		prefix = "Goal"
	case models.AllocationTypeOtherIncome:
		return "Other income"
	case models.AllocationTypeTaxRefund:
		return "Tax refund"
	}
	if targetName == "" {
		return prefix
	}
	return prefix + ": " + targetName
}

func saveStatuses(tx *gorm.DB, t *models.Transaction) error {
	t.RefreshStatuses()
	if err := tx.Model(t).
		Select("is_return", "is_healthcare", "return_status", "reimbursement_status").
		Updates(t).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// spreadUsed sums the live spread offsets recorded against an item for a month.
func spreadUsed(tx *gorm.DB, itemID, month string) (money.Cents, error) {
	var total int64
	if err := tx.Model(&models.Allocation{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("target_spread_item_id = ? AND month = ? AND reverted_at IS NULL", itemID, month).
		Scan(&total).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return money.Cents(total), nil
}

// Revert undoes a live allocation. A second revert of the same id fails with
// ALREADY_REVERTED and changes nothing.
func (s *allocationService) Revert(ctx context.Context, userID, allocationID string) (*RevertResult, error) {
	var result *RevertResult
	var evt events.AllocationEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		alloc, credit, err := s.revertWithDB(tx, userID, allocationID, now)
		if err != nil {
			return err
		}
		result = &RevertResult{Allocation: alloc, Credit: credit}
		evt = revertedEvent(alloc, credit, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishEvents(ctx, s.publisher, evt)
	return result, nil
}

func (s *allocationService) revertWithDB(tx *gorm.DB, userID, allocationID string, now time.Time) (*models.Allocation, *models.Transaction, error) {
	// Claim the row first: of two concurrent reverts only one can flip reverted_at.
	res := tx.Model(&models.Allocation{}).
		Where("id = ? AND user_id = ? AND reverted_at IS NULL", allocationID, userID).
		Update("reverted_at", now)
	if res.Error != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}

	var alloc models.Allocation
	if err := tx.Scopes(models.OwnedRow(allocationID, userID)).First(&alloc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.ErrAllocationNotFound
		}
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if res.RowsAffected == 0 {
		return nil, nil, apperrors.ErrAlreadyReverted
	}

	if _, err := lockTransaction(tx, userID, alloc.CreditID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.ErrCreditNotFound
		}
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	credit, err := s.ledger.AdjustRemaining(tx, alloc.CreditID, alloc.Amount)
	if err != nil {
		return nil, nil, err
	}

	switch alloc.TargetKind {
	case models.TargetKindTransaction:
		if alloc.TargetTransactionID == nil {
			break
		}
		if _, err := lockTransaction(tx, userID, *alloc.TargetTransactionID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, apperrors.ErrTransactionNotFound
			}
			return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		target, err := s.ledger.AdjustRemaining(tx, *alloc.TargetTransactionID, alloc.Amount)
		if err != nil {
			return nil, nil, err
		}
		if err := saveStatuses(tx, target); err != nil {
			return nil, nil, err
		}

	case models.TargetKindGoal:
		if alloc.TargetGoalID == nil {
			break
		}
		res := tx.Model(&models.Goal{}).
			Where("id = ? AND current_cents >= ?", *alloc.TargetGoalID, int64(alloc.Amount)).
			Update("current_cents", gorm.Expr("current_cents - ?", int64(alloc.Amount)))
		if res.Error != nil {
			return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, nil, apperrors.WithMessage(apperrors.ErrInvariantViolation, "goal progress is below the reverted amount")
		}
	}

	return &alloc, credit, nil
}

// revertByParent reverts every live allocation sharing parentID.
func (s *allocationService) revertByParent(tx *gorm.DB, userID, parentID string, now time.Time) ([]models.Allocation, []events.AllocationEvent, error) {
	var live []models.Allocation
	if err := tx.Where("user_id = ? AND parent_id = ? AND reverted_at IS NULL", userID, parentID).
		Order("credit_id ASC, id ASC").
		Find(&live).Error; err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	reverted := make([]models.Allocation, 0, len(live))
	evts := make([]events.AllocationEvent, 0, len(live))
	for _, a := range live {
		alloc, credit, err := s.revertWithDB(tx, userID, a.ID, now)
		if err != nil {
			return nil, nil, err
		}
		reverted = append(reverted, *alloc)
		evts = append(evts, revertedEvent(alloc, credit, now))
	}
	return reverted, evts, nil
}

func revertedEvent(alloc *models.Allocation, credit *models.Transaction, now time.Time) events.AllocationEvent {
	return events.AllocationEvent{
		Type:           events.TypeAllocationReverted,
		UserID:         alloc.UserID,
		CreditID:       alloc.CreditID,
		AllocationID:   alloc.ID,
		AllocationType: string(alloc.Type),
		TargetID:       alloc.TargetID(),
		Amount:         alloc.Amount,
		Remaining:      credit.RemainingAmount,
		Timestamp:      now,
	}
}

// ListAllocations returns a credit's allocation history, reverted rows included.
func (s *allocationService) ListAllocations(ctx context.Context, userID, creditID string, page pagination.PageRequest) (*pagination.PageResponse[models.Allocation], error) {
	page.Defaults()
	db := s.db.WithContext(ctx)

	var credits int64
	if err := db.Model(&models.Transaction{}).
		Where("id = ? AND user_id = ? AND amount_cents > 0", creditID, userID).
		Count(&credits).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if credits == 0 {
		return nil, apperrors.ErrCreditNotFound
	}

	base := db.Model(&models.Allocation{}).Where("credit_id = ? AND user_id = ?", creditID, userID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var allocations []models.Allocation
	if err := base.Scopes(pagination.Paginate(page)).
		Order("created_at DESC, id DESC").
		Find(&allocations).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(allocations, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// LiveAllocations returns the non-reverted allocations of each credit, oldest first.
func (s *allocationService) LiveAllocations(ctx context.Context, userID string, creditIDs []string) (map[string][]models.Allocation, error) {
	byCredit := make(map[string][]models.Allocation, len(creditIDs))
	if len(creditIDs) == 0 {
		return byCredit, nil
	}

	var live []models.Allocation
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND credit_id IN ? AND reverted_at IS NULL", userID, creditIDs).
		Order("created_at ASC, id ASC").
		Find(&live).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for _, a := range live {
		byCredit[a.CreditID] = append(byCredit[a.CreditID], a)
	}
	return byCredit, nil
}

// SpreadOffsets sums the month's live spread offsets per spread item.
func (s *allocationService) SpreadOffsets(ctx context.Context, userID, month string) (map[string]money.Cents, error) {
	var rows []struct {
		TargetSpreadItemID string
		Total              int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Allocation{}).
		Select("target_spread_item_id, SUM(amount_cents) AS total").
		Where("user_id = ? AND month = ? AND allocation_type = ? AND reverted_at IS NULL",
			userID, month, models.AllocationTypeSpreadOffset).
		Group("target_spread_item_id").
		Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	offsets := make(map[string]money.Cents, len(rows))
	for _, r := range rows {
		offsets[r.TargetSpreadItemID] = money.Cents(r.Total)
	}
	return offsets, nil
}

// publishEvents sends events after commit. Delivery failures are logged and
// never fail the request that produced them.
func publishEvents(ctx context.Context, publisher events.Publisher, evts ...events.AllocationEvent) {
	for _, evt := range evts {
		if err := publisher.Publish(ctx, evt); err != nil {
			logger.FromContext(ctx).Warnw("failed to publish allocation event",
				"error", err,
				"type", evt.Type,
				"credit_id", evt.CreditID,
				"allocation_id", evt.AllocationID,
			)
		}
	}
}
