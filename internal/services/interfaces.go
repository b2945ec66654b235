package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/pagination"
)

// NewTransaction carries the fields accepted when recording a transaction.
type NewTransaction struct {
	Date          time.Time
	Amount        money.Cents
	Description   string
	CategoryID    *string
	IsReturn      bool
	IsHealthcare  bool
	IsFixed       bool
	IsAmortized   bool
	IsUserEntered bool
}

// TransactionUpdate holds the optional fields of a transaction edit. Nil
// fields are left unchanged; ClearCategory removes the category.
type TransactionUpdate struct {
	Description   *string
	CategoryID    *string
	ClearCategory bool
	IsReturn      *bool
	IsHealthcare  *bool
	IsFixed       *bool
	IsAmortized   *bool
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate    *time.Time
	ToDate      *time.Time
	CategoryID  *string
	Direction   string // "credit", "expense" or empty
	OnlyReturns bool
}

// LedgerServicer owns transactions and the remaining/allocated balances on them.
type LedgerServicer interface {
	CreateTransaction(ctx context.Context, userID string, in NewTransaction) (*models.Transaction, error)
	ImportTransactions(ctx context.Context, userID string, items []NewTransaction) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, userID, transactionID string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	ListCredits(ctx context.Context, userID, month string) ([]models.Transaction, error)
	ListPendingReturns(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
	UpdateTransaction(ctx context.Context, userID, transactionID string, update TransactionUpdate) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, transactionID string) error
	ResetCredit(ctx context.Context, userID, transactionID string) (*models.Transaction, error)
	AdjustRemaining(tx *gorm.DB, transactionID string, delta money.Cents) (*models.Transaction, error)
}

// SearchQuery parameterizes a candidate search for a credit.
type SearchQuery struct {
	Type         string
	Query        string
	Category     string
	Days         int
	Limit        int
	CreditAmount money.Cents
	CreditDesc   string
}

// SearchResult is the tagged/suggested/results bundle returned by a search.
type SearchResult struct {
	Tagged         []models.Transaction `json:"tagged"`
	Suggested      *models.Transaction  `json:"suggested"`
	SuggestedScore float64              `json:"suggested_score,omitempty"`
	Results        []models.Transaction `json:"results"`
	Days           int                  `json:"days"`
	NextDays       *int                 `json:"next_days"`
	Exhausted      bool                 `json:"exhausted"`
}

// MatchingServicer finds expenses a credit might settle.
type MatchingServicer interface {
	Search(ctx context.Context, userID string, q SearchQuery) (*SearchResult, error)
}

// AllocationTarget names what an allocation is assigned to.
type AllocationTarget struct {
	Kind models.TargetKind
	ID   string
}

// AllocateRequest is a request to assign part of a credit to a target.
type AllocateRequest struct {
	CreditID      string
	Type          models.AllocationType
	Amount        money.Cents
	Target        AllocationTarget
	Label         string
	ParentID      *string
	ResetExisting bool
}

// AllocateResult is the outcome of a successful allocation.
type AllocateResult struct {
	Allocation *models.Allocation  `json:"allocation"`
	Credit     *models.Transaction `json:"credit"`
	Complete   bool                `json:"complete"`
	Reverted   []models.Allocation `json:"reverted,omitempty"`
}

// RevertResult is the outcome of undoing an allocation.
type RevertResult struct {
	Allocation *models.Allocation  `json:"allocation"`
	Credit     *models.Transaction `json:"credit"`
}

// AllocationServicer creates and reverts allocations atomically.
type AllocationServicer interface {
	Allocate(ctx context.Context, userID string, req AllocateRequest) (*AllocateResult, error)
	Revert(ctx context.Context, userID, allocationID string) (*RevertResult, error)
	ListAllocations(ctx context.Context, userID, creditID string, page pagination.PageRequest) (*pagination.PageResponse[models.Allocation], error)
	LiveAllocations(ctx context.Context, userID string, creditIDs []string) (map[string][]models.Allocation, error)
	SpreadOffsets(ctx context.Context, userID, month string) (map[string]money.Cents, error)
}

// CreditState summarizes how far along a credit's triage is.
type CreditState string

const (
	CreditStateUnallocated        CreditState = "unallocated"
	CreditStatePartiallyAllocated CreditState = "partially_allocated"
	CreditStateFullyAllocated     CreditState = "fully_allocated"
)

// CreditView is a credit with its live allocations.
type CreditView struct {
	models.Transaction
	State       CreditState         `json:"state"`
	Allocations []models.Allocation `json:"allocations"`
}

// GoalOption is an open goal that can still absorb money.
type GoalOption struct {
	models.Goal
	Room money.Cents `json:"room"`
}

// SpreadOption is a spread item active in the triage month.
type SpreadOption struct {
	models.SpreadItem
	RemainingThisMonth money.Cents `json:"remaining_this_month"`
	MonthsRemaining    int         `json:"months_remaining"`
}

// TriageView is everything the triage screen needs for one month.
type TriageView struct {
	Month             string               `json:"month"`
	Credits           []CreditView         `json:"credits"`
	AllocatedCredits  []CreditView         `json:"allocated_credits"`
	Goals             []GoalOption         `json:"goals"`
	ExpenseCategories []models.Category    `json:"expense_categories"`
	PendingReturns    []models.Transaction `json:"pending_returns"`
	SpreadItems       []SpreadOption       `json:"spread_items"`
	TotalUnallocated  money.Cents          `json:"total_unallocated"`
}

// TriageServicer assembles the unallocated-credit view.
type TriageServicer interface {
	GetUnallocated(ctx context.Context, userID, month string) (*TriageView, error)
}

// GoalServicer manages savings goals.
type GoalServicer interface {
	CreateGoal(ctx context.Context, userID, name string, goalType models.GoalType, target money.Cents) (*models.Goal, error)
	GetGoal(ctx context.Context, userID, goalID string) (*models.Goal, error)
	ListGoals(ctx context.Context, userID string, openOnly bool) ([]models.Goal, error)
}

// NewSpreadItem carries the fields accepted when creating a spread item.
type NewSpreadItem struct {
	Description   string
	TotalAmount   money.Cents
	Months        int
	StartMonth    string
	TransactionID *string
}

// SpreadServicer manages amortized spread items.
type SpreadServicer interface {
	CreateSpreadItem(ctx context.Context, userID string, in NewSpreadItem) (*models.SpreadItem, error)
	GetSpreadItem(ctx context.Context, userID, itemID string) (*models.SpreadItem, error)
	ListSpreadItems(ctx context.Context, userID, month string) ([]models.SpreadItem, error)
}

// CategoryServicer manages transaction categories.
type CategoryServicer interface {
	CreateCategory(ctx context.Context, userID, name string, categoryType models.CategoryType, icon, color string) (*models.Category, error)
	GetCategory(ctx context.Context, userID, categoryID string) (*models.Category, error)
	ListCategories(ctx context.Context, userID string, categoryType *models.CategoryType) ([]models.Category, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action string, resource models.AuditResource, resourceID, ipAddress string, changes map[string]interface{})
}
