package client

import (
	"context"
	"sync"

	"creditflow/internal/logger"
	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/services"
)

// TriageCache is the client-side copy of one month's triage view. Local
// edits are optimistic; Reconcile replaces everything with the server's view.
type TriageCache struct {
	mu      sync.RWMutex
	month   string
	credits map[string]services.CreditView
	order   []string
	total   money.Cents
}

// NewTriageCache creates an empty cache.
func NewTriageCache() *TriageCache {
	return &TriageCache{credits: map[string]services.CreditView{}}
}

// Reconcile replaces local state with the server view. Credits the server no
// longer returns are dropped.
func (c *TriageCache) Reconcile(view *services.TriageView) {
	credits := make(map[string]services.CreditView, len(view.Credits)+len(view.AllocatedCredits))
	order := make([]string, 0, len(view.Credits)+len(view.AllocatedCredits))
	for _, group := range [][]services.CreditView{view.Credits, view.AllocatedCredits} {
		for _, cv := range group {
			if _, dup := credits[cv.ID]; dup {
				continue
			}
			credits[cv.ID] = cv
			order = append(order, cv.ID)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.month = view.Month
	c.credits = credits
	c.order = order
	c.total = view.TotalUnallocated
}

// Month returns the month of the last reconciled view.
func (c *TriageCache) Month() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.month
}

// Credit returns a cached credit.
func (c *TriageCache) Credit(id string) (services.CreditView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cv, ok := c.credits[id]
	return cv, ok
}

// Open returns the credits that still have money left, in server order.
func (c *TriageCache) Open() []services.CreditView {
	return c.filter(func(cv services.CreditView) bool { return cv.State != services.CreditStateFullyAllocated })
}

// Allocated returns the fully allocated credits, in server order.
func (c *TriageCache) Allocated() []services.CreditView {
	return c.filter(func(cv services.CreditView) bool { return cv.State == services.CreditStateFullyAllocated })
}

func (c *TriageCache) filter(keep func(services.CreditView) bool) []services.CreditView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]services.CreditView, 0, len(c.order))
	for _, id := range c.order {
		if cv := c.credits[id]; keep(cv) {
			out = append(out, cv)
		}
	}
	return out
}

// TotalUnallocated returns the summed remaining amount of open credits.
func (c *TriageCache) TotalUnallocated() money.Cents {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}

// ApplyAllocation optimistically moves amount out of a credit's remaining
// balance. The returned func restores the previous entry. ok is false when
// the credit is not cached.
func (c *TriageCache) ApplyAllocation(alloc models.Allocation) (restore func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.credits[alloc.CreditID]
	if !ok {
		return func() {}, false
	}
	prevTotal := c.total

	next := prev
	next.Allocations = append(append([]models.Allocation(nil), prev.Allocations...), alloc)
	applied := money.Min(alloc.Amount, next.RemainingAmount)
	next.RemainingAmount -= applied
	next.AllocatedAmount += applied
	next.State = services.CreditStateOf(&next.Transaction)
	c.credits[alloc.CreditID] = next
	c.total -= applied

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.credits[alloc.CreditID] = prev
		c.total = prevTotal
	}, true
}

// ApplyCredit stores the server's copy of a credit after an allocation.
func (c *TriageCache) ApplyCredit(credit models.Transaction, allocation *models.Allocation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.credits[credit.ID]
	if !ok {
		return
	}
	next := services.CreditView{Transaction: credit, State: services.CreditStateOf(&credit)}
	next.Allocations = make([]models.Allocation, 0, len(prev.Allocations)+1)
	for _, a := range prev.Allocations {
		if a.ID != "" {
			next.Allocations = append(next.Allocations, a)
		}
	}
	if allocation != nil {
		next.Allocations = append(next.Allocations, *allocation)
	}
	c.total += prev.RemainingAmount - credit.RemainingAmount
	c.credits[credit.ID] = next
}

// Triage couples the API client with a cache for one user session.
type Triage struct {
	API   *APIClient
	Cache *TriageCache
}

// Refresh fetches the month's view and reconciles the cache.
func (t *Triage) Refresh(ctx context.Context, month string) error {
	view, err := t.API.GetUnallocated(ctx, month)
	if err != nil {
		return err
	}
	t.Cache.Reconcile(view)
	return nil
}

// Allocate applies the allocation locally, sends it, and rolls the local
// change back if the server rejects it. On success the server's credit
// replaces the optimistic one. When earlier allocations were replaced the view
// is refetched; a failed refetch only logs since the allocation committed.
func (t *Triage) Allocate(ctx context.Context, req AllocateRequest) (*AllocateResponse, error) {
	restore, _ := t.Cache.ApplyAllocation(models.Allocation{
		CreditID: req.CreditID,
		Type:     models.AllocationType(req.Action),
		Amount:   req.Amount,
		Label:    req.Label,
	})

	resp, err := t.API.Allocate(ctx, req)
	if err != nil {
		restore()
		return nil, err
	}

	if resp.Credit != nil {
		t.Cache.ApplyCredit(*resp.Credit, resp.Allocation)
	}
	if len(resp.Reverted) > 0 {
		if err := t.Refresh(ctx, t.Cache.Month()); err != nil {
			logger.FromContext(ctx).Warnw("Failed to refresh triage view after allocation", "credit_id", req.CreditID, "error", err)
		}
	}
	return resp, nil
}

// Undo reverts an allocation and reconciles with the server.
func (t *Triage) Undo(ctx context.Context, allocationID string) error {
	if err := t.API.Undo(ctx, allocationID); err != nil {
		return err
	}
	return t.Refresh(ctx, t.Cache.Month())
}
