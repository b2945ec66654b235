package client

import (
	"context"
	"net/http"
	"testing"

	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/services"
)

func creditView(id string, amount, remaining money.Cents) services.CreditView {
	tx := models.Transaction{
		Base:             models.Base{ID: id},
		Amount:           amount,
		RemainingAmount:  remaining,
		AllocatedAmount:  amount - remaining,
		CreditAllocation: models.CreditAllocationUnallocated,
	}
	return services.CreditView{Transaction: tx, State: services.CreditStateOf(&tx)}
}

func seededCache() *TriageCache {
	cache := NewTriageCache()
	cache.Reconcile(&services.TriageView{
		Month:            "2024-05",
		Credits:          []services.CreditView{creditView("c1", 10000, 10000), creditView("c2", 5000, 2000)},
		AllocatedCredits: []services.CreditView{creditView("c3", 3000, 0)},
		TotalUnallocated: 12000,
	})
	return cache
}

func TestReconcile(t *testing.T) {
	cache := seededCache()
	if len(cache.Open()) != 2 || len(cache.Allocated()) != 1 {
		t.Fatalf("expected 2 open and 1 allocated, got %d and %d", len(cache.Open()), len(cache.Allocated()))
	}

	t.Run("drops credits the server no longer returns", func(t *testing.T) {
		cache.Reconcile(&services.TriageView{
			Month:            "2024-05",
			Credits:          []services.CreditView{creditView("c2", 5000, 2000)},
			TotalUnallocated: 2000,
		})
		if _, ok := cache.Credit("c1"); ok {
			t.Error("c1 should be dropped")
		}
		if _, ok := cache.Credit("c3"); ok {
			t.Error("c3 should be dropped")
		}
		if cache.TotalUnallocated() != 2000 {
			t.Errorf("expected total 2000, got %d", cache.TotalUnallocated())
		}
	})
}

func TestApplyCreditState(t *testing.T) {
	tests := []struct {
		name                 string
		remaining, allocated money.Cents
		want                 services.CreditState
	}{
		{"untouched", 10000, 0, services.CreditStateUnallocated},
		{"split", 4000, 6000, services.CreditStatePartiallyAllocated},
		{"drained", 0, 10000, services.CreditStateFullyAllocated},
		{"remaining equals amount", 10000, 300, services.CreditStateUnallocated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := seededCache()
			server := models.Transaction{
				Base:            models.Base{ID: "c1"},
				Amount:          10000,
				RemainingAmount: tt.remaining,
				AllocatedAmount: tt.allocated,
			}
			cache.ApplyCredit(server, nil)

			cv, _ := cache.Credit("c1")
			if cv.State != tt.want {
				t.Errorf("expected %s, got %s", tt.want, cv.State)
			}
			if cv.State != services.CreditStateOf(&server) {
				t.Errorf("cache state %s disagrees with server state %s", cv.State, services.CreditStateOf(&server))
			}
		})
	}
}

func TestApplyAllocation(t *testing.T) {
	t.Run("moves money and state", func(t *testing.T) {
		cache := seededCache()
		_, ok := cache.ApplyAllocation(models.Allocation{CreditID: "c1", Amount: 4000})
		if !ok {
			t.Fatal("expected c1 to be cached")
		}
		cv, _ := cache.Credit("c1")
		if cv.RemainingAmount != 6000 || cv.AllocatedAmount != 4000 || cv.State != services.CreditStatePartiallyAllocated {
			t.Errorf("unexpected credit %+v", cv)
		}
		if cache.TotalUnallocated() != 8000 {
			t.Errorf("expected total 8000, got %d", cache.TotalUnallocated())
		}
	})

	t.Run("full allocation moves credit to allocated", func(t *testing.T) {
		cache := seededCache()
		cache.ApplyAllocation(models.Allocation{CreditID: "c2", Amount: 2000})
		if len(cache.Open()) != 1 || len(cache.Allocated()) != 2 {
			t.Errorf("expected c2 to move, got %d open", len(cache.Open()))
		}
	})

	t.Run("restore undoes the change", func(t *testing.T) {
		cache := seededCache()
		restore, _ := cache.ApplyAllocation(models.Allocation{CreditID: "c1", Amount: 10000})
		restore()
		cv, _ := cache.Credit("c1")
		if cv.RemainingAmount != 10000 || len(cv.Allocations) != 0 || cache.TotalUnallocated() != 12000 {
			t.Errorf("expected original state, got %+v total %d", cv, cache.TotalUnallocated())
		}
	})

	t.Run("unknown credit", func(t *testing.T) {
		cache := seededCache()
		if _, ok := cache.ApplyAllocation(models.Allocation{CreditID: "missing", Amount: 1}); ok {
			t.Error("expected ok false")
		}
	})
}

func TestTriageAllocate(t *testing.T) {
	t.Run("rejected allocation rolls back", func(t *testing.T) {
		api := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "too much", "code": "AMOUNT_EXCEEDS_REMAINING"})
		})
		triage := &Triage{API: api, Cache: seededCache()}

		_, err := triage.Allocate(context.Background(), AllocateRequest{CreditID: "c1", Action: "other_income", Amount: 4000})
		if !IsCode(err, "AMOUNT_EXCEEDS_REMAINING") {
			t.Fatalf("expected AMOUNT_EXCEEDS_REMAINING, got %v", err)
		}
		cv, _ := triage.Cache.Credit("c1")
		if cv.RemainingAmount != 10000 {
			t.Errorf("expected rollback, remaining %d", cv.RemainingAmount)
		}
	})

	t.Run("accepted allocation takes server credit", func(t *testing.T) {
		api := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, AllocateResponse{
				OK:         true,
				Allocation: &models.Allocation{Base: models.Base{ID: "a-1"}, CreditID: "c1", Amount: 4000},
				Credit:     &models.Transaction{Base: models.Base{ID: "c1"}, Amount: 10000, RemainingAmount: 6000, AllocatedAmount: 4000},
			})
		})
		triage := &Triage{API: api, Cache: seededCache()}

		if _, err := triage.Allocate(context.Background(), AllocateRequest{CreditID: "c1", Action: "other_income", Amount: 4000}); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		cv, _ := triage.Cache.Credit("c1")
		if len(cv.Allocations) != 1 || cv.Allocations[0].ID != "a-1" {
			t.Errorf("expected server allocation only, got %+v", cv.Allocations)
		}
		if triage.Cache.TotalUnallocated() != 8000 {
			t.Errorf("expected total 8000, got %d", triage.Cache.TotalUnallocated())
		}
	})

	t.Run("undo reconciles", func(t *testing.T) {
		api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete {
				writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
				return
			}
			writeJSON(w, http.StatusOK, services.TriageView{
				Month:            "2024-05",
				Credits:          []services.CreditView{creditView("c1", 10000, 10000)},
				TotalUnallocated: 10000,
			})
		})
		triage := &Triage{API: api, Cache: seededCache()}

		if err := triage.Undo(context.Background(), "a-1"); err != nil {
			t.Fatalf("Undo: %v", err)
		}
		if len(triage.Cache.Open()) != 1 || triage.Cache.TotalUnallocated() != 10000 {
			t.Errorf("expected reconciled cache, got %d open", len(triage.Cache.Open()))
		}
	})
}
