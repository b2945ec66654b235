package services

import (
	"encoding/json"
	"testing"

	"creditflow/internal/models"
	"creditflow/internal/testutil"
)

func TestAuditLog(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := NewAuditService(db)
	userID := testutil.NewUserID()
	allocationID := testutil.NewUserID()

	t.Run("records_changes", func(t *testing.T) {
		svc.Log(userID, AuditActionAllocate, models.AuditResourceAllocation, allocationID, "127.0.0.1",
			map[string]interface{}{"amount": 4217})

		var entry models.AuditLog
		if err := db.Where("resource_id = ?", allocationID).First(&entry).Error; err != nil {
			t.Fatalf("expected audit entry: %v", err)
		}
		if entry.Action != AuditActionAllocate || entry.UserID != userID {
			t.Errorf("unexpected entry: %+v", entry)
		}
		var changes map[string]interface{}
		if err := json.Unmarshal([]byte(entry.Changes), &changes); err != nil {
			t.Fatalf("changes should be JSON: %v", err)
		}
		if changes["amount"] != float64(4217) {
			t.Errorf("unexpected changes %v", changes)
		}
	})

	t.Run("batch_action_without_resource", func(t *testing.T) {
		svc.Log(userID, AuditActionImportTx, models.AuditResourceTransaction, "", "", nil)

		var count int64
		db.Model(&models.AuditLog{}).Where("action = ? AND user_id = ?", AuditActionImportTx, userID).Count(&count)
		if count != 1 {
			t.Errorf("expected 1 import entry, got %d", count)
		}
	})
}
