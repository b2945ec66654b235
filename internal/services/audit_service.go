package services

import (
	"encoding/json"

	"creditflow/internal/logger"
	"creditflow/internal/models"

	"gorm.io/gorm"
)

// Audit actions recorded against the ledger.
const (
	AuditActionAllocate     = "ALLOCATE"
	AuditActionRevert       = "REVERT_ALLOCATION"
	AuditActionResetCredit  = "RESET_CREDIT"
	AuditActionCreateTx     = "CREATE_TRANSACTION"
	AuditActionUpdateTx     = "UPDATE_TRANSACTION"
	AuditActionDeleteTx     = "DELETE_TRANSACTION"
	AuditActionImportTx     = "IMPORT_TRANSACTIONS"
	AuditActionCreateGoal   = "CREATE_GOAL"
	AuditActionCreateSpread = "CREATE_SPREAD_ITEM"
)

// auditService handles audit log recording.
type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// Log records an audit event. Errors are logged but never propagate
// to avoid disrupting the main operation.
func (s *auditService) Log(userID, action string, resource models.AuditResource, resourceID, ipAddress string, changes map[string]any) {
	var changesJSON string
	if changes != nil {
		data, err := json.Marshal(changes)
		if err != nil {
			logger.Get().Errorw("failed to marshal audit log changes", "error", err, "action", action)
			changesJSON = "{}"
		} else {
			changesJSON = string(data)
		}
	}

	entry := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resource,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Changes:      changesJSON,
	}

	db := s.db
	if resourceID == "" {
		// batch actions have no single resource
		db = db.Omit("resource_id")
	}
	if err := db.Create(entry).Error; err != nil {
		logger.Get().Errorw("failed to create audit log entry",
			"error", err,
			"user_id", userID,
			"action", action,
			"resource_type", resource,
			"resource_id", resourceID,
		)
	}
}
