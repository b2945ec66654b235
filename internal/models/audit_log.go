package models

// AuditResource names the kind of row an audit entry points at.
type AuditResource string

const (
	AuditResourceTransaction AuditResource = "transaction"
	AuditResourceAllocation  AuditResource = "allocation"
	AuditResourceGoal        AuditResource = "goal"
	AuditResourceSpreadItem  AuditResource = "spread_item"
)

// AuditLog is an append-only record of a ledger mutation. Batch imports
// carry no ResourceID.
type AuditLog struct {
	Base
	UserID       string        `gorm:"type:uuid;not null;index" json:"user_id"`
	Action       string        `gorm:"not null;index" json:"action"`
	ResourceType AuditResource `gorm:"not null" json:"resource_type"`
	ResourceID   string        `gorm:"type:uuid" json:"resource_id,omitempty"`
	IPAddress    string        `json:"ip_address"`
	Changes      string        `json:"changes,omitempty"`
}
