// Package events publishes allocation lifecycle events for downstream
// consumers such as recap generation.
package events

import (
	"encoding/json"
	"time"

	"creditflow/internal/money"
)

// Event types.
const (
	TypeAllocationCreated  = "allocation.created"
	TypeAllocationReverted = "allocation.reverted"
	TypeCreditReset        = "credit.reset"
)

// AllocationEvent is a lightweight notification; consumers fetch full state
// from the API when they need it.
type AllocationEvent struct {
	Type           string      `json:"type"`
	UserID         string      `json:"user_id"`
	CreditID       string      `json:"credit_id"`
	AllocationID   string      `json:"allocation_id,omitempty"`
	AllocationType string      `json:"allocation_type,omitempty"`
	TargetID       string      `json:"target_id,omitempty"`
	Amount         money.Cents `json:"amount"`
	Remaining      money.Cents `json:"remaining"`
	Timestamp      time.Time   `json:"timestamp"`
}

// ToJSON converts the event to JSON bytes
func (e *AllocationEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// AllocationEventFromJSON decodes an event from JSON bytes.
func AllocationEventFromJSON(data []byte) (*AllocationEvent, error) {
	var evt AllocationEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
