package validator

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
)

type allocateProbe struct {
	Action string `binding:"required,allocation_action"`
	Month  string `binding:"omitempty,year_month"`
	Type   string `binding:"omitempty,search_type"`
	Goal   string `binding:"omitempty,goal_type"`
}

func TestRegister(t *testing.T) {
	Register()

	tests := []struct {
		name    string
		probe   allocateProbe
		wantErr bool
	}{
		{"valid return", allocateProbe{Action: "return", Month: "2024-03"}, false},
		{"valid goal", allocateProbe{Action: "goal", Goal: "fund_target"}, false},
		{"valid search type", allocateProbe{Action: "tax_refund", Type: "healthcare"}, false},
		{"unknown action", allocateProbe{Action: "gift"}, true},
		{"bad month", allocateProbe{Action: "return", Month: "2024-13"}, true},
		{"bad search type", allocateProbe{Action: "return", Type: "income"}, true},
		{"bad goal type", allocateProbe{Action: "goal", Goal: "vacation"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(tt.probe)
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
