package lifecycle

import (
	"testing"
	"time"

	"github.com/kjstillabower/weather-screen-service/internal/traffic"
)

func TestIsShuttingDown_DefaultFalse(t *testing.T) {
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
}

func TestSetShuttingDown_Toggle(t *testing.T) {
	SetShuttingDown(true)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true)")
	}
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after SetShuttingDown(false)")
	}
}

func TestPolicy_Evaluate(t *testing.T) {
	policy := Policy{DegradedWindow: time.Minute, DegradedErrorPct: 25}
	withOverload := Policy{
		OverloadWindow:    time.Minute,
		OverloadDeniedPct: 50,
		DegradedWindow:    time.Minute,
		DegradedErrorPct:  25,
	}
	tests := []struct {
		name       string
		successes  int
		failures   int
		denied     int
		shutdown   bool
		policy     Policy
		wantStatus string
	}{
		{"no traffic", 0, 0, 0, false, policy, StatusHealthy},
		{"below threshold", 4, 1, 0, false, policy, StatusHealthy},
		{"at threshold", 3, 1, 0, false, policy, StatusDegraded},
		{"denials ignored", 3, 0, 50, false, policy, StatusHealthy},
		{"shutting down wins", 0, 10, 0, true, policy, StatusShuttingDown},
		{"denials below overload threshold", 6, 0, 4, false, withOverload, StatusHealthy},
		{"denials at overload threshold", 5, 0, 5, false, withOverload, StatusOverloaded},
		{"overloaded before degraded", 0, 4, 6, false, withOverload, StatusOverloaded},
		{"degraded when overload not reached", 2, 2, 1, false, withOverload, StatusDegraded},
		{"shutting down beats overloaded", 0, 0, 10, true, withOverload, StatusShuttingDown},
		{"threshold disabled", 0, 10, 0, false, Policy{}, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traffic.Reset()
			SetShuttingDown(tt.shutdown)
			defer SetShuttingDown(false)
			traffic.RecordN(traffic.Success, tt.successes)
			traffic.RecordN(traffic.Failure, tt.failures)
			traffic.RecordN(traffic.Denied, tt.denied)

			h := tt.policy.Evaluate()
			if h.Status != tt.wantStatus {
				t.Errorf("Evaluate().Status = %q, want %q (failures=%d served=%d)", h.Status, tt.wantStatus, h.Failures, h.Served)
			}
		})
	}
	traffic.Reset()
}
