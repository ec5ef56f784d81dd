package api

import (
	"strings"
	"testing"
)

func validRequest() sourceRequest {
	return sourceRequest{
		Name:       "Vessel Alongside",
		Query:      "SELECT vessel, berth FROM moorings",
		IntervalMs: 5000,
	}
}

func TestValidateSourceRequest_Valid(t *testing.T) {
	warnings, err := validateSourceRequest(validRequest())
	if err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %v", warnings)
	}
}

func TestValidateSourceRequest_MissingFields(t *testing.T) {
	req := validRequest()
	req.Name = ""
	if _, err := validateSourceRequest(req); err == nil || !strings.Contains(err.Error(), "name") {
		t.Errorf("expected name error, got %v", err)
	}

	req = validRequest()
	req.Query = ""
	if _, err := validateSourceRequest(req); err == nil || !strings.Contains(err.Error(), "query") {
		t.Errorf("expected query error, got %v", err)
	}
}

func TestValidateSourceRequest_RejectsNonSelect(t *testing.T) {
	req := validRequest()
	req.Query = "DELETE FROM moorings"
	if _, err := validateSourceRequest(req); err == nil {
		t.Error("expected rejection for non-SELECT query")
	}
}

func TestValidateSourceRequest_IntervalFloor(t *testing.T) {
	req := validRequest()
	req.IntervalMs = 500
	if _, err := validateSourceRequest(req); err == nil || !strings.Contains(err.Error(), "intervalMs") {
		t.Errorf("expected interval error, got %v", err)
	}

	req.IntervalMs = 1000
	if _, err := validateSourceRequest(req); err != nil {
		t.Errorf("1s interval should be accepted, got %v", err)
	}
}

func TestValidateSourceRequest_Cron(t *testing.T) {
	req := validRequest()
	req.CronExpression = "*/5 * * * *"
	if _, err := validateSourceRequest(req); err != nil {
		t.Errorf("valid cron rejected: %v", err)
	}

	req.CronExpression = "every five minutes"
	if _, err := validateSourceRequest(req); err == nil {
		t.Error("expected invalid cron rejected")
	}
}

func TestValidateSourceRequest_WarningsPassThrough(t *testing.T) {
	req := validRequest()
	req.Query = "SELECT * FROM audit WHERE action = 'UPDATE'"
	warnings, err := validateSourceRequest(req)
	if err != nil {
		t.Fatalf("expected accepted with warnings, got %v", err)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one UPDATE warning", warnings)
	}
}
