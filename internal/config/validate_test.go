package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{DatabaseURL: "postgres://localhost/tidewatch"}
	cfg.PollRowLimit = 50
	cfg.TestRowLimit = 10000
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""

	err := Validate(cfg)
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(errs) != 1 || errs[0].Field != "DATABASE_URL" {
		t.Errorf("errors = %v", errs)
	}
}

func TestValidate_BadDurations(t *testing.T) {
	cfg := validConfig()
	cfg.QueryTimeoutStr = "soon"
	cfg.SleepDelayStr = "-5s"

	err := Validate(cfg)
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if !strings.Contains(err.Error(), "QUERY_TIMEOUT") || !strings.Contains(err.Error(), "SLEEP_DELAY") {
		t.Errorf("error text missing fields: %s", err)
	}
}

func TestValidate_RowLimits(t *testing.T) {
	cfg := validConfig()
	cfg.PollRowLimit = 0

	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "POLL_ROW_LIMIT") {
		t.Errorf("expected POLL_ROW_LIMIT error, got %v", err)
	}

	cfg = validConfig()
	cfg.TestRowLimit = 10
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "TEST_ROW_LIMIT") {
		t.Errorf("expected TEST_ROW_LIMIT error, got %v", err)
	}
}

func TestValidationErrors_SingleAndMulti(t *testing.T) {
	single := ValidationErrors{{Field: "A", Message: "bad"}}
	if single.Error() != "A: bad" {
		t.Errorf("single error = %q", single.Error())
	}

	multi := ValidationErrors{{Field: "A", Message: "bad"}, {Field: "B", Message: "worse"}}
	if !strings.HasPrefix(multi.Error(), "2 validation errors:") {
		t.Errorf("multi error = %q", multi.Error())
	}
}
