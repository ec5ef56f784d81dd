package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	errs = appendDurationError(errs, "QUERY_TIMEOUT", cfg.QueryTimeoutStr)
	errs = appendDurationError(errs, "MAX_STAGGER_BUDGET", cfg.MaxStaggerBudgetStr)
	errs = appendDurationError(errs, "SLEEP_DELAY", cfg.SleepDelayStr)
	errs = appendDurationError(errs, "WAKE_JITTER_MAX", cfg.WakeJitterMaxStr)
	errs = appendDurationError(errs, "HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr)
	errs = appendDurationError(errs, "BREAKER_COOLDOWN", cfg.BreakerCooldownStr)
	errs = appendDurationError(errs, "WATCHDOG_INTERVAL", cfg.WatchdogIntervalStr)
	errs = appendDurationError(errs, "WATCHDOG_THRESHOLD", cfg.WatchdogThresholdStr)

	if cfg.PollRowLimit <= 0 {
		errs = append(errs, ValidationError{
			Field:   "POLL_ROW_LIMIT",
			Message: "must be positive",
		})
	}
	if cfg.TestRowLimit < cfg.PollRowLimit {
		errs = append(errs, ValidationError{
			Field:   "TEST_ROW_LIMIT",
			Message: "must be at least POLL_ROW_LIMIT",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func appendDurationError(errs ValidationErrors, field, value string) ValidationErrors {
	if value == "" {
		return errs
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if d <= 0 {
		return append(errs, ValidationError{
			Field:   field,
			Message: "must be positive",
		})
	}
	return errs
}
