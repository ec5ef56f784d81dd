package api

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tidewatch-io/tidewatch/internal/domain"
	"github.com/tidewatch-io/tidewatch/internal/query"
)

// validateSourceRequest checks a create/update body. Destructive-keyword
// warnings come back for the caller to surface; hard failures are errors.
func validateSourceRequest(req sourceRequest) ([]string, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	warnings, err := query.Validate(req.Query)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	interval := time.Duration(req.IntervalMs) * time.Millisecond
	if interval < domain.MinInterval {
		return nil, fmt.Errorf("intervalMs must be at least %d", domain.MinInterval.Milliseconds())
	}

	if req.CronExpression != "" {
		if err := validateCron(req.CronExpression); err != nil {
			return nil, fmt.Errorf("invalid cronExpression: %w", err)
		}
	}

	return warnings, nil
}

func validateCron(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	return err
}
