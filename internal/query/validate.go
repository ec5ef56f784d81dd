package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotSelect rejects queries that do not begin with SELECT.
var ErrNotSelect = errors.New("query must begin with SELECT")

// blockedKeywords reject a query outright. This is a substring blocklist,
// not a SQL parser: column names containing a blocked token (created_at vs
// CREATE) false-positive, and tokens hidden in comments or string literals
// can evade it. Accepted tradeoff; the database role should be read-only
// regardless.
var blockedKeywords = []string{"DROP", "TRUNCATE", "ALTER", "CREATE", "GRANT", "REVOKE"}

// warnKeywords are accepted but flagged to the caller.
var warnKeywords = []string{"DELETE", "UPDATE", "INSERT"}

// BlockedKeywordError identifies which token caused rejection.
type BlockedKeywordError struct {
	Keyword string
}

func (e *BlockedKeywordError) Error() string {
	return fmt.Sprintf("query contains blocked keyword %s", e.Keyword)
}

// Validate checks a candidate query against the read-only gate. It returns
// warnings for suspicious-but-allowed keywords, or an error if the query is
// rejected. Enforced at the administrative boundary before a source is
// accepted.
func Validate(queryText string) ([]string, error) {
	trimmed := strings.TrimSpace(queryText)
	upper := strings.ToUpper(trimmed)

	if !strings.HasPrefix(upper, "SELECT") {
		return nil, ErrNotSelect
	}

	for _, kw := range blockedKeywords {
		if strings.Contains(upper, kw) {
			return nil, &BlockedKeywordError{Keyword: kw}
		}
	}

	var warnings []string
	for _, kw := range warnKeywords {
		if strings.Contains(upper, kw) {
			warnings = append(warnings, fmt.Sprintf("query contains %s keyword", kw))
		}
	}

	return warnings, nil
}
