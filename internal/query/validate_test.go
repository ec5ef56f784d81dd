package query

import (
	"errors"
	"testing"
)

func TestValidate_RequiresSelect(t *testing.T) {
	cases := []string{
		"UPDATE vessels SET status = 'gone'",
		"DELETE FROM vessels",
		"",
		"  WITH x AS (SELECT 1) SELECT * FROM x",
	}
	for _, q := range cases {
		if _, err := Validate(q); !errors.Is(err, ErrNotSelect) {
			t.Errorf("Validate(%q): expected ErrNotSelect, got %v", q, err)
		}
	}
}

func TestValidate_AcceptsSelect(t *testing.T) {
	warnings, err := Validate("  select id, name from vessels where berth_id = 3")
	if err != nil {
		t.Fatalf("Validate: unexpected error %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
}

func TestValidate_BlockedKeywords(t *testing.T) {
	q := "SELECT 1; DROP TABLE vessels"
	_, err := Validate(q)
	var blocked *BlockedKeywordError
	if !errors.As(err, &blocked) {
		t.Fatalf("Validate(%q): expected BlockedKeywordError, got %v", q, err)
	}
	if blocked.Keyword != "DROP" {
		t.Errorf("expected keyword DROP, got %s", blocked.Keyword)
	}
}

// The blocklist is substring-based, so a column named created_at trips the
// CREATE token. Documented tradeoff; the test pins the behavior so a change
// is deliberate.
func TestValidate_SubstringFalsePositive(t *testing.T) {
	_, err := Validate("SELECT created_at FROM vessels")
	var blocked *BlockedKeywordError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockedKeywordError for created_at, got %v", err)
	}
	if blocked.Keyword != "CREATE" {
		t.Errorf("expected keyword CREATE, got %s", blocked.Keyword)
	}
}

func TestValidate_WarnKeywords(t *testing.T) {
	warnings, err := Validate("SELECT * FROM updates WHERE last_update > now() - interval '1 day'")
	if err != nil {
		t.Fatalf("Validate: unexpected error %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
}
