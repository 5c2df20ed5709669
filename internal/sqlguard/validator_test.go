package sqlguard_test

import (
	"errors"
	"testing"

	"github.com/lunavale/mnemo/internal/sqlguard"
)

func TestValidate_AcceptsScopedSelect(t *testing.T) {
	t.Parallel()
	stmt := "SELECT count(*) FROM turns WHERE user_id = 'u1'"
	if err := sqlguard.Validate(stmt, "u1"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestValidate_RejectsMutationKeywordsAnyCase(t *testing.T) {
	t.Parallel()
	stmts := []string{
		"SELECT 1; DROP TABLE turns --'u1'",
		"select * from turns where user_id='u1'; delete from turns",
		"SELECT 1 WHERE 'u1'='u1' uPdAtE turns SET text=''",
		"select 1 /* 'u1' */ Insert into turns values (1)",
		"SELECT * FROM turns WHERE user_id='u1'; TRUNCATE turns",
		"SELECT * FROM turns WHERE user_id='u1' ALTER TABLE turns",
	}
	for _, stmt := range stmts {
		if err := sqlguard.Validate(stmt, "u1"); err == nil {
			t.Errorf("expected rejection for %q, got nil", stmt)
		}
	}
}

func TestValidate_RejectsNonSelect(t *testing.T) {
	t.Parallel()
	if err := sqlguard.Validate("WITH x AS (SELECT 1) SELECT * FROM x WHERE 'u1'='u1'", "u1"); err == nil {
		t.Error("expected rejection for statement not starting with SELECT")
	}
	if err := sqlguard.Validate("", "u1"); err == nil {
		t.Error("expected rejection for empty statement")
	}
}

func TestValidate_RejectsSystemReferences(t *testing.T) {
	t.Parallel()
	stmts := []string{
		"SELECT * FROM pg_catalog.pg_tables WHERE 'u1'='u1'",
		"SELECT * FROM information_schema.tables WHERE 'u1'='u1'",
		"SELECT value FROM system_state WHERE 'u1'='u1'",
	}
	for _, stmt := range stmts {
		if err := sqlguard.Validate(stmt, "u1"); err == nil {
			t.Errorf("expected rejection for %q, got nil", stmt)
		}
	}
}

func TestValidate_RejectsUnscopedSelect(t *testing.T) {
	t.Parallel()
	stmt := "SELECT count(*) FROM turns"
	err := sqlguard.Validate(stmt, "u1")
	if err == nil {
		t.Fatal("expected rejection for well-formed SELECT lacking the user id")
	}
	var rej *sqlguard.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("error should be a *RejectionError, got %T", err)
	}
}

func TestValidate_RejectsEmptyUserID(t *testing.T) {
	t.Parallel()
	if err := sqlguard.Validate("SELECT 1", ""); err == nil {
		t.Error("expected rejection when the user id is empty")
	}
}

func TestValidate_LeadingWhitespaceAndCase(t *testing.T) {
	t.Parallel()
	stmt := "   select text from turns where user_id = 'u1' limit 5"
	if err := sqlguard.Validate(stmt, "u1"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}
