package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

func TestClassifyRiskLevels(t *testing.T) {
	tests := []struct {
		name string
		stmt string
		want contracts.RiskLevel
	}{
		{"drop table", "DROP TABLE users", contracts.RiskCritical},
		{"drop table lowercase", "drop table users;", contracts.RiskCritical},
		{"drop table mixed case", "DrOp TaBlE users", contracts.RiskCritical},
		{"drop database", "DROP DATABASE prod", contracts.RiskCritical},
		{"drop schema", "DROP SCHEMA analytics CASCADE", contracts.RiskCritical},
		{"drop with whitespace", "   \t DROP  TABLE   users  ", contracts.RiskCritical},
		{"truncate", "TRUNCATE TABLE events", contracts.RiskCritical},
		{"truncate short form", "truncate events", contracts.RiskCritical},
		{"delete without where", "DELETE FROM users", contracts.RiskHigh},
		{"update without where", "UPDATE users SET active = false", contracts.RiskHigh},
		{"delete with where", "DELETE FROM users WHERE id = 4", contracts.RiskMedium},
		{"update with where", "UPDATE users SET active = false WHERE id = 4", contracts.RiskMedium},
		{"insert", "INSERT INTO users (name) VALUES ('a')", contracts.RiskMedium},
		{"add column", "ALTER TABLE users ADD COLUMN age INT", contracts.RiskMedium},
		{"create index", "CREATE INDEX idx_users_email ON users(email)", contracts.RiskMedium},
		{"select", "SELECT id FROM users", contracts.RiskLow},
		{"explain", "EXPLAIN SELECT id FROM users", contracts.RiskLow},
		{"unrecognized", "VACUUM", contracts.RiskLow},
		{"empty", "", contracts.RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.stmt)
			assert.Equal(t, tt.want, got.RiskLevel, "statement: %q", tt.stmt)
		})
	}
}

func TestClassifyBoundingClauseNeverRaisesRisk(t *testing.T) {
	unbounded := Classify("DELETE FROM orders")
	bounded := Classify("DELETE FROM orders WHERE created_at < '2020-01-01'")

	assert.Equal(t, contracts.RiskHigh, unbounded.RiskLevel)
	assert.Equal(t, contracts.RiskMedium, bounded.RiskLevel)
	assert.True(t, bounded.RiskLevel < unbounded.RiskLevel)
}

func TestClassifyConfirmationAndSafety(t *testing.T) {
	critical := Classify("DROP TABLE users")
	assert.True(t, critical.RequiresConfirmation)
	assert.False(t, critical.SafeToExecute)

	high := Classify("DELETE FROM users")
	assert.True(t, high.RequiresConfirmation)
	assert.False(t, high.SafeToExecute)

	medium := Classify("DELETE FROM users WHERE id = 1")
	assert.False(t, medium.RequiresConfirmation)
	assert.True(t, medium.SafeToExecute)

	low := Classify("SELECT id FROM users")
	assert.False(t, low.RequiresConfirmation)
	assert.True(t, low.SafeToExecute)
}

func TestClassifyInjectionShape(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"SELECT id FROM users WHERE name = '' OR 1=1", true},
		{"SELECT id FROM users WHERE name = '' or '1'='1'", true},
		{"SELECT id FROM users WHERE id = 1", false},
		{"SELECT id FROM users WHERE a = 1 OR b = 2", false},
	}

	for _, tt := range tests {
		got := Classify(tt.stmt)
		assert.Equal(t, tt.want, contains(got.Issues, IssueInjection), "statement: %q", tt.stmt)
	}
}

func TestClassifyInjectionIsIssueNotRiskChange(t *testing.T) {
	got := Classify("SELECT id FROM users WHERE name = '' OR 1=1")
	assert.Equal(t, contracts.RiskLow, got.RiskLevel)
	assert.Contains(t, got.Issues, IssueInjection)
	assert.False(t, got.SafeToExecute, "injection shape must block safe execution")
}

func TestClassifyMultipleStatements(t *testing.T) {
	got := Classify("SELECT 1; SELECT 2;")
	assert.Contains(t, got.Issues, IssueMultiStatement)
	assert.False(t, got.SafeToExecute)

	single := Classify("SELECT 1;")
	assert.NotContains(t, single.Issues, IssueMultiStatement)
}

func TestClassifyWildcardSelect(t *testing.T) {
	got := Classify("SELECT * FROM users WHERE id = 1")
	assert.Equal(t, contracts.RiskLow, got.RiskLevel)
	assert.Equal(t, []string{IssueWildcard}, got.Issues)
	assert.True(t, got.SafeToExecute, "wildcard is a performance issue, not a hazard")
}

func TestClassifyUnterminatedScript(t *testing.T) {
	got := Classify("INSERT INTO a VALUES (1); INSERT INTO a VALUES (2)")
	assert.Contains(t, got.Issues, IssueNoTerminator)

	bare := Classify("SELECT id FROM users")
	assert.NotContains(t, bare.Issues, IssueNoTerminator)
}

// Comments are not stripped before matching: a commented DROP still
// classifies as CRITICAL. This is the fail-closed reading of an
// approximate classifier and is asserted here so a future change to
// comment handling is a deliberate one.
func TestClassifyCommentedDropStillCritical(t *testing.T) {
	got := Classify("SELECT id FROM users -- DROP TABLE users")
	assert.Equal(t, contracts.RiskCritical, got.RiskLevel)

	block := Classify("/* DROP TABLE users */ SELECT id FROM users")
	assert.Equal(t, contracts.RiskCritical, block.RiskLevel)
}

func TestClassifyIsDeterministic(t *testing.T) {
	stmt := "UPDATE users SET active = false WHERE id = 4; -- cleanup"
	first := Classify(stmt)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(stmt))
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
