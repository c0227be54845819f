// Package classifier implements deterministic, regex-based risk classification
// of SQL/DDL statements. Classification is intentionally not model-based:
// safety checks must be fast, reproducible, and independent of whatever
// generated the statement.
//
// The classifier is advisory. It does not parse SQL; comments are not
// stripped before matching, so a commented-out DROP still classifies as
// CRITICAL. That is the fail-closed reading of an inherently approximate
// scan, and callers must not treat SafeToExecute as a substitute for
// least-privilege database permissions.
package classifier

import (
	"regexp"
	"strings"
	"sync"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

// riskRule pairs a statement pattern with an optional exclusion pattern.
// A statement that matches both pattern and exclude is not flagged by this rule.
type riskRule struct {
	pattern *regexp.Regexp
	exclude *regexp.Regexp // nil means no exclusion
	level   contracts.RiskLevel
	warning string
}

type rawRiskRule struct {
	pattern string
	exclude string // empty means no exclusion
	level   contracts.RiskLevel
	warning string
}

// riskRules is evaluated in order, most severe first. The first match wins,
// which makes the result the highest matching level.
var rawRiskRules = []rawRiskRule{
	{`(?is)\bdrop\s+(table|database|schema)\b`, ``,
		contracts.RiskCritical, "destructive schema operation: DROP is irreversible"},
	{`(?is)\btruncate\s+(table\s+)?\S+`, ``,
		contracts.RiskCritical, "full-table TRUNCATE wipes all rows"},
	{`(?is)\bupdate\s+\S+`, `(?is)\bwhere\b`,
		contracts.RiskHigh, "UPDATE without WHERE clause affects every row"},
	{`(?is)\bdelete\s+from\s+\S+`, `(?is)\bwhere\b`,
		contracts.RiskHigh, "DELETE without WHERE clause affects every row"},
	{`(?is)\bupdate\s+\S+`, ``,
		contracts.RiskMedium, "bounded UPDATE modifies existing rows"},
	{`(?is)\bdelete\s+from\s+\S+`, ``,
		contracts.RiskMedium, "bounded DELETE removes rows"},
	{`(?is)\binsert\s+into\b`, ``,
		contracts.RiskMedium, "INSERT adds rows"},
	{`(?is)\balter\s+table\b.*\badd\b`, ``,
		contracts.RiskMedium, "additive schema change"},
	{`(?is)\bcreate\s+(unique\s+)?index\b`, ``,
		contracts.RiskMedium, "index creation locks the table on some engines"},
	{`(?is)^\s*(select|show|describe|explain|with)\b`, ``,
		contracts.RiskLow, ""},
}

// Issue messages are fixed strings so downstream filtering and tests can
// match on them verbatim.
const (
	IssueInjection      = "possible boolean tautology injection (OR 1=1 shape)"
	IssueMultiStatement = "multiple statements detected; verify intentional"
	IssueWildcard       = "wildcard column selection (*) may degrade performance"
	IssueNoTerminator   = "statement does not end with ';'"
)

var (
	riskRules []riskRule
	rulesOnce sync.Once

	injectionRe = regexp.MustCompile(`(?i)\bor\s+'?1'?\s*=\s*'?1`)
	wildcardRe  = regexp.MustCompile(`(?is)\bselect\s+\*`)
)

func compileRules() {
	rulesOnce.Do(func() {
		riskRules = make([]riskRule, len(rawRiskRules))
		for i, r := range rawRiskRules {
			riskRules[i] = riskRule{
				pattern: regexp.MustCompile(r.pattern),
				level:   r.level,
				warning: r.warning,
			}
			if r.exclude != "" {
				riskRules[i].exclude = regexp.MustCompile(r.exclude)
			}
		}
	})
}

// Classify inspects a statement and returns its risk analysis.
// Pure and deterministic: no I/O, no clock, no configuration.
//
// Unrecognized statement shapes classify as LOW with no warnings; the
// classifier errs toward requiring explicit high-risk patterns rather
// than guessing.
func Classify(statement string) contracts.OperationAnalysis {
	compileRules()

	trimmed := strings.TrimSpace(statement)
	analysis := contracts.OperationAnalysis{RiskLevel: contracts.RiskLow}

	if trimmed == "" {
		analysis.SafeToExecute = true
		return analysis
	}

	for _, rule := range riskRules {
		if !rule.pattern.MatchString(trimmed) {
			continue
		}
		if rule.exclude != nil && rule.exclude.MatchString(trimmed) {
			continue
		}
		analysis.RiskLevel = rule.level
		if rule.warning != "" {
			analysis.Warnings = append(analysis.Warnings, rule.warning)
		}
		break
	}

	hazardous := false

	if injectionRe.MatchString(trimmed) {
		analysis.Issues = append(analysis.Issues, IssueInjection)
		hazardous = true
	}
	if strings.Count(trimmed, ";") > 1 {
		analysis.Issues = append(analysis.Issues, IssueMultiStatement)
		hazardous = true
	}
	if wildcardRe.MatchString(trimmed) {
		analysis.Issues = append(analysis.Issues, IssueWildcard)
	}
	// The terminator style check only fires for scripts that use ';'
	// elsewhere but leave the final statement unterminated. A bare single
	// statement without ';' is accepted as-is.
	if strings.Contains(trimmed, ";") && !strings.HasSuffix(trimmed, ";") {
		analysis.Issues = append(analysis.Issues, IssueNoTerminator)
	}

	analysis.RequiresConfirmation = analysis.RiskLevel.AtLeast(contracts.RiskHigh)
	analysis.SafeToExecute = analysis.RiskLevel <= contracts.RiskMedium && !hazardous

	return analysis
}
