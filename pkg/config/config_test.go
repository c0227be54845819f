package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

const validConfig = `
schema_version: "1.2.0"
safety_level: moderate
quorum: 3
approval_timeout: 90s
destructive_operations:
  - drop_table
  - truncate_table
tools:
  - name: execute_sql
    category: write
    base_risk: MEDIUM
  - name: drop_table
    category: ddl
    base_risk: CRITICAL
    requires_approval: true
    destructive: true
constraints:
  max_affected_rows: 10000
  allowed_hours: [9, 10, 11, 12, 13, 14, 15, 16]
  backup_required: [ddl, restore]
  cel:
    no_prod_writes: 'step.category != "write" || step.operation != "execute_sql_prod"'
audit:
  driver: sqlite
  dsn: /var/lib/warden/audit.db
logging:
  level: DEBUG
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, "moderate", cfg.SafetyLevel)
	assert.Equal(t, 3, cfg.Quorum)
	assert.Equal(t, 90*time.Second, cfg.ApprovalTimeout.Std())
	assert.Equal(t, []string{"drop_table", "truncate_table"}, cfg.DestructiveOperations)
	assert.Equal(t, "sqlite", cfg.Audit.Driver)
	assert.Len(t, cfg.Tools, 2)
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`schema_version: "1.0.0"`))
	require.NoError(t, err)

	assert.Equal(t, string(contracts.SafetyStrict), cfg.SafetyLevel)
	assert.Equal(t, 2, cfg.Quorum)
	assert.Equal(t, 5*time.Minute, cfg.ApprovalTimeout.Std())
	assert.Equal(t, "memory", cfg.Audit.Driver)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestParseRejectsMissingSchemaVersion(t *testing.T) {
	_, err := Parse([]byte(`safety_level: strict`))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseRejectsUnsupportedSchemaVersion(t *testing.T) {
	_, err := Parse([]byte(`schema_version: "2.0.0"`))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "outside supported range")
}

func TestParseRejectsUnknownSafetyLevel(t *testing.T) {
	_, err := Parse([]byte("schema_version: \"1.0.0\"\nsafety_level: yolo\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseRejectsSQLDriverWithoutDSN(t *testing.T) {
	_, err := Parse([]byte("schema_version: \"1.0.0\"\naudit:\n  driver: postgres\n"))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "requires a dsn")
}

func TestParseRejectsOutOfRangeHour(t *testing.T) {
	_, err := Parse([]byte("schema_version: \"1.0.0\"\nconstraints:\n  allowed_hours: [25]\n"))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "out of range")
}

func TestParseRejectsUnknownToolRisk(t *testing.T) {
	doc := `
schema_version: "1.0.0"
tools:
  - name: execute_sql
    category: write
    base_risk: EXTREME
`
	_, err := Parse([]byte(doc))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPolicyMaterialization(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	policy, err := cfg.Policy()
	require.NoError(t, err)

	assert.Equal(t, contracts.SafetyModerate, policy.Level)
	assert.Equal(t, 3, policy.Quorum)
	assert.Equal(t, 90*time.Second, policy.ApprovalTimeout)
	require.NotNil(t, policy.Constraints)
	assert.Equal(t, 4, policy.Constraints.Len(), "rows, hours, backup and one cel constraint")
}

func TestPolicyRejectsBadCEL(t *testing.T) {
	doc := `
schema_version: "1.0.0"
constraints:
  cel:
    broken: 'step.category =='
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err, "expressions compile at materialization, not at parse")

	_, err = cfg.Policy()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), `cel constraint "broken"`)
}

func TestRegistryMaterialization(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	reg := cfg.Registry()
	desc, ok := reg.Lookup("drop_table")
	require.True(t, ok)
	assert.Equal(t, contracts.CategoryDDL, desc.Category)
	assert.Equal(t, contracts.RiskCritical, desc.BaseRisk)
	assert.True(t, desc.RequiresApproval)
	assert.True(t, desc.Destructive)

	_, ok = reg.Lookup("unknown_tool")
	assert.False(t, ok)
}

func TestTelemetryDisabledByDefault(t *testing.T) {
	cfg, err := Parse([]byte(`schema_version: "1.0.0"`))
	require.NoError(t, err)

	tc := cfg.Telemetry()
	assert.False(t, tc.Enabled)
	assert.Equal(t, "localhost:4317", tc.OTLPEndpoint)
	assert.Equal(t, 1.0, tc.SampleRate)
}

func TestTelemetryMaterialization(t *testing.T) {
	doc := `
schema_version: "1.0.0"
observability:
  enabled: true
  endpoint: collector.internal:4317
  sample_rate: 0.25
  insecure: true
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	tc := cfg.Telemetry()
	assert.True(t, tc.Enabled)
	assert.Equal(t, "collector.internal:4317", tc.OTLPEndpoint)
	assert.Equal(t, 0.25, tc.SampleRate)
	assert.True(t, tc.Insecure)
	assert.Equal(t, "warden", tc.ServiceName)
}

func TestParseRejectsOutOfRangeSampleRate(t *testing.T) {
	_, err := Parse([]byte("schema_version: \"1.0.0\"\nobservability:\n  sample_rate: 2.5\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", cfg.SchemaVersion)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
