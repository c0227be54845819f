// Package config loads and validates the engine's YAML policy
// configuration, then materializes the runtime pieces (safety policy,
// constraint engine, tool registry) from it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/warden-labs/warden/core/pkg/constraint"
	"github.com/warden-labs/warden/core/pkg/contracts"
	"github.com/warden-labs/warden/core/pkg/observability"
	"github.com/warden-labs/warden/core/pkg/registry"
	"github.com/warden-labs/warden/core/pkg/safety"
)

// ErrInvalid marks a configuration that parsed but failed validation.
var ErrInvalid = errors.New("invalid configuration")

// supportedSchema is the schema_version range this build understands.
const supportedSchema = ">=1.0.0 <2.0.0"

// Config is the top-level policy document.
type Config struct {
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	SafetyLevel           string   `yaml:"safety_level" json:"safety_level"`
	Quorum                int      `yaml:"quorum,omitempty" json:"quorum,omitempty"`
	ApprovalTimeout       Duration `yaml:"approval_timeout,omitempty" json:"approval_timeout,omitempty"`
	DestructiveOperations []string `yaml:"destructive_operations,omitempty" json:"destructive_operations,omitempty"`

	Tools         []ToolConfig        `yaml:"tools,omitempty" json:"tools,omitempty"`
	Constraints   ConstraintsConfig   `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Audit         AuditConfig         `yaml:"audit,omitempty" json:"audit,omitempty"`
	Logging       LoggingConfig       `yaml:"logging,omitempty" json:"logging,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// Duration parses Go duration strings ("5m", "30s") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ToolConfig declares one tool known to the registry.
type ToolConfig struct {
	Name             string `yaml:"name" json:"name"`
	Category         string `yaml:"category" json:"category"`
	BaseRisk         string `yaml:"base_risk" json:"base_risk"`
	RequiresApproval bool   `yaml:"requires_approval,omitempty" json:"requires_approval,omitempty"`
	Destructive      bool   `yaml:"destructive,omitempty" json:"destructive,omitempty"`
}

// ConstraintsConfig declares the constraints evaluated on every step.
type ConstraintsConfig struct {
	MaxAffectedRows int64 `yaml:"max_affected_rows,omitempty" json:"max_affected_rows,omitempty"`

	// AllowedHours are UTC hours (0-23) during which mutating operations
	// may run. Empty means no hour restriction is configured.
	AllowedHours []int `yaml:"allowed_hours,omitempty" json:"allowed_hours,omitempty"`

	// BackupRequired lists categories that must be preceded by a backup
	// step in the same workflow.
	BackupRequired []string `yaml:"backup_required,omitempty" json:"backup_required,omitempty"`

	// CEL maps constraint names to CEL expressions over the step.
	CEL map[string]string `yaml:"cel,omitempty" json:"cel,omitempty"`
}

// AuditConfig selects the audit trail backend.
type AuditConfig struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty" json:"level,omitempty"`
}

// ObservabilityConfig controls OpenTelemetry export. Telemetry is opt-in;
// a disabled provider records nothing.
type ObservabilityConfig struct {
	Enabled    bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Endpoint   string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SampleRate float64 `yaml:"sample_rate,omitempty" json:"sample_rate,omitempty"`
	Insecure   bool    `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// Load reads, validates and defaults a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and defaults a raw YAML configuration document.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.checkSchemaVersion(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) checkSchemaVersion() error {
	if c.SchemaVersion == "" {
		return fmt.Errorf("%w: schema_version is required", ErrInvalid)
	}
	v, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return fmt.Errorf("%w: schema_version %q: %v", ErrInvalid, c.SchemaVersion, err)
	}
	rng, err := semver.NewConstraint(supportedSchema)
	if err != nil {
		return err
	}
	if !rng.Check(v) {
		return fmt.Errorf("%w: schema_version %s outside supported range %s",
			ErrInvalid, c.SchemaVersion, supportedSchema)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.SafetyLevel == "" {
		c.SafetyLevel = string(contracts.SafetyStrict)
	}
	if c.Quorum < 2 {
		c.Quorum = safety.DefaultQuorum
	}
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = Duration(safety.DefaultApprovalTimeout)
	}
	if c.Audit.Driver == "" {
		c.Audit.Driver = "memory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Observability.Endpoint == "" {
		c.Observability.Endpoint = "localhost:4317"
	}
	if c.Observability.SampleRate <= 0 {
		c.Observability.SampleRate = 1.0
	}
}

func (c *Config) validate() error {
	if !contracts.SafetyLevel(c.SafetyLevel).IsValid() {
		return fmt.Errorf("%w: unknown safety_level %q", ErrInvalid, c.SafetyLevel)
	}
	switch c.Audit.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Audit.DSN == "" {
			return fmt.Errorf("%w: audit driver %q requires a dsn", ErrInvalid, c.Audit.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown audit driver %q", ErrInvalid, c.Audit.Driver)
	}
	for _, h := range c.Constraints.AllowedHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("%w: allowed hour %d out of range", ErrInvalid, h)
		}
	}
	for _, tool := range c.Tools {
		if tool.Name == "" {
			return fmt.Errorf("%w: tool with empty name", ErrInvalid)
		}
		if _, err := contracts.ParseRiskLevel(tool.BaseRisk); err != nil {
			return fmt.Errorf("%w: tool %q: %v", ErrInvalid, tool.Name, err)
		}
	}
	return nil
}

// Engine compiles the configured constraints. CEL expressions are
// compiled eagerly so a bad expression fails at load time, not at the
// first validation.
func (c *Config) Engine() (*constraint.Engine, error) {
	var constraints []constraint.Constraint

	if c.Constraints.MaxAffectedRows > 0 {
		constraints = append(constraints, constraint.MaxAffectedRows{Limit: c.Constraints.MaxAffectedRows})
	}
	if len(c.Constraints.AllowedHours) > 0 {
		constraints = append(constraints, constraint.AllowedHours{Hours: c.Constraints.AllowedHours})
	}
	if len(c.Constraints.BackupRequired) > 0 {
		categories := make([]contracts.Category, 0, len(c.Constraints.BackupRequired))
		for _, cat := range c.Constraints.BackupRequired {
			categories = append(categories, contracts.Category(cat))
		}
		constraints = append(constraints, constraint.BackupRequired{Categories: categories})
	}
	for name, expr := range c.Constraints.CEL {
		cc, err := constraint.NewCELConstraint(name, expr)
		if err != nil {
			return nil, fmt.Errorf("%w: cel constraint %q: %v", ErrInvalid, name, err)
		}
		constraints = append(constraints, cc)
	}

	return constraint.NewEngine(constraints...), nil
}

// Policy materializes the safety policy, including the compiled
// constraint engine.
func (c *Config) Policy() (safety.Policy, error) {
	engine, err := c.Engine()
	if err != nil {
		return safety.Policy{}, err
	}
	return safety.Policy{
		Level:                 contracts.SafetyLevel(c.SafetyLevel),
		DestructiveOperations: c.DestructiveOperations,
		Quorum:                c.Quorum,
		ApprovalTimeout:       c.ApprovalTimeout.Std(),
		Constraints:           engine,
	}, nil
}

// Telemetry materializes the OpenTelemetry provider configuration.
func (c *Config) Telemetry() *observability.Config {
	tc := observability.DefaultConfig()
	tc.Enabled = c.Observability.Enabled
	tc.OTLPEndpoint = c.Observability.Endpoint
	tc.SampleRate = c.Observability.SampleRate
	tc.Insecure = c.Observability.Insecure
	return tc
}

// Registry materializes the tool registry from the declared tools.
func (c *Config) Registry() *registry.StaticRegistry {
	reg := registry.NewStaticRegistry()
	for _, tool := range c.Tools {
		risk, _ := contracts.ParseRiskLevel(tool.BaseRisk)
		reg.Register(contracts.ToolDescriptor{
			Name:             tool.Name,
			Category:         contracts.Category(strings.ToLower(tool.Category)),
			BaseRisk:         risk,
			RequiresApproval: tool.RequiresApproval,
			Destructive:      tool.Destructive,
		})
	}
	return reg
}

// validateSchema checks the raw document against the embedded JSON
// Schema before any Go-side defaulting runs.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	// Round-trip through encoding/json so the validator sees JSON-typed
	// values rather than YAML-typed ones.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: document is not JSON-compatible: %v", ErrInvalid, err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://warden.schemas.local/config.schema.json"
	if err := c.AddResource(url, strings.NewReader(configSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile(url)
}

const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version"],
  "properties": {
    "schema_version": {"type": "string"},
    "safety_level": {"enum": ["strict", "moderate", "permissive"]},
    "quorum": {"type": "integer", "minimum": 0},
    "approval_timeout": {"type": "string"},
    "destructive_operations": {"type": "array", "items": {"type": "string"}},
    "tools": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "category", "base_risk"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "category": {"enum": ["read", "write", "ddl", "backup", "restore"]},
          "base_risk": {"type": "string"},
          "requires_approval": {"type": "boolean"},
          "destructive": {"type": "boolean"}
        }
      }
    },
    "constraints": {
      "type": "object",
      "properties": {
        "max_affected_rows": {"type": "integer", "minimum": 1},
        "allowed_hours": {"type": "array", "items": {"type": "integer"}},
        "backup_required": {"type": "array", "items": {"type": "string"}},
        "cel": {"type": "object", "additionalProperties": {"type": "string"}}
      }
    },
    "audit": {
      "type": "object",
      "properties": {
        "driver": {"enum": ["memory", "sqlite", "postgres"]},
        "dsn": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string"}
      }
    },
    "observability": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "endpoint": {"type": "string"},
        "sample_rate": {"type": "number", "minimum": 0, "maximum": 1},
        "insecure": {"type": "boolean"}
      }
    }
  }
}`
