package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/warden-labs/warden/core/pkg/approval"
	"github.com/warden-labs/warden/core/pkg/audit"
	"github.com/warden-labs/warden/core/pkg/config"
	"github.com/warden-labs/warden/core/pkg/contracts"
	"github.com/warden-labs/warden/core/pkg/observability"
	"github.com/warden-labs/warden/core/pkg/safety"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

// runValidateCmd implements `warden validate`.
//
// Exit codes:
//
//	0 = validated, and approved if --approve was given
//	1 = approval required but not granted
//	2 = runtime or usage error
func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		operation  string
		statement  string
		category   string
		approve    bool
		jsonOutput bool
	)
	cmd.StringVar(&configPath, "config", "", "Path to policy configuration (REQUIRED)")
	cmd.StringVar(&operation, "operation", "", "Operation name (REQUIRED)")
	cmd.StringVar(&statement, "statement", "", "SQL statement the operation will execute")
	cmd.StringVar(&category, "category", "", "Operation category override (read|write|ddl|backup|restore)")
	cmd.BoolVar(&approve, "approve", false, "Resolve required approvals interactively and record the outcome")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the validation result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if configPath == "" || operation == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --config and --operation are required")
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger := observability.NewLogger(stderr, cfg.Logging.Level)

	ctx := context.Background()
	telemetry, err := observability.New(ctx, cfg.Telemetry())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	policy, err := cfg.Policy()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	controller := safety.NewController(policy, cfg.Registry()).WithLogger(logger)

	step := contracts.OperationStep{
		StepID:    uuid.New().String(),
		Operation: operation,
		Category:  contracts.Category(category),
		Statement: statement,
		CreatedAt: time.Now().UTC(),
	}

	result := controller.Validate(ctx, step)
	telemetry.RecordValidation(ctx, result)

	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		printValidation(stdout, result)
	}

	if !approve {
		if result.RequiresApproval {
			return 1
		}
		return 0
	}

	trail, closeTrail, err := openTrail(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer closeTrail()

	coordinator := approval.NewCoordinator(trail,
		approval.WithInteractive(approval.InteractiveStrategy{In: os.Stdin, Out: stderr}),
		approval.WithDefaultTimeout(policy.Timeout()),
		approval.WithLogger(logger),
	)

	finish := telemetry.TrackApproval(ctx, step.Operation)
	decision, err := coordinator.RequestApproval(ctx, step, result, nil, policy.Timeout())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	finish(decision)

	_, _ = fmt.Fprintf(stdout, "Decision: %s (%s)\n", decision.State, decision.Reason)
	if !decision.Approved {
		return 1
	}
	return 0
}

func printValidation(w io.Writer, result contracts.ValidationResult) {
	_, _ = fmt.Fprintf(w, "Operation: %s\n", result.Operation)
	_, _ = fmt.Fprintf(w, "Risk: %s\n", result.RiskLevel)
	_, _ = fmt.Fprintf(w, "Requires approval: %v", result.RequiresApproval)
	if result.RequiresApproval {
		_, _ = fmt.Fprintf(w, " (%s)", result.ApprovalRequirement)
	}
	_, _ = fmt.Fprintln(w)
	for _, risk := range result.Risks {
		_, _ = fmt.Fprintf(w, "  risk: %s\n", risk)
	}
	for _, m := range result.Mitigations {
		_, _ = fmt.Fprintf(w, "  mitigation: %s\n", m)
	}
	if result.Analysis != nil {
		for _, issue := range result.Analysis.Issues {
			_, _ = fmt.Fprintf(w, "  issue: %s\n", issue)
		}
	}
}

// openTrail builds the audit trail selected by the configuration.
func openTrail(ctx context.Context, cfg *config.Config) (audit.Trail, func(), error) {
	switch cfg.Audit.Driver {
	case "memory":
		return audit.NewMemoryTrail(), func() {}, nil
	case "sqlite", "postgres":
		db, err := sql.Open(cfg.Audit.Driver, cfg.Audit.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit database: %w", err)
		}
		trail, err := audit.NewSQLTrail(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return trail, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown audit driver %q", cfg.Audit.Driver)
	}
}
