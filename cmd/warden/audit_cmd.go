package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/warden-labs/warden/core/pkg/audit"
	"github.com/warden-labs/warden/core/pkg/config"
	"github.com/warden-labs/warden/core/pkg/contracts"
)

// chainVerifier is implemented by trails that can check their hash chain.
type chainVerifier interface {
	VerifyChain() error
}

// runAuditCmd implements `warden audit`.
//
// Exit codes:
//
//	0 = listed (and, with --verify, chain intact)
//	1 = chain verification failed
//	2 = runtime or usage error
func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		limit      int
		approver   string
		minRisk    string
		verify     bool
		jsonOutput bool
	)
	cmd.StringVar(&configPath, "config", "", "Path to policy configuration (REQUIRED)")
	cmd.IntVar(&limit, "limit", 20, "Number of most recent entries to show")
	cmd.StringVar(&approver, "approver", "", "Only entries decided by this approver")
	cmd.StringVar(&minRisk, "min-risk", "", "Only entries at or above this risk level")
	cmd.BoolVar(&verify, "verify", false, "Verify the hash chain")
	cmd.BoolVar(&jsonOutput, "json", false, "Output entries as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if configPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --config is required")
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	trail, closeTrail, err := openTrail(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer closeTrail()

	var entries []audit.Entry
	if approver != "" || minRisk != "" {
		filter := audit.Filter{Approver: approver}
		if minRisk != "" {
			level, err := contracts.ParseRiskLevel(minRisk)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
				return 2
			}
			filter.MinRisk = &level
		}
		entries, err = trail.Query(filter)
	} else {
		entries, err = trail.Recent(limit)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(entries, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		for _, e := range entries {
			_, _ = fmt.Fprintf(stdout, "#%d %s %s %s approved=%v approver=%s %s\n",
				e.Sequence,
				e.DecidedAt.Format("2006-01-02T15:04:05Z"),
				e.Validation.Operation,
				e.Validation.RiskLevel,
				e.Decision.Approved,
				e.Decision.Approver,
				e.Decision.State,
			)
		}
	}

	if verify {
		v, ok := trail.(chainVerifier)
		if !ok {
			_, _ = fmt.Fprintln(stderr, "Error: trail does not support chain verification")
			return 2
		}
		if err := v.VerifyChain(); err != nil {
			_, _ = fmt.Fprintf(stdout, "Chain verification FAILED: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, "Chain verification passed")
	}
	return 0
}
