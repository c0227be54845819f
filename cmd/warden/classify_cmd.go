package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/warden-labs/warden/core/pkg/classifier"
)

// runClassifyCmd implements `warden classify`.
//
// Exit codes:
//
//	0 = statement is safe to execute without confirmation
//	1 = statement requires confirmation or carries blocking issues
//	2 = usage error
func runClassifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("classify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		statement  string
		jsonOutput bool
	)
	cmd.StringVar(&statement, "statement", "", "SQL statement to classify (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the analysis as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if statement == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --statement is required")
		return 2
	}

	analysis := classifier.Classify(statement)

	if jsonOutput {
		data, _ := json.MarshalIndent(analysis, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		_, _ = fmt.Fprintf(stdout, "Risk: %s\n", analysis.RiskLevel)
		_, _ = fmt.Fprintf(stdout, "Requires confirmation: %v\n", analysis.RequiresConfirmation)
		for _, w := range analysis.Warnings {
			_, _ = fmt.Fprintf(stdout, "  warning: %s\n", w)
		}
		for _, issue := range analysis.Issues {
			_, _ = fmt.Fprintf(stdout, "  issue: %s\n", issue)
		}
	}

	if !analysis.SafeToExecute || analysis.RequiresConfirmation {
		return 1
	}
	return 0
}
