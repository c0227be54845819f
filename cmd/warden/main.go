package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "classify":
		return runClassifyCmd(args[2:], stdout, stderr)
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "warden - safety and approval engine for database operations")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  warden classify --statement <sql> [--json]")
	fmt.Fprintln(w, "      Classify one SQL statement without policy context.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  warden validate --config <file> --operation <name> [--statement <sql>] [--approve] [--json]")
	fmt.Fprintln(w, "      Validate an operation against the configured policy;")
	fmt.Fprintln(w, "      with --approve, resolve the approval interactively and")
	fmt.Fprintln(w, "      record the outcome in the audit trail.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  warden audit --config <file> [--limit <n>] [--approver <id>] [--verify] [--json]")
	fmt.Fprintln(w, "      Inspect the audit trail and verify its hash chain.")
	fmt.Fprintln(w, "")
}
