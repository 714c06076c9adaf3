// Package cli provides shared utilities for the starcov CLI.
package cli

// Standard exit codes for starcov commands.
//
// These follow Unix conventions:
//   - 0: Success
//   - 1: General error (parse failures, runtime errors, etc.)
//   - 2: Threshold or check failures
const (
	// ExitOK indicates successful execution with no issues.
	ExitOK = 0

	// ExitError indicates a fatal error occurred (parse error, I/O error, etc.).
	ExitError = 1

	// ExitThreshold indicates the run completed but a coverage check
	// failed. For example:
	//   - starcov run with fail_under and coverage below the threshold
	//   - starcov report -fail-under below the threshold
	ExitThreshold = 2
)
