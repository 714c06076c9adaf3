// Package starcov implements the starcov command line tool: coverage
// collection, reporting, merging, and source instrumentation for
// Starlark code.
package starcov

import (
	"context"
	"io"
	"os"

	"github.com/albertocavalcante/starcov/internal/cli"
	"github.com/albertocavalcante/starcov/internal/version"
)

// Run executes starcov with the given arguments.
// Returns exit code.
func Run(args []string) int {
	return RunWithIO(context.Background(), args, os.Stdin, os.Stdout, os.Stderr)
}

// RunWithIO allows custom IO for embedding/testing.
func RunWithIO(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return cli.ExitError
	}

	switch args[0] {
	case "run":
		return runCmd(ctx, args[1:], stdout, stderr)
	case "report":
		return reportCmd(args[1:], stdout, stderr)
	case "merge":
		return mergeCmd(args[1:], stdout, stderr)
	case "instrument":
		return instrumentCmd(args[1:], stdout, stderr)
	case "watch":
		return watchCmd(ctx, args[1:], stdout, stderr)
	case "version", "-version", "--version":
		cli.Writef(stdout, "starcov %s\n", version.String())
		return cli.ExitOK
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return cli.ExitOK
	default:
		cli.Writef(stderr, "starcov: unknown command %q\n\n", args[0])
		usage(stderr)
		return cli.ExitError
	}
}

func usage(w io.Writer) {
	cli.Writeln(w, "Usage: starcov <command> [flags] [args]")
	cli.Writeln(w)
	cli.Writeln(w, "Coverage engine for Starlark code.")
	cli.Writeln(w)
	cli.Writeln(w, "Commands:")
	cli.Writeln(w, "  run         execute Starlark files and collect coverage")
	cli.Writeln(w, "  report      render a coverage snapshot")
	cli.Writeln(w, "  merge       merge coverage snapshots")
	cli.Writeln(w, "  instrument  print the instrumented form of a file")
	cli.Writeln(w, "  watch       re-run files on change and report coverage")
	cli.Writeln(w, "  version     print version and exit")
	cli.Writeln(w)
	cli.Writeln(w, "Output Formats:")
	cli.Writeln(w, "  text      Human-readable summary (default)")
	cli.Writeln(w, "  json      Snapshot JSON, loadable by report and merge")
	cli.Writeln(w, "  cobertura Cobertura XML for CI (Jenkins, GitLab, etc.)")
	cli.Writeln(w, "  lcov      LCOV tracefile for genhtml and IDEs")
	cli.Writeln(w)
	cli.Writeln(w, "Examples:")
	cli.Writeln(w, "  starcov run script.star                 # Run and print a text report")
	cli.Writeln(w, "  starcov run -o cov.json script.star     # Save the snapshot")
	cli.Writeln(w, "  starcov report -format=lcov cov.json    # Convert a snapshot")
	cli.Writeln(w, "  starcov merge -o all.json a.json b.json # Fold worker snapshots")
	cli.Writeln(w, "  starcov report -fail-under=80 cov.json  # Gate on coverage")
	cli.Writeln(w, "")
	cli.Writeln(w, "Run 'starcov <command> -h' for command flags.")
}
