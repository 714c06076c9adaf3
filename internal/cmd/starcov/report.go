package starcov

import (
	"flag"
	"io"

	"github.com/albertocavalcante/starcov/internal/cli"
	"github.com/albertocavalcante/starcov/internal/snapshot"
)

func reportCmd(args []string, stdout, stderr io.Writer) int {
	var (
		formatFlag    string
		outputFlag    string
		sourceFlag    string
		failUnderFlag float64
		verboseFlag   bool
	)

	fs := flag.NewFlagSet("starcov report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&formatFlag, "format", "text", "output format: text, json, cobertura, lcov")
	fs.StringVar(&outputFlag, "o", "", "output file (default: stdout)")
	fs.StringVar(&sourceFlag, "source", "", "source directory for relative paths")
	fs.Float64Var(&failUnderFlag, "fail-under", 0, "fail if line coverage is below this percentage")
	fs.BoolVar(&verboseFlag, "v", false, "verbose output")
	fs.Usage = func() {
		cli.Writeln(stderr, "Usage: starcov report [flags] <snapshot.json>")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Renders a coverage snapshot produced by 'starcov run -o'.")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return cli.ExitOK
		}
		return cli.ExitError
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return cli.ExitError
	}

	snap, err := snapshot.ReadFile(fs.Arg(0))
	if err != nil {
		cli.Writef(stderr, "starcov report: %v\n", err)
		return cli.ExitError
	}

	w, closeOut, err := outputWriter(outputFlag, stdout)
	if err != nil {
		cli.Writef(stderr, "starcov report: %v\n", err)
		return cli.ExitError
	}
	defer closeOut()

	var reporter snapshot.Reporter
	switch formatFlag {
	case "cobertura":
		reporter = &snapshot.CoberturaReporter{SourceDir: sourceFlag}
	default:
		reporter, err = snapshot.NewReporter(formatFlag, verboseFlag)
		if err != nil {
			cli.Writef(stderr, "starcov report: %v\n", err)
			return cli.ExitError
		}
	}

	if err := reporter.Write(w, snap); err != nil {
		cli.Writef(stderr, "starcov report: %v\n", err)
		return cli.ExitError
	}

	return checkThreshold(stderr, snap, failUnderFlag)
}

func mergeCmd(args []string, stdout, stderr io.Writer) int {
	var outputFlag string

	fs := flag.NewFlagSet("starcov merge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&outputFlag, "o", "", "output file (default: stdout)")
	fs.Usage = func() {
		cli.Writeln(stderr, "Usage: starcov merge [flags] <snapshots.json...>")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Merges coverage snapshots: flags are OR-ed, counts are summed,")
		cli.Writeln(stderr, "files present on one side only pass through unchanged.")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return cli.ExitOK
		}
		return cli.ExitError
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return cli.ExitError
	}

	var merged *snapshot.Snapshot
	for _, path := range fs.Args() {
		snap, err := snapshot.ReadFile(path)
		if err != nil {
			cli.Writef(stderr, "starcov merge: %v\n", err)
			return cli.ExitError
		}
		if merged == nil {
			merged = snap
		} else {
			merged = snapshot.Merge(merged, snap)
		}
	}

	if outputFlag != "" {
		if err := snapshot.WriteFile(outputFlag, merged); err != nil {
			cli.Writef(stderr, "starcov merge: %v\n", err)
			return cli.ExitError
		}
		return cli.ExitOK
	}
	if err := snapshot.Encode(stdout, merged, true); err != nil {
		cli.Writef(stderr, "starcov merge: %v\n", err)
		return cli.ExitError
	}
	return cli.ExitOK
}
