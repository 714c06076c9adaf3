package starcov

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/albertocavalcante/starcov/internal/cli"
	"github.com/albertocavalcante/starcov/internal/config"
	"github.com/albertocavalcante/starcov/internal/session"
	"github.com/albertocavalcante/starcov/internal/snapshot"
)

func runCmd(_ context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		configFlag     string
		instrumentFlag bool
		formatFlag     string
		outputFlag     string
		mergeFlag      bool
		failUnderFlag  float64
		verboseFlag    bool
	)

	fs := flag.NewFlagSet("starcov run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configFlag, "config", "", "config file path (starcov.toml)")
	fs.BoolVar(&instrumentFlag, "instrument", false, "collect through source instrumentation instead of the interpreter hook")
	fs.StringVar(&formatFlag, "format", "", "report format: text, json, cobertura, lcov")
	fs.StringVar(&outputFlag, "o", "", "snapshot output file")
	fs.BoolVar(&mergeFlag, "merge", false, "merge the snapshot into -o under a file lock instead of overwriting")
	fs.Float64Var(&failUnderFlag, "fail-under", 0, "fail if line coverage is below this percentage")
	fs.BoolVar(&verboseFlag, "v", false, "verbose output")
	fs.Usage = func() {
		cli.Writeln(stderr, "Usage: starcov run [flags] <files.star...>")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Executes Starlark files and reports their coverage. Assertions")
		cli.Writeln(stderr, "made through the predeclared assert module mark their lines as")
		cli.Writeln(stderr, "covered rather than merely executed.")
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
	files := fs.Args()
	if len(files) == 0 {
		fs.Usage()
		return cli.ExitError
	}

	cfg, err := resolveConfig(configFlag)
	if err != nil {
		cli.Writef(stderr, "starcov run: %v\n", err)
		return cli.ExitError
	}
	if instrumentFlag {
		cfg.Collect.UseInstrumentation = true
	}
	if formatFlag != "" {
		cfg.Report.Format = formatFlag
	}
	if outputFlag != "" {
		cfg.Report.Output = outputFlag
	}
	if failUnderFlag > 0 {
		cfg.Report.FailUnder = failUnderFlag
	}

	sess := session.New(cfg.SessionOptions())
	if err := sess.Start(); err != nil {
		cli.Writef(stderr, "starcov run: %v\n", err)
		return cli.ExitError
	}

	exec, err := newExecutor(sess)
	if err != nil {
		cli.Writef(stderr, "starcov run: %v\n", err)
		return cli.ExitError
	}

	failed := 0
	for _, file := range files {
		if err := exec.execFile(file); err != nil {
			cli.Writef(stderr, "starcov run: %s: %v\n", file, err)
			failed++
		}
	}

	snap, report, err := sess.Stop()
	if err != nil {
		cli.Writef(stderr, "starcov run: %v\n", err)
		return cli.ExitError
	}

	if verboseFlag {
		for _, note := range report.Notes {
			cli.Writef(stderr, "starcov run: patchup: %s\n", note)
		}
		stats := sess.Stats()
		cli.Writef(stderr, "starcov run: %d events, %d skipped, %d errors in %s\n",
			stats.Events, stats.Skipped, stats.Errors, stats.HookTime)
	}

	if cfg.Report.Output != "" {
		if mergeFlag {
			err = snapshot.WriteFileLocked(cfg.Report.Output, snap)
		} else {
			err = snapshot.WriteFile(cfg.Report.Output, snap)
		}
		if err != nil {
			cli.Writef(stderr, "starcov run: %v\n", err)
			return cli.ExitError
		}
	}

	if err := writeReport(stdout, snap, cfg.Report.Format, verboseFlag); err != nil {
		cli.Writef(stderr, "starcov run: %v\n", err)
		return cli.ExitError
	}

	if failed > 0 {
		return cli.ExitError
	}
	return checkThreshold(stderr, snap, cfg.Report.FailUnder)
}

// resolveConfig loads the named config, or discovers one from the
// working directory.
func resolveConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}
	cfg, _, err := config.DiscoverConfig("")
	return cfg, err
}

func writeReport(w io.Writer, snap *snapshot.Snapshot, format string, verbose bool) error {
	if format == "" {
		format = "text"
	}
	reporter, err := snapshot.NewReporter(format, verbose)
	if err != nil {
		return err
	}
	return reporter.Write(w, snap)
}

// checkThreshold gates the exit code on line coverage.
func checkThreshold(stderr io.Writer, snap *snapshot.Snapshot, failUnder float64) int {
	if failUnder <= 0 {
		return cli.ExitOK
	}
	if snap.Summary.CoveragePercent < failUnder {
		cli.Writef(stderr, "starcov: coverage %.1f%% is below minimum %.1f%%\n",
			snap.Summary.CoveragePercent, failUnder)
		return cli.ExitThreshold
	}
	return cli.ExitOK
}

// outputWriter opens the -o target, or returns the default writer.
func outputWriter(path string, def io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return def, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
