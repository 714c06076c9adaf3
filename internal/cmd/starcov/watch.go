package starcov

import (
	"context"
	"flag"
	"io"
	"os/signal"
	"syscall"

	"github.com/albertocavalcante/starcov/internal/cli"
	"github.com/albertocavalcante/starcov/internal/session"
	"github.com/albertocavalcante/starcov/internal/snapshot"
	"github.com/albertocavalcante/starcov/internal/watcher"
)

func watchCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		configFlag     string
		instrumentFlag bool
		verboseFlag    bool
	)

	fs := flag.NewFlagSet("starcov watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configFlag, "config", "", "config file path (starcov.toml)")
	fs.BoolVar(&instrumentFlag, "instrument", false, "collect through source instrumentation instead of the interpreter hook")
	fs.BoolVar(&verboseFlag, "v", false, "verbose output")
	fs.Usage = func() {
		cli.Writeln(stderr, "Usage: starcov watch [flags] <files.star...>")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Watches scripts and their load() dependencies, re-running and")
		cli.Writeln(stderr, "re-reporting coverage on every change. Ctrl-C to stop.")
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
		cli.Writef(stderr, "starcov watch: %v\n", err)
		return cli.ExitError
	}
	if instrumentFlag {
		cfg.Collect.UseInstrumentation = true
	}

	w, err := watcher.New()
	if err != nil {
		cli.Writef(stderr, "starcov watch: %v\n", err)
		return cli.ExitError
	}
	defer func() { _ = w.Close() }()

	for _, file := range files {
		if err := w.Add(file); err != nil {
			cli.Writef(stderr, "starcov watch: %v\n", err)
			return cli.ExitError
		}
	}

	// One session for the whole watch, reset between runs. The session
	// owns the analyzer and the instrumentation rewrite cache, both keyed
	// by content hash, so unchanged files cost nothing on re-runs.
	sess := session.New(cfg.SessionOptions())

	// Initial full run, then one run per change batch.
	runOnce(sess, files, stdout, stderr, verboseFlag)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return cli.ExitOK

		case ev, ok := <-w.Events:
			if !ok {
				return cli.ExitOK
			}
			cli.Writef(stdout, "\nchange: %s\n", ev.File)
			for _, script := range ev.AffectedScripts {
				_ = w.Refresh(script)
			}
			runOnce(sess, ev.AffectedScripts, stdout, stderr, verboseFlag)

		case err, ok := <-w.Errors:
			if !ok {
				return cli.ExitOK
			}
			cli.Writef(stderr, "starcov watch: %v\n", err)
		}
	}
}

// runOnce executes the scripts under the shared session and prints a
// short coverage summary. Watch mode never exits on script failures.
//
// The reset drops file records rather than keeping them: a run is
// triggered by a content change, and a kept record would pin the changed
// file's old source and code map. Re-analysis of the unchanged files
// still hits the analyzer's content-hash cache.
func runOnce(sess *session.Session, files []string, stdout, stderr io.Writer, verbose bool) {
	sess.Reset(false)
	if err := sess.Start(); err != nil {
		cli.Writef(stderr, "starcov watch: %v\n", err)
		return
	}

	exec, err := newExecutor(sess)
	if err != nil {
		cli.Writef(stderr, "starcov watch: %v\n", err)
		return
	}

	for _, file := range files {
		if err := exec.execFile(file); err != nil {
			cli.Writef(stderr, "starcov watch: %s: %v\n", file, err)
		}
	}

	snap, _, err := sess.Stop()
	if err != nil {
		cli.Writef(stderr, "starcov watch: %v\n", err)
		return
	}

	if verbose {
		_ = (&snapshot.TextReporter{Verbose: true, ShowMissing: true}).Write(stdout, snap)
		return
	}
	cli.Writef(stdout, "coverage: %.1f%% covered, %.1f%% executed (%d/%d lines)\n",
		snap.Summary.CoveragePercent,
		snap.Summary.ExecutionPercent,
		snap.Summary.CoveredLines,
		snap.Summary.TotalLines)
}
