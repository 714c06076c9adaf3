package starcov

import (
	"flag"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/albertocavalcante/starcov/internal/cli"
	"github.com/albertocavalcante/starcov/internal/session"
)

func instrumentCmd(args []string, stdout, stderr io.Writer) int {
	var (
		diffFlag   bool
		outputFlag string
	)

	fs := flag.NewFlagSet("starcov instrument", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&diffFlag, "diff", false, "show a unified diff against the original instead of the rewritten source")
	fs.StringVar(&outputFlag, "o", "", "output file (default: stdout)")
	fs.Usage = func() {
		cli.Writeln(stderr, "Usage: starcov instrument [flags] <file.star>")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Prints the probe-instrumented form of a Starlark file, as executed")
		cli.Writeln(stderr, "by 'starcov run -instrument'. Useful for inspecting probe placement.")
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
	path := fs.Arg(0)

	src, err := os.ReadFile(path)
	if err != nil {
		cli.Writef(stderr, "starcov instrument: %v\n", err)
		return cli.ExitError
	}

	sess := session.New(session.Options{Mode: session.ModeInstrument, TrackBlocks: true, TrackConditions: true})
	inst, err := sess.Instrument(path, src)
	if err != nil {
		cli.Writef(stderr, "starcov instrument: %v\n", err)
		return cli.ExitError
	}

	w, closeOut, err := outputWriter(outputFlag, stdout)
	if err != nil {
		cli.Writef(stderr, "starcov instrument: %v\n", err)
		return cli.ExitError
	}
	defer closeOut()

	if diffFlag {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(src)),
			B:        difflib.SplitLines(inst.Source),
			FromFile: path,
			ToFile:   path + " (instrumented)",
			Context:  3,
		}
		text, err := difflib.GetUnifiedDiffString(diff)
		if err != nil {
			cli.Writef(stderr, "starcov instrument: %v\n", err)
			return cli.ExitError
		}
		cli.Write(w, text)
		return cli.ExitOK
	}

	cli.Write(w, inst.Source)
	return cli.ExitOK
}
