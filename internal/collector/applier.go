package collector

import (
	"os"

	"github.com/albertocavalcante/starcov/internal/analyzer"
	"github.com/albertocavalcante/starcov/internal/coverage"
)

// FileLoader reads a source file. Injectable so tests and embedders can
// supply virtual files; the default is os.ReadFile.
type FileLoader func(path string) ([]byte, error)

// Options configures what the collectors track beyond lines.
type Options struct {
	TrackBlocks     bool
	TrackConditions bool
}

// applier is the strategy-independent half of a collector: it lazily
// registers files and applies execution observations through the store's
// mutators. Both collectors delegate here, which is what guarantees
// identical downstream data shape.
type applier struct {
	store    *coverage.Store
	analyzer *analyzer.Analyzer
	readFile FileLoader
	opts     Options

	// deriveConditions enables inferring condition evaluations and true
	// outcomes from bare line events. Only the hook turns this on: it has
	// no direct condition signal, while instrumented programs report every
	// evaluation through their own probe. Deriving on top of probes would
	// double-count, and would count short-circuited operands that never
	// evaluated.
	deriveConditions bool

	// unreadable remembers files whose read failed; they are treated as
	// untracked rather than retried on every event.
	unreadable map[string]bool

	// firstExec caches, per code map, each function's first executable
	// body line. Used to derive call events from line events.
	firstExec map[*coverage.CodeMap]map[coverage.FuncID]int

	stats Stats
}

func newApplier(store *coverage.Store, an *analyzer.Analyzer, readFile FileLoader, opts Options) *applier {
	if readFile == nil {
		readFile = os.ReadFile
	}
	return &applier{
		store:      store,
		analyzer:   an,
		readFile:   readFile,
		opts:       opts,
		unreadable: make(map[string]bool),
		firstExec:  make(map[*coverage.CodeMap]map[coverage.FuncID]int),
	}
}

// ensureFile returns the store record for path, registering it on first
// touch. An unreadable file is recorded and skipped for the session.
func (ap *applier) ensureFile(path string) *coverage.SourceFile {
	if sf, err := ap.store.GetFile(path); err == nil {
		return sf
	}
	if ap.unreadable[path] {
		return nil
	}

	src, err := ap.readFile(path)
	if err != nil {
		ap.unreadable[path] = true
		ap.stats.Errors++
		return nil
	}
	cm, err := ap.analyzer.Analyze(path, src)
	if err != nil {
		ap.unreadable[path] = true
		ap.stats.Errors++
		return nil
	}
	sf, err := ap.store.InitFile(path, string(src), cm)
	if err != nil {
		ap.stats.Errors++
		return nil
	}
	return sf
}

// applyLine applies one line observation: the line itself, every block
// containing it, guard conditions evaluated on it, and a derived call
// event when the line is the first body line of a function.
func (ap *applier) applyLine(path string, line int) {
	sf := ap.ensureFile(path)
	if sf == nil {
		ap.stats.Skipped++
		return
	}
	cm := sf.CodeMap()
	if !cm.IsExecutable(line) {
		ap.stats.Skipped++
		return
	}

	if err := ap.store.SetLineExecuted(path, line); err != nil {
		ap.stats.Errors++
		return
	}

	if ap.opts.TrackBlocks {
		for _, id := range cm.BlocksContaining(line) {
			if err := ap.store.SetBlockExecuted(path, id); err != nil {
				ap.stats.Errors++
			}
		}
	}

	if ap.opts.TrackConditions && ap.deriveConditions {
		ap.applyLineConditions(sf, cm, path, line)
	}

	if id, ok := ap.functionEnteredAt(cm, line); ok {
		if err := ap.store.SetFunctionExecuted(path, id); err != nil {
			ap.stats.Errors++
		}
	}
}

// applyLineConditions updates conditions from a bare line event. A guard
// header line counts an evaluation for the conditions it spans; a line
// strictly inside a guarded block proves the guard's true outcome. False
// outcomes are not derivable from line events alone; only the
// instrumentation strategy observes them directly.
func (ap *applier) applyLineConditions(sf *coverage.SourceFile, cm *coverage.CodeMap, path string, line int) {
	for _, id := range cm.ConditionsContaining(line) {
		cond, ok := sf.Condition(id)
		if !ok || cond.StartLine != line {
			continue
		}
		if err := ap.store.SetConditionExecuted(path, id); err != nil {
			ap.stats.Errors++
		}
	}

	for _, bid := range cm.BlocksContaining(line) {
		blk, ok := sf.Block(bid)
		if !ok || line <= blk.StartLine {
			continue
		}
		switch blk.Kind {
		case coverage.BlockIf, coverage.BlockElseIf, coverage.BlockWhile:
		default:
			continue
		}
		for _, cond := range sf.Conditions() {
			if cond.Block == bid && cond.Parent == coverage.NoCondition {
				if err := ap.store.SetConditionOutcome(path, cond.ID, true); err != nil {
					ap.stats.Errors++
				}
			}
		}
	}
}

// applyCall applies a function entry observation for the function whose
// header is at line.
func (ap *applier) applyCall(path string, line int) {
	sf := ap.ensureFile(path)
	if sf == nil {
		ap.stats.Skipped++
		return
	}
	id, ok := sf.CodeMap().FunctionAtHeader(line)
	if !ok {
		ap.stats.Skipped++
		return
	}
	if err := ap.store.SetFunctionExecuted(path, id); err != nil {
		ap.stats.Errors++
	}
}

// applyCondition applies a directly observed guard evaluation.
func (ap *applier) applyCondition(path string, id coverage.CondID, outcome bool) {
	if ap.ensureFile(path) == nil {
		ap.stats.Skipped++
		return
	}
	if err := ap.store.SetConditionExecuted(path, id); err != nil {
		ap.stats.Errors++
		return
	}
	if err := ap.store.SetConditionOutcome(path, id, outcome); err != nil {
		ap.stats.Errors++
	}
}

// functionEnteredAt reports whether line is the first executable body
// line of a function, the signal that the function was actually called
// rather than merely defined.
func (ap *applier) functionEnteredAt(cm *coverage.CodeMap, line int) (coverage.FuncID, bool) {
	entries, ok := ap.firstExec[cm]
	if !ok {
		entries = make(map[coverage.FuncID]int, len(cm.Functions))
		for _, fn := range cm.Functions {
			for n := fn.StartLine + 1; n <= fn.EndLine; n++ {
				if cm.IsExecutable(n) {
					entries[fn.ID] = n
					break
				}
			}
		}
		ap.firstExec[cm] = entries
	}

	for _, fn := range cm.Functions {
		if entries[fn.ID] == line {
			return fn.ID, true
		}
	}
	return 0, false
}
