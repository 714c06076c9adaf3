// Package session ties the analyzer, store, and a collector strategy into
// one coverage run with an explicit lifecycle. A Session is created per
// run, never shared between goroutines, and becomes read-only after Stop.
package session

import (
	"errors"
	"fmt"
	"os"

	"go.starlark.net/starlark"

	"github.com/albertocavalcante/starcov/internal/analyzer"
	"github.com/albertocavalcante/starcov/internal/collector"
	"github.com/albertocavalcante/starcov/internal/coverage"
	"github.com/albertocavalcante/starcov/internal/patchup"
	"github.com/albertocavalcante/starcov/internal/snapshot"
)

// Mode selects how execution events are collected.
type Mode int

const (
	// ModeHook observes execution through the interpreter's OnExec hook.
	ModeHook Mode = iota
	// ModeInstrument observes execution through probes injected into the
	// source before evaluation.
	ModeInstrument
)

func (m Mode) String() string {
	switch m {
	case ModeHook:
		return "hook"
	case ModeInstrument:
		return "instrument"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Lifecycle errors.
var (
	ErrNotStarted     = errors.New("session not started")
	ErrAlreadyStarted = errors.New("session already started")
	ErrStopped        = errors.New("session stopped")
)

// Options configures a session.
type Options struct {
	// Mode picks the collection strategy. Defaults to ModeHook.
	Mode Mode

	// TrackBlocks and TrackConditions enable the finer-grained
	// propagation in the collector.
	TrackBlocks     bool
	TrackConditions bool

	// Analyzer bounds the static analysis. The zero value takes
	// analyzer defaults.
	Analyzer analyzer.Options

	// Normalize canonicalizes paths; nil uses the default normalizer.
	Normalize coverage.Normalizer

	// ReadFile loads source files; nil uses os.ReadFile.
	ReadFile collector.FileLoader
}

// Session owns the coverage state for one run.
type Session struct {
	opts  Options
	store *coverage.Store
	an    *analyzer.Analyzer

	hook *collector.Hook
	inst *collector.Instrumentation

	readFile collector.FileLoader

	started bool
	stopped bool
}

// New builds a session. No tracking happens until Start.
func New(opts Options) *Session {
	readFile := opts.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	s := &Session{
		opts:     opts,
		store:    coverage.NewStore(opts.Normalize),
		an:       analyzer.New(opts.Analyzer),
		readFile: readFile,
	}
	copts := collector.Options{
		TrackBlocks:     opts.TrackBlocks,
		TrackConditions: opts.TrackConditions,
	}
	switch opts.Mode {
	case ModeInstrument:
		s.inst = collector.NewInstrumentation(s.store, s.an, readFile, copts)
	default:
		s.hook = collector.NewHook(s.store, s.an, readFile, copts)
	}
	return s
}

// Store exposes the underlying store, mainly for export and tests.
func (s *Session) Store() *coverage.Store { return s.store }

// Mode reports the collection strategy in effect.
func (s *Session) Mode() Mode { return s.opts.Mode }

// Start marks the session active. Events arriving before Start are not
// an error at the collector level, but the lifecycle methods below
// insist on it so misuse surfaces early.
func (s *Session) Start() error {
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	return nil
}

// Stop runs reconciliation exactly once, seals the store against late
// writes, and exports the final snapshot. After Stop only Reset can make
// the session usable again.
func (s *Session) Stop() (*snapshot.Snapshot, *patchup.Report, error) {
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	if s.stopped {
		return nil, nil, ErrStopped
	}
	report := patchup.Reconcile(s.store)
	s.store.Seal()
	s.stopped = true
	return snapshot.Export(s.store), report, nil
}

// Reset clears runtime state and returns the session to its pre-Start
// state. With keepAnalysis the analyzed files stay registered so the
// next run skips re-analysis of unchanged content.
func (s *Session) Reset(keepAnalysis bool) {
	s.store.Reset(keepAnalysis)
	s.started = false
	s.stopped = false
}

// Sink returns the active collector as an event sink.
func (s *Session) Sink() collector.ExecutionEventSink {
	if s.inst != nil {
		return s.inst
	}
	return s.hook
}

// Stats reports the active collector's counters.
func (s *Session) Stats() collector.Stats {
	if s.inst != nil {
		return s.inst.Stats()
	}
	return s.hook.Stats()
}

// Attach installs the execution hook on a thread. Hook mode only.
func (s *Session) Attach(thread *starlark.Thread) error {
	if s.hook == nil {
		return fmt.Errorf("attach: session uses %s mode", s.opts.Mode)
	}
	s.hook.Attach(thread)
	return nil
}

// Builtins returns the probe builtins that instrumented sources call.
// Instrument mode only.
func (s *Session) Builtins() (starlark.StringDict, error) {
	if s.inst == nil {
		return nil, fmt.Errorf("builtins: session uses %s mode", s.opts.Mode)
	}
	return s.inst.Builtins(), nil
}

// Instrument analyzes and rewrites a source file for probe-based
// collection. A nil src reads the file through the session's loader.
func (s *Session) Instrument(path string, src []byte) (*collector.Instrumented, error) {
	if s.inst == nil {
		return nil, fmt.Errorf("instrument: session uses %s mode", s.opts.Mode)
	}
	if src == nil {
		var err error
		src, err = s.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	sf, err := s.ensureFile(path, src)
	if err != nil {
		return nil, err
	}
	return s.inst.Instrument(sf.Path(), src, sf.CodeMap())
}

// TrackLine records a direct execution observation for a line. Unlike
// hook events, an unreadable file here is reported to the caller.
func (s *Session) TrackLine(path string, line int) error {
	sf, err := s.loadFile(path)
	if err != nil {
		return err
	}
	cm := sf.CodeMap()
	if !cm.IsExecutable(line) {
		return nil
	}
	if err := s.store.SetLineExecuted(sf.Path(), line); err != nil {
		return err
	}
	if s.opts.TrackBlocks {
		for _, id := range cm.BlocksContaining(line) {
			if err := s.store.SetBlockExecuted(sf.Path(), id); err != nil {
				return err
			}
		}
	}
	return nil
}

// TrackBlock records an execution observation for a block by id.
func (s *Session) TrackBlock(path string, id coverage.BlockID) error {
	sf, err := s.loadFile(path)
	if err != nil {
		return err
	}
	return s.store.SetBlockExecuted(sf.Path(), id)
}

// TrackFunction records an execution observation for a function by id.
func (s *Session) TrackFunction(path string, id coverage.FuncID) error {
	sf, err := s.loadFile(path)
	if err != nil {
		return err
	}
	return s.store.SetFunctionExecuted(sf.Path(), id)
}

// MarkCovered upgrades a line from executed to covered: an assertion has
// validated behavior traceable to the line. Marking a line the tracker
// never saw execute still succeeds, since proof of behavior is proof the
// line ran. Coverage propagates to the blocks and function owning the
// line.
func (s *Session) MarkCovered(path string, line int) error {
	sf, err := s.loadFile(path)
	if err != nil {
		return err
	}
	if err := s.store.SetLineCovered(sf.Path(), line); err != nil {
		return err
	}
	cm := sf.CodeMap()
	for _, id := range cm.BlocksContaining(line) {
		if err := s.store.SetBlockCovered(sf.Path(), id); err != nil {
			return err
		}
	}
	if fn, ok := cm.FunctionContaining(line); ok {
		if err := s.store.SetFunctionCovered(sf.Path(), fn); err != nil {
			return err
		}
	}
	return nil
}

// loadFile returns the tracked file for path, reading and analyzing it
// on first touch.
func (s *Session) loadFile(path string) (*coverage.SourceFile, error) {
	canon, err := s.store.Canonical(path)
	if err != nil {
		return nil, fmt.Errorf("normalizing %s: %w", path, err)
	}
	if s.store.HasFile(canon) {
		return s.store.GetFile(canon)
	}
	src, err := s.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return s.ensureFile(canon, src)
}

func (s *Session) ensureFile(path string, src []byte) (*coverage.SourceFile, error) {
	cm, err := s.an.Analyze(path, src)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", path, err)
	}
	return s.store.InitFile(path, string(src), cm)
}
