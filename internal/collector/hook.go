package collector

import (
	"time"

	"go.starlark.net/starlark"

	"github.com/albertocavalcante/starcov/internal/analyzer"
	"github.com/albertocavalcante/starcov/internal/coverage"
)

// Hook is the debug-hook collector: it bridges the interpreter's
// per-statement execution callback onto the ExecutionEventSink contract.
//
// EXPERIMENTAL: attaching requires starlark-go-x with the Thread.OnExec
// hook; the replace directive in go.mod selects it.
// TODO(upstream): drop the note once OnExec is merged to go.starlark.net
type Hook struct {
	ap *applier

	// busy short-circuits reentrant events. Interpreters can fire
	// execution callbacks while formatting errors or resolving attribute
	// access from inside the callback itself; without the guard that
	// recursion never terminates.
	busy bool
}

// NewHook creates a debug-hook collector writing into store.
func NewHook(store *coverage.Store, an *analyzer.Analyzer, readFile FileLoader, opts Options) *Hook {
	ap := newApplier(store, an, readFile, opts)
	ap.deriveConditions = true
	return &Hook{ap: ap}
}

// Attach registers the collector on a thread. Every statement executed by
// that thread is reported as a line event.
func (h *Hook) Attach(thread *starlark.Thread) {
	thread.OnExec = func(fn *starlark.Function, pc uint32) {
		pos := fn.PositionAt(pc)
		h.OnLine(pos.Filename(), int(pos.Line))
	}
}

// OnLine implements ExecutionEventSink. Failures never propagate into the
// program under measurement: panics are recovered, counted, and the event
// is dropped.
func (h *Hook) OnLine(file string, line int) {
	if h.busy {
		return
	}
	h.busy = true
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.ap.stats.Errors++
		}
		h.ap.stats.HookTime += time.Since(start)
		h.busy = false
	}()

	h.ap.stats.Events++
	h.ap.applyLine(file, line)
}

// OnCall implements ExecutionEventSink.
func (h *Hook) OnCall(file string, line int) {
	if h.busy {
		return
	}
	h.busy = true
	defer func() {
		if r := recover(); r != nil {
			h.ap.stats.Errors++
		}
		h.busy = false
	}()

	h.ap.stats.Events++
	h.ap.applyCall(file, line)
}

// OnReturn implements ExecutionEventSink. Returns carry no coverage
// signal beyond the counter.
func (h *Hook) OnReturn(string, int) {
	h.ap.stats.Events++
}

// Stats returns the collector's performance counters.
func (h *Hook) Stats() Stats {
	return h.ap.stats
}
