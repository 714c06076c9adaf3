// Package collector turns live execution signals into coverage store
// updates.
//
// Two interchangeable strategies satisfy the ExecutionEventSink contract:
// the debug-hook collector, which subscribes to the interpreter's per-
// statement execution callback, and the instrumentation collector, which
// rewrites source to call explicit tracking builtins before loading it.
// Both funnel into the same store mutators, so downstream data shape does
// not depend on the strategy.
package collector

import "time"

// ExecutionEventSink receives execution events from a running program.
type ExecutionEventSink interface {
	// OnLine reports that the statement at file:line is about to execute.
	OnLine(file string, line int)

	// OnCall reports entry into the function whose header is file:line.
	OnCall(file string, line int)

	// OnReturn reports return from the function whose header is file:line.
	OnReturn(file string, line int)
}

// Stats are per-session performance counters for diagnosing collection
// overhead.
type Stats struct {
	// Events is the number of events received.
	Events uint64

	// Skipped is the number of events dropped because the target line is
	// statically non-executable or its file is unreadable.
	Skipped uint64

	// Errors is the number of events abandoned due to an internal error
	// or recovered panic.
	Errors uint64

	// HookTime is the cumulative wall-clock time spent inside event
	// processing.
	HookTime time.Duration
}
