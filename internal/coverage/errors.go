package coverage

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coverage error taxonomy.
var (
	// ErrValidation indicates bad caller input: an empty path, an
	// out-of-range line or an unknown block/condition/function id.
	ErrValidation = errors.New("validation error")

	// ErrSealed indicates a runtime mutation was attempted after the
	// session stopped. Collectors treat it as "ignore the late event".
	ErrSealed = errors.New("store is sealed")

	// ErrUnknownFile indicates a lookup for a file the store has never
	// seen.
	ErrUnknownFile = errors.New("unknown file")
)

// ParseError describes malformed source the analyzer could not parse.
// It never aborts a session; the analyzer converts it into a heuristic
// fallback and records the failure on the CodeMap.
type ParseError struct {
	Path string
	Line int
	Col  int
	Msg  string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// ConsistencyError describes a structural defect found while resolving the
// block or condition graph: an unresolved parent reference or a cycle.
// Cycles are fatal to analysis of that file; orphans are repaired by
// patchup and reported, never fatal.
type ConsistencyError struct {
	Path string
	Kind string // "orphan-block", "orphan-condition", "block-cycle", "condition-cycle"
	ID   int
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: %s (id %d)", e.Path, e.Kind, e.ID)
}

// validationErrorf wraps ErrValidation with context.
func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
