// Package coverage defines the coverage data model and the session-scoped
// store that holds it.
//
// The model splits structural data from runtime data. A CodeMap is the
// immutable, content-addressed result of static analysis: per-line
// classification, the block tree, the condition graph and the function
// table. A SourceFile combines a CodeMap with the mutable runtime state
// (executed/covered flags and execution counts) accumulated while tests
// run. CodeMaps are shared freely between sessions; SourceFiles are not.
package coverage

import (
	"crypto/sha256"
	"encoding/hex"
)

// BlockID indexes a block within one file. Blocks live in a flat arena;
// parent and child references are indices, never pointers.
type BlockID int

// CondID indexes a condition within one file.
type CondID int

// FuncID indexes a function within one file.
type FuncID int

// NoBlock marks an absent block reference (an unresolved parent, or the
// root's own parent).
const NoBlock BlockID = -1

// NoCondition marks an absent condition reference.
const NoCondition CondID = -1

// RootBlockID is the per-file sentinel block. It always exists, always
// spans the whole file, and is the relink target for orphaned blocks.
const RootBlockID BlockID = 0

// Line is the per-line coverage record: the analysis-time classification
// plus the runtime flags and counter.
type Line struct {
	// Number is the 1-based line number.
	Number int

	// Class is the analysis-time classification of the line.
	Class Classification

	// Executable reports whether the static analyzer determined this line
	// can run code. Non-executable lines are never marked executed.
	Executable bool

	// Executed reports whether the runtime observed the line running.
	Executed bool

	// ExecutionCount is the number of times the line was observed running.
	ExecutionCount uint64

	// Covered reports whether a test assertion validated behavior at this
	// line. Covered implies Executed.
	Covered bool

	// Blocks lists the blocks whose range contains this line, outermost
	// first. The root block is always present.
	Blocks []BlockID
}

// Block is a syntactic compound-statement region with a line range and a
// place in the per-file block tree.
type Block struct {
	ID        BlockID
	Kind      BlockKind
	StartLine int
	EndLine   int

	// Parent is the enclosing block, or NoBlock for the root. During
	// analysis a block may briefly hold NoBlock until the resolution pass
	// links it; after analysis only the root may hold NoBlock.
	Parent   BlockID
	Children []BlockID

	Executed       bool
	ExecutionCount uint64
	Covered        bool
}

// Condition is a boolean sub-expression within a control-flow guard.
type Condition struct {
	ID   CondID
	Kind ConditionKind

	// StartLine/StartCol/EndLine/EndCol delimit the source span.
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int

	// Parent is the enclosing condition, or NoCondition for a top-level
	// guard condition.
	Parent     CondID
	Components []CondID

	// Block is the control-flow block guarded by (or containing) this
	// condition.
	Block BlockID

	// TrueOutcome and FalseOutcome report which boolean outcomes the
	// runtime has observed for this condition.
	TrueOutcome  bool
	FalseOutcome bool

	ExecutionCount uint64
}

// Function is a function definition with a best-effort name.
type Function struct {
	ID FuncID

	// Name is the definition name, an assignment target for lambdas, or a
	// synthetic "<anonymous:LINE>" id.
	Name string

	StartLine int
	EndLine   int

	Executed       bool
	ExecutionCount uint64
	Covered        bool
}

// HashSource returns the content hash used to key CodeMap and
// instrumentation caches.
func HashSource(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}
