package coverage

// CodeMap is the immutable structural map of one source file.
//
// It is produced once per content hash by the static analyzer and shared
// by every consumer; nothing may mutate it after construction. Runtime
// state lives on SourceFile, which copies the structural arenas at init.
type CodeMap struct {
	// Path is the canonical path the map was built for.
	Path string

	// Strategy records whether the map is AST-derived or heuristic.
	Strategy Strategy

	// Hash is the content hash of the analyzed source.
	Hash string

	// LineCount is the number of physical lines in the source.
	LineCount int

	// Classes[n-1] is the classification of line n.
	Classes []Classification

	// Executable[n-1] reports whether line n can run code.
	Executable []bool

	// LineBlocks[n-1] lists the blocks containing line n, outermost first.
	LineBlocks [][]BlockID

	// LineConds[n-1] lists the conditions whose span includes line n.
	LineConds [][]CondID

	// Blocks is the block arena. Blocks[0] is always the root sentinel.
	// Runtime fields on these records stay zero; they are templates.
	Blocks []Block

	// Conditions is the condition arena.
	Conditions []Condition

	// Functions is the function table.
	Functions []Function

	// Notes holds non-fatal diagnostics from analysis (budget exhaustion,
	// parse fallback). Informational only.
	Notes []string
}

// ClassifyLine returns the classification of line n.
// Out-of-range lines classify as blank.
func (cm *CodeMap) ClassifyLine(n int) Classification {
	if n < 1 || n > len(cm.Classes) {
		return ClassBlank
	}
	return cm.Classes[n-1]
}

// IsExecutable reports whether line n can run code.
func (cm *CodeMap) IsExecutable(n int) bool {
	if n < 1 || n > len(cm.Executable) {
		return false
	}
	return cm.Executable[n-1]
}

// BlocksContaining returns the ids of all blocks whose range contains
// line n, outermost first. The result must not be mutated.
func (cm *CodeMap) BlocksContaining(n int) []BlockID {
	if n < 1 || n > len(cm.LineBlocks) {
		return nil
	}
	return cm.LineBlocks[n-1]
}

// ConditionsContaining returns the ids of all conditions whose source span
// includes line n. The result must not be mutated.
func (cm *CodeMap) ConditionsContaining(n int) []CondID {
	if n < 1 || n > len(cm.LineConds) {
		return nil
	}
	return cm.LineConds[n-1]
}

// FunctionAtHeader returns the function whose header is line n, if any.
func (cm *CodeMap) FunctionAtHeader(n int) (FuncID, bool) {
	for _, fn := range cm.Functions {
		if fn.StartLine == n {
			return fn.ID, true
		}
	}
	return 0, false
}

// FunctionContaining returns the innermost function whose span contains
// line n, if any.
func (cm *CodeMap) FunctionContaining(n int) (FuncID, bool) {
	best := FuncID(-1)
	bestSpan := int(^uint(0) >> 1)
	for _, fn := range cm.Functions {
		if n < fn.StartLine || n > fn.EndLine {
			continue
		}
		if span := fn.EndLine - fn.StartLine; span < bestSpan {
			best = fn.ID
			bestSpan = span
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// ExecutableLines returns the number of executable lines in the file.
func (cm *CodeMap) ExecutableLines() int {
	count := 0
	for _, ok := range cm.Executable {
		if ok {
			count++
		}
	}
	return count
}
