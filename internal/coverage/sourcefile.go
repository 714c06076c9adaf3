package coverage

// SourceFile is the session-scoped coverage record for one tracked file:
// its source text, its CodeMap, and the runtime state accumulated while
// tests execute.
//
// All fields are unexported on purpose. Every read goes through an
// accessor and every write goes through a Store mutator, so the model
// invariants are enforced in exactly one place no matter which collector
// produced the event.
type SourceFile struct {
	path      string
	source    string
	lineCount int
	codeMap   *CodeMap

	lines  []Line
	blocks []Block
	conds  []Condition
	funcs  []Function
}

// newSourceFile builds the runtime record from an immutable CodeMap.
// The structural arenas are deep-copied so patchup repairs never touch
// the shared map.
func newSourceFile(path, source string, cm *CodeMap) *SourceFile {
	sf := &SourceFile{
		path:      path,
		source:    source,
		lineCount: cm.LineCount,
		codeMap:   cm,
	}

	sf.lines = make([]Line, cm.LineCount)
	for i := 0; i < cm.LineCount; i++ {
		sf.lines[i] = Line{
			Number:     i + 1,
			Class:      cm.Classes[i],
			Executable: cm.Executable[i],
			Blocks:     cm.LineBlocks[i],
		}
	}

	sf.blocks = make([]Block, len(cm.Blocks))
	for i, b := range cm.Blocks {
		b.Children = append([]BlockID(nil), b.Children...)
		sf.blocks[i] = b
	}

	sf.conds = make([]Condition, len(cm.Conditions))
	for i, c := range cm.Conditions {
		c.Components = append([]CondID(nil), c.Components...)
		sf.conds[i] = c
	}

	sf.funcs = append([]Function(nil), cm.Functions...)
	return sf
}

// Path returns the canonical file key.
func (sf *SourceFile) Path() string { return sf.path }

// Source returns the analyzed source text.
func (sf *SourceFile) Source() string { return sf.source }

// LineCount returns the number of physical lines.
func (sf *SourceFile) LineCount() int { return sf.lineCount }

// CodeMap returns the file's structural map.
func (sf *SourceFile) CodeMap() *CodeMap { return sf.codeMap }

// Line returns a copy of the record for line n.
func (sf *SourceFile) Line(n int) (Line, bool) {
	if n < 1 || n > len(sf.lines) {
		return Line{}, false
	}
	return sf.lines[n-1], true
}

// Lines returns a copy of all line records.
func (sf *SourceFile) Lines() []Line {
	return append([]Line(nil), sf.lines...)
}

// Block returns a copy of the block record for id.
func (sf *SourceFile) Block(id BlockID) (Block, bool) {
	if id < 0 || int(id) >= len(sf.blocks) {
		return Block{}, false
	}
	return sf.blocks[id], true
}

// Blocks returns a copy of all block records.
func (sf *SourceFile) Blocks() []Block {
	return append([]Block(nil), sf.blocks...)
}

// Condition returns a copy of the condition record for id.
func (sf *SourceFile) Condition(id CondID) (Condition, bool) {
	if id < 0 || int(id) >= len(sf.conds) {
		return Condition{}, false
	}
	return sf.conds[id], true
}

// Conditions returns a copy of all condition records.
func (sf *SourceFile) Conditions() []Condition {
	return append([]Condition(nil), sf.conds...)
}

// Function returns a copy of the function record for id.
func (sf *SourceFile) Function(id FuncID) (Function, bool) {
	if id < 0 || int(id) >= len(sf.funcs) {
		return Function{}, false
	}
	return sf.funcs[id], true
}

// Functions returns a copy of all function records.
func (sf *SourceFile) Functions() []Function {
	return append([]Function(nil), sf.funcs...)
}

// -----------------------------------------------------------------------------
// Runtime mutation. Only the Store calls these.
// -----------------------------------------------------------------------------

// markLineExecuted records an execution observation for line n.
// Events on non-executable lines are dropped: interpreters fire spurious
// events on comment and blank lines at statement boundaries, and static
// classification is the authority.
func (sf *SourceFile) markLineExecuted(n int) error {
	if n < 1 || n > len(sf.lines) {
		return validationErrorf("%s: line %d out of range 1..%d", sf.path, n, len(sf.lines))
	}
	ln := &sf.lines[n-1]
	if !ln.Executable {
		return nil
	}
	ln.Executed = true
	ln.ExecutionCount++
	return nil
}

// markLineCovered records an assertion-validated observation for line n.
// Coverage implies execution, so an unexecuted line is forced executed:
// an assertion proving behavior at a line is itself proof the line ran.
func (sf *SourceFile) markLineCovered(n int) error {
	if n < 1 || n > len(sf.lines) {
		return validationErrorf("%s: line %d out of range 1..%d", sf.path, n, len(sf.lines))
	}
	ln := &sf.lines[n-1]
	if !ln.Executable {
		return validationErrorf("%s: line %d is not executable", sf.path, n)
	}
	if !ln.Executed {
		ln.Executed = true
		ln.ExecutionCount++
	}
	ln.Covered = true
	return nil
}

func (sf *SourceFile) markBlockExecuted(id BlockID) error {
	if id < 0 || int(id) >= len(sf.blocks) {
		return validationErrorf("%s: unknown block %d", sf.path, id)
	}
	b := &sf.blocks[id]
	b.Executed = true
	b.ExecutionCount++
	return nil
}

func (sf *SourceFile) markBlockCovered(id BlockID) error {
	if id < 0 || int(id) >= len(sf.blocks) {
		return validationErrorf("%s: unknown block %d", sf.path, id)
	}
	b := &sf.blocks[id]
	if !b.Executed {
		b.Executed = true
		b.ExecutionCount++
	}
	b.Covered = true
	return nil
}

// markConditionExecuted counts one evaluation of the condition.
func (sf *SourceFile) markConditionExecuted(id CondID) error {
	if id < 0 || int(id) >= len(sf.conds) {
		return validationErrorf("%s: unknown condition %d", sf.path, id)
	}
	sf.conds[id].ExecutionCount++
	return nil
}

// markConditionOutcome records an observed boolean outcome. Outcome flags
// are monotonic; evaluation counting is markConditionExecuted's job.
func (sf *SourceFile) markConditionOutcome(id CondID, outcome bool) error {
	if id < 0 || int(id) >= len(sf.conds) {
		return validationErrorf("%s: unknown condition %d", sf.path, id)
	}
	c := &sf.conds[id]
	if outcome {
		c.TrueOutcome = true
	} else {
		c.FalseOutcome = true
	}
	return nil
}

func (sf *SourceFile) markFunctionExecuted(id FuncID) error {
	if id < 0 || int(id) >= len(sf.funcs) {
		return validationErrorf("%s: unknown function %d", sf.path, id)
	}
	fn := &sf.funcs[id]
	fn.Executed = true
	fn.ExecutionCount++
	return nil
}

func (sf *SourceFile) markFunctionCovered(id FuncID) error {
	if id < 0 || int(id) >= len(sf.funcs) {
		return validationErrorf("%s: unknown function %d", sf.path, id)
	}
	fn := &sf.funcs[id]
	if !fn.Executed {
		fn.Executed = true
		fn.ExecutionCount++
	}
	fn.Covered = true
	return nil
}

// clearLineExecution strips all runtime state from line n. Used by patchup
// when runtime observations contradict static non-executability.
func (sf *SourceFile) clearLineExecution(n int) {
	if n < 1 || n > len(sf.lines) {
		return
	}
	ln := &sf.lines[n-1]
	ln.Executed = false
	ln.Covered = false
	ln.ExecutionCount = 0
}

// clearBlockExecution strips runtime state from block id.
func (sf *SourceFile) clearBlockExecution(id BlockID) {
	if id < 0 || int(id) >= len(sf.blocks) {
		return
	}
	b := &sf.blocks[id]
	b.Executed = false
	b.Covered = false
	b.ExecutionCount = 0
}

// relinkBlockToRoot reparents an orphaned block under the root sentinel.
func (sf *SourceFile) relinkBlockToRoot(id BlockID) {
	if id <= RootBlockID || int(id) >= len(sf.blocks) {
		return
	}
	sf.blocks[id].Parent = RootBlockID
	root := &sf.blocks[RootBlockID]
	for _, child := range root.Children {
		if child == id {
			return
		}
	}
	root.Children = append(root.Children, id)
}

// resetRuntime clears all runtime fields, keeping structure intact.
func (sf *SourceFile) resetRuntime() {
	for i := range sf.lines {
		sf.lines[i].Executed = false
		sf.lines[i].Covered = false
		sf.lines[i].ExecutionCount = 0
	}
	for i := range sf.blocks {
		sf.blocks[i].Executed = false
		sf.blocks[i].Covered = false
		sf.blocks[i].ExecutionCount = 0
	}
	for i := range sf.conds {
		sf.conds[i].TrueOutcome = false
		sf.conds[i].FalseOutcome = false
		sf.conds[i].ExecutionCount = 0
	}
	for i := range sf.funcs {
		sf.funcs[i].Executed = false
		sf.funcs[i].Covered = false
		sf.funcs[i].ExecutionCount = 0
	}
}
