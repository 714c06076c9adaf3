package analyzer

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.starlark.net/syntax"

	"github.com/albertocavalcante/starcov/internal/coverage"
)

// errBudget aborts AST analysis when a resource budget is exhausted.
// The caller degrades to heuristic classification, never to a failure.
var errBudget = errors.New("analysis budget exceeded")

// builder accumulates structural facts while walking one file's AST.
//
// Blocks and conditions are allocated in flat arenas with parent
// references recorded as indices. Parents seen mid-walk are provisional:
// the resolve pass is the single place links become final, and the only
// place a cycle can be rejected.
type builder struct {
	path  string
	infos []lineInfo

	classes []coverage.Classification
	exec    []bool

	blocks        []coverage.Block
	pendingParent []coverage.BlockID
	conds         []coverage.Condition
	funcs         []coverage.Function

	stack []coverage.BlockID

	notes []string

	nodes    int
	maxNodes int
	deadline time.Time
}

func newBuilder(path string, infos []lineInfo, opts Options) *builder {
	n := len(infos)
	b := &builder{
		path:     path,
		infos:    infos,
		classes:  make([]coverage.Classification, n),
		exec:     make([]bool, n),
		maxNodes: opts.MaxNodes,
		deadline: time.Now().Add(opts.MaxDuration),
	}
	for i, info := range infos {
		b.classes[i] = info.class
	}

	// Root sentinel block.
	b.blocks = append(b.blocks, coverage.Block{
		ID:        coverage.RootBlockID,
		Kind:      coverage.BlockRoot,
		StartLine: 1,
		EndLine:   n,
		Parent:    coverage.NoBlock,
	})
	b.pendingParent = append(b.pendingParent, coverage.NoBlock)
	b.stack = []coverage.BlockID{coverage.RootBlockID}
	return b
}

// build walks the file. It returns errBudget on budget exhaustion and a
// ConsistencyError if the resolved block graph contains a cycle.
func (b *builder) build(f *syntax.File) error {
	if err := b.walkStmts(f.Stmts); err != nil {
		return err
	}
	return b.resolve()
}

// tick charges one AST node against the budgets.
func (b *builder) tick() error {
	b.nodes++
	if b.nodes > b.maxNodes {
		return fmt.Errorf("%w: %d nodes", errBudget, b.nodes)
	}
	if b.nodes&0xff == 0 && time.Now().After(b.deadline) {
		return fmt.Errorf("%w: time limit", errBudget)
	}
	return nil
}

func (b *builder) top() coverage.BlockID {
	return b.stack[len(b.stack)-1]
}

// newBlock allocates a block in the arena with a provisional parent link.
func (b *builder) newBlock(kind coverage.BlockKind, start, end int, parent coverage.BlockID) coverage.BlockID {
	id := coverage.BlockID(len(b.blocks))
	b.blocks = append(b.blocks, coverage.Block{
		ID:        id,
		Kind:      kind,
		StartLine: start,
		EndLine:   end,
		Parent:    coverage.NoBlock, // resolved later
	})
	b.pendingParent = append(b.pendingParent, parent)
	return id
}

func (b *builder) newCond(kind coverage.ConditionKind, e syntax.Expr, parent coverage.CondID, block coverage.BlockID) coverage.CondID {
	start, end := e.Span()
	id := coverage.CondID(len(b.conds))
	b.conds = append(b.conds, coverage.Condition{
		ID:        id,
		Kind:      kind,
		StartLine: int(start.Line),
		StartCol:  int(start.Col),
		EndLine:   int(end.Line),
		EndCol:    int(end.Col),
		Parent:    parent,
		Block:     block,
	})
	return id
}

func (b *builder) newFunc(name string, start, end int) coverage.FuncID {
	id := coverage.FuncID(len(b.funcs))
	b.funcs = append(b.funcs, coverage.Function{
		ID:        id,
		Name:      name,
		StartLine: start,
		EndLine:   end,
	})
	return id
}

// setClass overlays an AST-derived classification. Lines the scanner
// placed inside a multiline span keep that classification.
func (b *builder) setClass(line int, class coverage.Classification) {
	if line < 1 || line > len(b.classes) {
		return
	}
	if b.scanSpanClass(line) {
		return
	}
	b.classes[line-1] = class
}

// setExec marks a line executable. Lines inside multiline spans are never
// executable no matter what fires events for them later.
func (b *builder) setExec(line int) {
	if line < 1 || line > len(b.exec) {
		return
	}
	if b.scanSpanClass(line) {
		return
	}
	b.exec[line-1] = true
}

func (b *builder) scanSpanClass(line int) bool {
	c := b.infos[line-1].class
	return c == coverage.ClassMultilineComment || c == coverage.ClassMultilineString
}

// -----------------------------------------------------------------------------
// Statement walk
// -----------------------------------------------------------------------------

func (b *builder) walkStmts(stmts []syntax.Stmt) error {
	for _, stmt := range stmts {
		if err := b.walkStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) walkStmt(stmt syntax.Stmt) error {
	if err := b.tick(); err != nil {
		return err
	}

	switch s := stmt.(type) {
	case *syntax.DefStmt:
		return b.walkDef(s)

	case *syntax.IfStmt:
		return b.walkIf(s, coverage.BlockIf)

	case *syntax.ForStmt:
		start, end := s.Span()
		b.setClass(int(start.Line), coverage.ClassControlFlow)
		b.setExec(int(start.Line))
		if err := b.walkExpr(s.X); err != nil {
			return err
		}
		id := b.newBlock(coverage.BlockFor, int(start.Line), int(end.Line), b.top())
		b.stack = append(b.stack, id)
		err := b.walkStmts(s.Body)
		b.stack = b.stack[:len(b.stack)-1]
		return err

	case *syntax.WhileStmt:
		start, end := s.Span()
		b.setClass(int(start.Line), coverage.ClassControlFlow)
		b.setExec(int(start.Line))
		id := b.newBlock(coverage.BlockWhile, int(start.Line), int(end.Line), b.top())
		b.addConditionTree(s.Cond, coverage.NoCondition, id)
		if err := b.walkExpr(s.Cond); err != nil {
			return err
		}
		b.stack = append(b.stack, id)
		err := b.walkStmts(s.Body)
		b.stack = b.stack[:len(b.stack)-1]
		return err

	case *syntax.ReturnStmt:
		start, _ := s.Span()
		b.setClass(int(start.Line), coverage.ClassControlFlow)
		b.setExec(int(start.Line))
		return b.walkExpr(s.Result)

	case *syntax.BranchStmt:
		b.setClass(int(s.TokenPos.Line), coverage.ClassControlFlow)
		b.setExec(int(s.TokenPos.Line))
		return nil

	case *syntax.LoadStmt:
		start, _ := s.Span()
		b.setClass(int(start.Line), coverage.ClassControlFlow)
		b.setExec(int(start.Line))
		return nil

	case *syntax.ExprStmt:
		if lit, ok := s.X.(*syntax.Literal); ok && (lit.Token == syntax.STRING || lit.Token == syntax.BYTES) {
			// Bare string statement: the docstring / block comment idiom.
			start, end := s.Span()
			class := coverage.ClassString
			if end.Line > start.Line {
				class = coverage.ClassMultilineComment
			}
			for n := int(start.Line); n <= int(end.Line); n++ {
				b.classes[n-1] = class
				b.exec[n-1] = false
			}
			return nil
		}
		start, _ := s.Span()
		b.setClass(int(start.Line), coverage.ClassCode)
		b.setExec(int(start.Line))
		return b.walkExpr(s.X)

	case *syntax.AssignStmt:
		start, _ := s.Span()
		b.setClass(int(start.Line), coverage.ClassCode)
		b.setExec(int(start.Line))
		if lam, ok := s.RHS.(*syntax.LambdaExpr); ok {
			return b.walkLambda(lam, assignName(s.LHS))
		}
		if err := b.walkExpr(s.LHS); err != nil {
			return err
		}
		return b.walkExpr(s.RHS)

	default:
		return nil
	}
}

func (b *builder) walkDef(s *syntax.DefStmt) error {
	start, end := s.Span()
	headerLine := int(start.Line)
	b.setClass(headerLine, coverage.ClassFunctionHeader)
	b.setExec(headerLine)

	b.newFunc(s.Name.Name, headerLine, int(end.Line))
	id := b.newBlock(coverage.BlockFunctionBody, headerLine, int(end.Line), b.top())

	for _, param := range s.Params {
		if err := b.walkExpr(param); err != nil {
			return err
		}
	}

	b.stack = append(b.stack, id)
	err := b.walkStmts(s.Body)
	b.stack = b.stack[:len(b.stack)-1]
	return err
}

// walkIf handles an if statement and its elif/else chain. An elif arm is
// a sibling block of the if arm, not a child: each arm's range covers its
// own header and suite only.
func (b *builder) walkIf(s *syntax.IfStmt, kind coverage.BlockKind) error {
	if err := b.tick(); err != nil {
		return err
	}

	headerLine := int(s.If.Line)
	b.setClass(headerLine, coverage.ClassControlFlow)
	b.setExec(headerLine)

	endLine := headerLine
	if len(s.True) > 0 {
		_, end := s.True[len(s.True)-1].Span()
		endLine = int(end.Line)
	}

	id := b.newBlock(kind, headerLine, endLine, b.top())
	b.addConditionTree(s.Cond, coverage.NoCondition, id)
	if err := b.walkExpr(s.Cond); err != nil {
		return err
	}

	b.stack = append(b.stack, id)
	err := b.walkStmts(s.True)
	b.stack = b.stack[:len(b.stack)-1]
	if err != nil {
		return err
	}

	if len(s.False) == 0 {
		return nil
	}

	// A sole nested IfStmt is an elif arm.
	if nested, ok := s.False[0].(*syntax.IfStmt); ok && len(s.False) == 1 {
		return b.walkIf(nested, coverage.BlockElseIf)
	}

	elseLine := int(s.ElsePos.Line)
	b.setClass(elseLine, coverage.ClassControlFlow)
	_, falseEnd := s.False[len(s.False)-1].Span()
	elseID := b.newBlock(coverage.BlockElse, elseLine, int(falseEnd.Line), b.top())
	b.stack = append(b.stack, elseID)
	err = b.walkStmts(s.False)
	b.stack = b.stack[:len(b.stack)-1]
	return err
}

// -----------------------------------------------------------------------------
// Expression walk
// -----------------------------------------------------------------------------

// walkExpr traverses an expression looking for constructs that introduce
// blocks (lambdas, comprehensions) and comprehension guard conditions.
func (b *builder) walkExpr(e syntax.Expr) error {
	if e == nil {
		return nil
	}

	var walkErr error
	var closers []func()

	syntax.Walk(e, func(n syntax.Node) bool {
		if n == nil {
			if k := len(closers) - 1; k >= 0 {
				closers[k]()
				closers = closers[:k]
			}
			return false
		}
		if walkErr != nil {
			return false
		}
		if err := b.tick(); err != nil {
			walkErr = err
			return false
		}

		pop := func() {}
		switch x := n.(type) {
		case *syntax.LambdaExpr:
			start, end := x.Span()
			b.newFunc(fmt.Sprintf("<anonymous:%d>", start.Line), int(start.Line), int(end.Line))
			id := b.newBlock(coverage.BlockFunctionBody, int(start.Line), int(end.Line), b.top())
			b.stack = append(b.stack, id)
			pop = func() { b.stack = b.stack[:len(b.stack)-1] }

		case *syntax.Comprehension:
			start, end := x.Span()
			id := b.newBlock(coverage.BlockComprehension, int(start.Line), int(end.Line), b.top())
			b.stack = append(b.stack, id)
			pop = func() { b.stack = b.stack[:len(b.stack)-1] }

		case *syntax.IfClause:
			b.addConditionTree(x.Cond, coverage.NoCondition, b.top())
		}

		closers = append(closers, pop)
		return true
	})
	return walkErr
}

// walkLambda handles a lambda bound to a name by assignment.
func (b *builder) walkLambda(lam *syntax.LambdaExpr, name string) error {
	start, end := lam.Span()
	if name == "" {
		name = fmt.Sprintf("<anonymous:%d>", start.Line)
	}
	b.newFunc(name, int(start.Line), int(end.Line))
	id := b.newBlock(coverage.BlockFunctionBody, int(start.Line), int(end.Line), b.top())

	for _, param := range lam.Params {
		if err := b.walkExpr(param); err != nil {
			return err
		}
	}

	b.stack = append(b.stack, id)
	err := b.walkExpr(lam.Body)
	b.stack = b.stack[:len(b.stack)-1]
	return err
}

// assignName flattens an assignment target into a best-effort function
// name: plain identifiers and dotted method paths.
func assignName(lhs syntax.Expr) string {
	switch x := lhs.(type) {
	case *syntax.Ident:
		return x.Name
	case *syntax.DotExpr:
		if base := assignName(x.X); base != "" {
			return base + "." + x.Name.Name
		}
	}
	return ""
}

// -----------------------------------------------------------------------------
// Condition decomposition
// -----------------------------------------------------------------------------

// addConditionTree recursively decomposes a boolean guard expression.
// `x and y` / `x or y` split into two components, `not x` wraps one, and
// a ternary decomposes into a compound of its three parts. Everything
// else is a leaf.
func (b *builder) addConditionTree(e syntax.Expr, parent coverage.CondID, block coverage.BlockID) coverage.CondID {
	switch x := e.(type) {
	case *syntax.ParenExpr:
		return b.addConditionTree(x.X, parent, block)

	case *syntax.BinaryExpr:
		switch x.Op {
		case syntax.AND, syntax.OR:
			kind := coverage.CondAnd
			if x.Op == syntax.OR {
				kind = coverage.CondOr
			}
			id := b.newCond(kind, e, parent, block)
			left := b.addConditionTree(x.X, id, block)
			right := b.addConditionTree(x.Y, id, block)
			b.conds[id].Components = []coverage.CondID{left, right}
			return id
		}
		return b.newCond(coverage.CondSimple, e, parent, block)

	case *syntax.UnaryExpr:
		if x.Op == syntax.NOT {
			id := b.newCond(coverage.CondNot, e, parent, block)
			inner := b.addConditionTree(x.X, id, block)
			b.conds[id].Components = []coverage.CondID{inner}
			return id
		}
		return b.newCond(coverage.CondSimple, e, parent, block)

	case *syntax.CondExpr:
		id := b.newCond(coverage.CondCompound, e, parent, block)
		guard := b.addConditionTree(x.Cond, id, block)
		yes := b.addConditionTree(x.True, id, block)
		no := b.addConditionTree(x.False, id, block)
		b.conds[id].Components = []coverage.CondID{guard, yes, no}
		return id

	default:
		return b.newCond(coverage.CondSimple, e, parent, block)
	}
}

// -----------------------------------------------------------------------------
// Resolution
// -----------------------------------------------------------------------------

// resolve finalizes provisional parent links, rebuilds child lists, and
// validates the graph. A cycle is the one defect that aborts analysis of
// the file; unresolved parents survive to patchup, which relinks them to
// the root and reports them.
func (b *builder) resolve() error {
	for i := range b.blocks {
		if i == int(coverage.RootBlockID) {
			continue
		}
		parent := b.pendingParent[i]
		if parent < 0 || int(parent) >= len(b.blocks) {
			b.notes = append(b.notes, fmt.Sprintf("block %d has unresolved parent", i))
			continue
		}
		b.blocks[i].Parent = parent
	}

	// Cycle check: every parent chain must reach the root within the
	// arena size.
	for i := range b.blocks {
		seen := 0
		for id := b.blocks[i].Parent; id != coverage.NoBlock; id = b.blocks[id].Parent {
			seen++
			if seen > len(b.blocks) {
				return &coverage.ConsistencyError{Path: b.path, Kind: "block-cycle", ID: i}
			}
		}
	}

	for i := range b.blocks {
		parent := b.blocks[i].Parent
		if parent == coverage.NoBlock {
			continue
		}
		b.blocks[parent].Children = append(b.blocks[parent].Children, coverage.BlockID(i))

		// Containment: widen ancestors that end before a child does
		// (lambdas spanning past their guard line, for example).
		for p := parent; p != coverage.NoBlock; p = b.blocks[p].Parent {
			if b.blocks[p].StartLine > b.blocks[i].StartLine {
				b.blocks[p].StartLine = b.blocks[i].StartLine
			}
			if b.blocks[p].EndLine < b.blocks[i].EndLine {
				b.blocks[p].EndLine = b.blocks[i].EndLine
			}
		}
	}
	return nil
}

// finish assembles the immutable CodeMap.
func (b *builder) finish(hash string) *coverage.CodeMap {
	n := len(b.classes)
	cm := &coverage.CodeMap{
		Path:       b.path,
		Strategy:   coverage.StrategyAST,
		Hash:       hash,
		LineCount:  n,
		Classes:    b.classes,
		Executable: b.exec,
		LineBlocks: make([][]coverage.BlockID, n),
		LineConds:  make([][]coverage.CondID, n),
		Blocks:     b.blocks,
		Conditions: b.conds,
		Functions:  b.funcs,
		Notes:      b.notes,
	}

	depth := make([]int, len(b.blocks))
	for i := range b.blocks {
		d := 0
		for id := b.blocks[i].Parent; id != coverage.NoBlock; id = b.blocks[id].Parent {
			d++
		}
		depth[i] = d
	}

	for i, blk := range b.blocks {
		start, end := blk.StartLine, blk.EndLine
		if start < 1 {
			start = 1
		}
		if end > n {
			end = n
		}
		for line := start; line <= end; line++ {
			cm.LineBlocks[line-1] = append(cm.LineBlocks[line-1], coverage.BlockID(i))
		}
	}
	for line := 0; line < n; line++ {
		ids := cm.LineBlocks[line]
		sort.Slice(ids, func(a, b2 int) bool {
			if depth[ids[a]] != depth[ids[b2]] {
				return depth[ids[a]] < depth[ids[b2]]
			}
			return ids[a] < ids[b2]
		})
	}

	for i, c := range b.conds {
		start, end := c.StartLine, c.EndLine
		if start < 1 {
			start = 1
		}
		if end > n {
			end = n
		}
		for line := start; line <= end; line++ {
			cm.LineConds[line-1] = append(cm.LineConds[line-1], coverage.CondID(i))
		}
	}
	return cm
}
