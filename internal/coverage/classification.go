package coverage

// Classification describes what kind of text a physical source line holds.
type Classification int

const (
	// ClassBlank is a line with no content (or only whitespace).
	ClassBlank Classification = iota

	// ClassCode is an ordinary executable statement line.
	ClassCode

	// ClassComment is a line whose content is a single-line comment.
	ClassComment

	// ClassMultilineComment is a line inside a docstring used as a block
	// comment (a bare triple-quoted string statement).
	ClassMultilineComment

	// ClassString is a line consisting of a single-line string literal.
	ClassString

	// ClassMultilineString is a line inside a multiline string literal
	// that is part of an executable expression.
	ClassMultilineString

	// ClassControlFlow is a control-flow keyword line (if/elif/else/for/
	// while headers, return, break, continue, pass).
	ClassControlFlow

	// ClassFunctionHeader is a def line.
	ClassFunctionHeader
)

// String returns the string representation of the Classification.
func (c Classification) String() string {
	switch c {
	case ClassBlank:
		return "blank"
	case ClassCode:
		return "code"
	case ClassComment:
		return "comment"
	case ClassMultilineComment:
		return "multiline-comment"
	case ClassString:
		return "string"
	case ClassMultilineString:
		return "multiline-string"
	case ClassControlFlow:
		return "control-flow"
	case ClassFunctionHeader:
		return "function-header"
	default:
		return "unknown"
	}
}

// BlockKind identifies the syntactic construct a block was extracted from.
type BlockKind int

const (
	// BlockRoot is the per-file sentinel block covering the whole file.
	BlockRoot BlockKind = iota
	BlockIf
	BlockElseIf
	BlockElse
	BlockWhile
	BlockFor
	BlockFunctionBody
	BlockComprehension
)

// String returns the string representation of the BlockKind.
func (k BlockKind) String() string {
	switch k {
	case BlockRoot:
		return "root"
	case BlockIf:
		return "if"
	case BlockElseIf:
		return "elif"
	case BlockElse:
		return "else"
	case BlockWhile:
		return "while"
	case BlockFor:
		return "for"
	case BlockFunctionBody:
		return "function"
	case BlockComprehension:
		return "comprehension"
	default:
		return "unknown"
	}
}

// ConditionKind identifies the shape of a boolean sub-expression.
type ConditionKind int

const (
	// CondSimple is a leaf condition with no boolean sub-structure.
	CondSimple ConditionKind = iota
	// CondAnd is `x and y`, decomposed into two components.
	CondAnd
	// CondOr is `x or y`, decomposed into two components.
	CondOr
	// CondNot is `not x`, wrapping one component.
	CondNot
	// CondCompound is any other non-leaf boolean structure.
	CondCompound
)

// String returns the string representation of the ConditionKind.
func (k ConditionKind) String() string {
	switch k {
	case CondSimple:
		return "simple"
	case CondAnd:
		return "and"
	case CondOr:
		return "or"
	case CondNot:
		return "not"
	case CondCompound:
		return "compound"
	default:
		return "unknown"
	}
}

// Strategy records how a file's CodeMap was produced.
type Strategy int

const (
	// StrategyAST means the map came from a successful syntax parse.
	StrategyAST Strategy = iota

	// StrategyHeuristic means parsing failed or exceeded its budget and the
	// map came from the line-pattern scanner. Block and condition data are
	// absent in this mode; consumers should treat line data as best-effort.
	StrategyHeuristic
)

// String returns the string representation of the Strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyAST:
		return "ast"
	case StrategyHeuristic:
		return "heuristic"
	default:
		return "unknown"
	}
}
