package analyzer

import (
	"strings"

	"github.com/albertocavalcante/starcov/internal/coverage"
)

// lineInfo is the text-scan view of one physical line.
type lineInfo struct {
	class      coverage.Classification
	executable bool

	// insideTriple is true for any line that is part of a multiline
	// string span, including its opening and closing lines.
	insideTriple bool
}

// scanState carries multiline string context from line n to line n+1.
// Starlark has no block comment; its block-comment idiom is a bare
// triple-quoted string, which the scanner tracks the same way.
type scanState struct {
	inTriple bool
	quote    byte // '"' or '\''

	// docComment is true when the open triple-quote began a line on its
	// own, the block-comment idiom.
	docComment bool
}

// scanLines classifies every physical line of src with a small state
// machine. It is the heuristic fallback strategy on its own, and the
// baseline the AST strategy overlays structural facts onto.
func scanLines(src []byte) []lineInfo {
	lines := splitLines(string(src))
	infos := make([]lineInfo, len(lines))
	var st scanState

	for i, raw := range lines {
		startedInTriple := st.inTriple
		wasDoc := st.docComment
		sawCode, sawString := scanLine(raw, &st)

		info := &infos[i]
		trimmed := strings.TrimSpace(raw)

		switch {
		case startedInTriple:
			// Inside, or closing, a span opened on an earlier line. The
			// span's own classification wins over any textual content.
			info.insideTriple = true
			if wasDoc {
				info.class = coverage.ClassMultilineComment
			} else {
				info.class = coverage.ClassMultilineString
			}
		case trimmed == "":
			info.class = coverage.ClassBlank
		case strings.HasPrefix(trimmed, "#"):
			info.class = coverage.ClassComment
		default:
			info.class, info.executable = classifyStatementLine(trimmed, sawCode, sawString, &st)
			info.insideTriple = st.inTriple
		}
	}
	return infos
}

// classifyStatementLine classifies a line that starts outside any
// multiline span and is neither blank nor a comment. st reflects the
// scanner state after the line.
func classifyStatementLine(trimmed string, sawCode, sawString bool, st *scanState) (coverage.Classification, bool) {
	keyword := leadingKeyword(trimmed)
	switch keyword {
	case "def", "lambda":
		return coverage.ClassFunctionHeader, true
	case "if", "elif", "while", "for", "return", "break", "continue", "pass", "load":
		return coverage.ClassControlFlow, true
	case "else":
		// A dedent marker, not a runnable statement.
		return coverage.ClassControlFlow, false
	}

	if st.inTriple && st.docComment && !sawCode {
		// Opening line of a bare triple-quoted string: block comment idiom.
		return coverage.ClassMultilineComment, false
	}
	if sawString && !sawCode {
		return coverage.ClassString, false
	}
	return coverage.ClassCode, true
}

// leadingKeyword returns the first identifier-like token of the line when
// it sits in keyword position, else "".
func leadingKeyword(trimmed string) string {
	end := 0
	for end < len(trimmed) {
		c := trimmed[end]
		if c >= 'a' && c <= 'z' {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return ""
	}
	if end < len(trimmed) {
		next := trimmed[end]
		// "iffy = 1" must not classify as an if header.
		if next != ' ' && next != '\t' && next != ':' && next != '(' {
			return ""
		}
	}
	return trimmed[:end]
}

// scanLine advances the state machine across one line. It reports whether
// the line contains code tokens and string tokens outside of comments.
func scanLine(raw string, st *scanState) (sawCode, sawString bool) {
	i := 0
	inSingle := false    // inside a one-line string
	var singleQuote byte // its quote character

	// A triple-quote opener is a doc comment only when nothing precedes it.
	atLineStart := true

	for i < len(raw) {
		c := raw[i]

		switch {
		case st.inTriple:
			if c == '\\' {
				i += 2
				continue
			}
			if c == st.quote && strings.HasPrefix(raw[i:], strings.Repeat(string(st.quote), 3)) {
				st.inTriple = false
				st.docComment = false
				sawString = true
				i += 3
				continue
			}
			i++

		case inSingle:
			if c == '\\' {
				i += 2
				continue
			}
			if c == singleQuote {
				inSingle = false
				sawString = true
			}
			i++

		case c == '#':
			// Comment runs to end of line.
			return sawCode, sawString

		case c == '"' || c == '\'':
			if strings.HasPrefix(raw[i:], strings.Repeat(string(c), 3)) {
				st.inTriple = true
				st.quote = c
				st.docComment = atLineStart
				i += 3
			} else {
				inSingle = true
				singleQuote = c
				i++
			}
			atLineStart = false

		case c == ' ' || c == '\t':
			i++

		default:
			sawCode = true
			atLineStart = false
			i++
		}
	}
	return sawCode, sawString
}

// splitLines splits source into physical lines without the newline
// terminators. A trailing newline does not produce a phantom last line.
func splitLines(src string) []string {
	if src == "" {
		return nil
	}
	src = strings.TrimSuffix(src, "\n")
	return strings.Split(src, "\n")
}
