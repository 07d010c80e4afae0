package grading

import (
	"strings"
)

// stripComments removes block and line comments from C-family source text.
// String and character literals are respected so comment markers inside them
// survive.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	const (
		stateCode = iota
		stateLineComment
		stateBlockComment
		stateString
		stateChar
	)

	state := stateCode
	escaped := false

	for i := 0; i < len(src); i++ {
		ch := src[i]
		var next byte
		if i+1 < len(src) {
			next = src[i+1]
		}

		switch state {
		case stateCode:
			switch {
			case ch == '/' && next == '/':
				state = stateLineComment
				i++
			case ch == '/' && next == '*':
				state = stateBlockComment
				i++
			case ch == '"':
				state = stateString
				b.WriteByte(ch)
			case ch == '\'':
				state = stateChar
				b.WriteByte(ch)
			default:
				b.WriteByte(ch)
			}
		case stateLineComment:
			if ch == '\n' {
				state = stateCode
				b.WriteByte(ch)
			}
		case stateBlockComment:
			if ch == '*' && next == '/' {
				state = stateCode
				i++
			}
		case stateString:
			b.WriteByte(ch)
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				state = stateCode
			}
		case stateChar:
			b.WriteByte(ch)
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '\'' {
				state = stateCode
			}
		}
	}

	return b.String()
}

// unescapeArtifacts converts literal "\n" and "\t" sequences left over from
// JSON-imported starter code into real whitespace.
func unescapeArtifacts(src string) string {
	src = strings.ReplaceAll(src, `\r\n`, "\n")
	src = strings.ReplaceAll(src, `\n`, "\n")
	src = strings.ReplaceAll(src, `\t`, "\t")
	return src
}

// NormalizeCode canonicalizes source for the unchanged-from-starter check:
// comments stripped, escaped-newline artifacts resolved, all whitespace runs
// collapsed to a single space, and the result trimmed.
func NormalizeCode(src string) string {
	stripped := stripComments(unescapeArtifacts(src))
	return strings.Join(strings.Fields(stripped), " ")
}

// StripCode returns source with comments and blank lines removed, used for
// the minimal-length check and the effort line count.
func StripCode(src string) string {
	stripped := stripComments(unescapeArtifacts(src))
	var lines []string
	for _, line := range strings.Split(stripped, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, " \t\r"))
		}
	}
	return strings.Join(lines, "\n")
}

// CountLines counts the non-blank, non-comment lines of source.
func CountLines(src string) int {
	stripped := StripCode(src)
	if stripped == "" {
		return 0
	}
	return strings.Count(stripped, "\n") + 1
}

// NormalizeOutput canonicalizes program output for comparison: line endings
// unified, trailing per-line whitespace removed, the whole trimmed and
// lower-cased.
func NormalizeOutput(out string) string {
	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.ToLower(strings.TrimSpace(strings.Join(lines, "\n")))
}
