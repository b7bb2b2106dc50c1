package analyzer

import "regexp"

// textLocation is the result of the textual fallback locator: a
// one-based line and zero-based character at which the named symbol's
// identifier begins (for an initializer, the `init` keyword itself).
type textLocation struct {
	line      int // one-based
	character int
}

var (
	reType = regexp.MustCompile(`^\s*(class|struct|enum|protocol)\s+`)
	reFunc = regexp.MustCompile(`^\s*func\s+`)
	reVar  = regexp.MustCompile(`^\s*(var|let)\s+`)
	reInit = regexp.MustCompile(`^\s*(init)\s*[\s(]`)
)

// findSymbolTextBased scans source line by line for one of the simple
// declaration forms `class|struct|enum|protocol|func|var|let <name>`
// or `init`, used when the symbol was not found in the document-symbol
// tree (a cold index). It deliberately handles only this small,
// documented subset of forms rather than reimplementing a parser.
func findSymbolTextBased(content, name string) (textLocation, bool) {
	lines := splitLines(content)

	for i, line := range lines {
		if name == "init" {
			if loc := reInit.FindStringSubmatchIndex(line); loc != nil {
				return textLocation{line: i + 1, character: loc[2]}, true
			}
			continue
		}
		for _, re := range []*regexp.Regexp{reType, reFunc, reVar} {
			loc := re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			if col, ok := identifierColumn(line, loc[1], name); ok {
				return textLocation{line: i + 1, character: col}, true
			}
		}
	}
	return textLocation{}, false
}

// identifierColumn reports whether the identifier at or after byteOffset
// in line matches name as a whole word, returning its starting column
// in UTF-16 code units (== byte offset for the ASCII identifiers Swift
// declarations use here).
func identifierColumn(line string, byteOffset int, name string) (int, bool) {
	if byteOffset < 0 || byteOffset > len(line) {
		return 0, false
	}
	rest := line[byteOffset:]
	if len(rest) < len(name) || rest[:len(name)] != name {
		return 0, false
	}
	if len(rest) > len(name) && isIdentByte(rest[len(name)]) {
		return 0, false // e.g. "Foobar" should not match symbol "Foo"
	}
	return byteOffset, true
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func splitLines(content string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, content[start:i])
			start = i + 1
		}
	}
	lines = append(lines, content[start:])
	return lines
}
