package compiler

import (
	"strings"
	"unicode"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// injectCTEs splices ctes into sql.
// When sql already starts with a WITH clause the new definitions go right
// after the keyword, ahead of the existing ones. Otherwise a WITH clause is
// synthesized at the start of the statement.
func injectCTEs(sql string, ctes []core.InjectedCTE) string {
	if len(ctes) == 0 {
		return sql
	}

	defs := make([]string, 0, len(ctes))
	for _, cte := range ctes {
		defs = append(defs, cte.SQL)
	}
	joined := strings.Join(defs, ", ")

	if end, ok := leadingWith(sql); ok {
		rest := strings.TrimLeftFunc(sql[end:], unicode.IsSpace)
		return sql[:end] + " " + joined + ", " + rest
	}
	return "with " + joined + "\n" + sql
}

// leadingWith reports whether the first keyword of sql is WITH and returns
// the offset just past it (and past RECURSIVE, if present).
func leadingWith(sql string) (int, bool) {
	pos := skipTrivia(sql, 0)
	word, end := readWord(sql, pos)
	if !strings.EqualFold(word, "with") {
		return 0, false
	}

	next := skipTrivia(sql, end)
	if w, e := readWord(sql, next); strings.EqualFold(w, "recursive") {
		return e, true
	}
	return end, true
}

// skipTrivia advances past whitespace and SQL comments.
func skipTrivia(s string, pos int) int {
	for pos < len(s) {
		switch {
		case unicode.IsSpace(rune(s[pos])):
			pos++
		case strings.HasPrefix(s[pos:], "--"):
			nl := strings.IndexByte(s[pos:], '\n')
			if nl < 0 {
				return len(s)
			}
			pos += nl + 1
		case strings.HasPrefix(s[pos:], "/*"):
			end := strings.Index(s[pos+2:], "*/")
			if end < 0 {
				return len(s)
			}
			pos += end + 4
		default:
			return pos
		}
	}
	return pos
}

func readWord(s string, pos int) (string, int) {
	start := pos
	for pos < len(s) && (s[pos] == '_' || unicode.IsLetter(rune(s[pos])) || unicode.IsDigit(rune(s[pos]))) {
		pos++
	}
	return s[start:pos], pos
}
