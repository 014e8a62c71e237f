package template

import (
	"sort"
	"strings"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokText tokenKind = iota
	tokExpr
	tokDirective
)

type token struct {
	kind tokenKind
	text string
	pos  Position
}

// source maps byte offsets of a template to line and column.
type source struct {
	file  string
	text  string
	lines []int // offset of the first byte of each line
}

func newSource(file, text string) *source {
	s := &source{file: file, text: text, lines: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			s.lines = append(s.lines, i+1)
		}
	}
	return s
}

func (s *source) pos(off int) Position {
	line := sort.SearchInts(s.lines, off+1) - 1
	col := utf8.RuneCountInString(s.text[s.lines[line]:off]) + 1
	return Position{File: s.file, Line: line + 1, Column: col}
}

// scan splits a template into text, expression and directive tokens. The
// content of a tag is trimmed of surrounding whitespace.
func scan(file, text string) ([]token, error) {
	src := newSource(file, text)
	var toks []token

	off := 0
	for off < len(text) {
		open := nextTag(text, off)
		if open < 0 {
			toks = append(toks, token{kind: tokText, text: text[off:], pos: src.pos(off)})
			break
		}
		if open > off {
			toks = append(toks, token{kind: tokText, text: text[off:open], pos: src.pos(off)})
		}

		body := open + 2
		var end int
		kind := tokExpr
		if text[open+1] == '*' {
			kind = tokDirective
			end = strings.Index(text[body:], "*}")
			if end < 0 {
				return nil, errorf(src.pos(open), "unclosed directive: missing '*}'")
			}
			end += body
		} else {
			end = exprEnd(text, body)
			if end < 0 {
				return nil, errorf(src.pos(open), "unclosed expression: missing '}}'")
			}
		}

		toks = append(toks, token{kind: kind, text: strings.TrimSpace(text[body:end]), pos: src.pos(open)})
		off = end + 2
	}
	return toks, nil
}

// nextTag returns the offset of the next "{{" or "{*" at or after off.
func nextTag(text string, off int) int {
	for {
		i := strings.IndexByte(text[off:], '{')
		if i < 0 || off+i+1 >= len(text) {
			return -1
		}
		i += off
		if c := text[i+1]; c == '{' || c == '*' {
			return i
		}
		off = i + 1
	}
}

// exprEnd finds the "}}" closing an expression whose body starts at off.
// Braces of dict literals and quoted strings are skipped.
func exprEnd(text string, off int) int {
	depth := 0
	var quote byte
	for i := off; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			if depth > 0 {
				depth--
			} else if i+1 < len(text) && text[i+1] == '}' {
				return i
			}
		}
	}
	return -1
}
