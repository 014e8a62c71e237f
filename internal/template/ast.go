// Package template renders SQL files that embed Starlark.
//
// {{ expr }} inserts the value of a Starlark expression. {* ... *} holds a
// directive: for/endfor, if/elif/else/endif, or docs/enddocs around a named
// documentation block.
package template

import "fmt"

// Position is a location in a template source.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Node is an element of a parsed template.
type Node interface {
	Pos() Position
}

// Text is literal SQL copied to the output.
type Text struct {
	At   Position
	Text string
}

// Expr is a {{ ... }} interpolation.
type Expr struct {
	At     Position
	Source string
}

// For repeats Body once per item of Iter, binding Vars.
type For struct {
	At   Position
	Vars []string
	Iter string
	Body []Node
}

// Cond is one guarded arm of an If.
type Cond struct {
	At   Position
	Test string
	Body []Node
}

// If renders the first arm whose test is truthy, else Else.
type If struct {
	At   Position
	Arms []Cond
	Else []Node
}

// Docs is a named documentation block. It renders to nothing.
type Docs struct {
	At   Position
	Name string
	Text string
}

func (n *Text) Pos() Position { return n.At }
func (n *Expr) Pos() Position { return n.At }
func (n *For) Pos() Position  { return n.At }
func (n *If) Pos() Position   { return n.At }
func (n *Docs) Pos() Position { return n.At }

// Template is a parsed template file.
type Template struct {
	File  string
	Nodes []Node
}

// Docs returns the top-level docs blocks in source order.
func (t *Template) Docs() []*Docs {
	var out []*Docs
	for _, n := range t.Nodes {
		if d, ok := n.(*Docs); ok {
			out = append(out, d)
		}
	}
	return out
}
