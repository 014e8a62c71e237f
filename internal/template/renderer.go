package template

import (
	"fmt"
	"strings"

	starctx "github.com/leapstack-labs/leapgraph/internal/starlark"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Renderer evaluates a parsed template in a Starlark scope.
type Renderer struct {
	scope *starctx.Scope
}

// NewRenderer creates a renderer bound to scope.
func NewRenderer(scope *starctx.Scope) *Renderer {
	return &Renderer{scope: scope}
}

// RenderString parses and renders a template in one step.
func RenderString(input, file string, scope *starctx.Scope) (string, error) {
	tmpl, err := ParseString(input, file)
	if err != nil {
		return "", err
	}
	return NewRenderer(scope).Render(tmpl)
}

// Render renders the template. Docs blocks produce no output.
func (r *Renderer) Render(tmpl *Template) (string, error) {
	var out strings.Builder
	if err := r.renderNodes(&out, tmpl.Nodes, nil); err != nil {
		return "", err
	}
	return out.String(), nil
}

func (r *Renderer) renderNodes(out *strings.Builder, nodes []Node, locals starlark.StringDict) error {
	for _, n := range nodes {
		if err := r.renderNode(out, n, locals); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) renderNode(out *strings.Builder, n Node, locals starlark.StringDict) error {
	switch n := n.(type) {
	case *Text:
		out.WriteString(n.Text)

	case *Expr:
		v, err := r.eval(n.Source, n.At, locals)
		if err != nil {
			return err
		}
		out.WriteString(starctx.ValueString(v))

	case *For:
		return r.renderFor(out, n, locals)

	case *If:
		return r.renderIf(out, n, locals)

	case *Docs:
	}
	return nil
}

func (r *Renderer) renderFor(out *strings.Builder, block *For, locals starlark.StringDict) error {
	v, err := r.eval(block.Iter, block.At, locals)
	if err != nil {
		return err
	}
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return errorf(block.At, "cannot iterate over %s", v.Type())
	}

	var items []starlark.Value
	iter := iterable.Iterate()
	var item starlark.Value
	for iter.Next(&item) {
		items = append(items, item)
	}
	iter.Done()

	for i, item := range items {
		scope := make(starlark.StringDict, len(locals)+len(block.Vars)+1)
		for k, v := range locals {
			scope[k] = v
		}
		if err := bind(scope, block.Vars, item); err != nil {
			return wrapError(block.At, err, "cannot unpack loop value")
		}
		scope["loop"] = loopInfo(i, len(items))

		if err := r.renderNodes(out, block.Body, scope); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) renderIf(out *strings.Builder, block *If, locals starlark.StringDict) error {
	for _, arm := range block.Arms {
		v, err := r.eval(arm.Test, arm.At, locals)
		if err != nil {
			return err
		}
		if v.Truth() {
			return r.renderNodes(out, arm.Body, locals)
		}
	}
	return r.renderNodes(out, block.Else, locals)
}

func (r *Renderer) eval(expr string, pos Position, locals starlark.StringDict) (starlark.Value, error) {
	v, err := r.scope.Eval(expr, pos.File, pos.Line, locals)
	if err != nil {
		return nil, wrapError(pos, err, "render failed")
	}
	return v, nil
}

// bind assigns a loop value to one name, or unpacks it across several.
func bind(scope starlark.StringDict, names []string, v starlark.Value) error {
	if len(names) == 1 {
		scope[names[0]] = v
		return nil
	}
	seq, ok := v.(starlark.Indexable)
	if !ok {
		return fmt.Errorf("got %s in sequence assignment", v.Type())
	}
	if seq.Len() != len(names) {
		return fmt.Errorf("want %d values to unpack, got %d", len(names), seq.Len())
	}
	for i, name := range names {
		scope[name] = seq.Index(i)
	}
	return nil
}

// loopInfo is the "loop" local available inside for blocks.
func loopInfo(i, n int) starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("loop"), starlark.StringDict{
		"index":  starlark.MakeInt(i + 1),
		"index0": starlark.MakeInt(i),
		"first":  starlark.Bool(i == 0),
		"last":   starlark.Bool(i == n-1),
		"length": starlark.MakeInt(n),
	})
}
