// Package starlark evaluates template expressions. A Scope holds the
// globals of one node render: config, env, target, this, var, the macro
// namespaces and, when a resolver is attached, ref, source and doc.
package starlark

import (
	"fmt"
	"maps"

	"github.com/leapstack-labs/leapgraph/internal/macro"
	"github.com/leapstack-labs/leapgraph/pkg/core"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// evalOptions allow top-level control flow helpers such as set().
var evalOptions = &syntax.FileOptions{Set: true}

// Settings are the project-wide inputs shared by every node render.
type Settings struct {
	Env    string
	Target *core.TargetConfig
	Vars   map[string]any
	Macros *macro.Registry
	Pool   *ThreadPool
}

// ForNode builds the scope for rendering node. refs backs the reference
// callables and may be nil; record, when set, receives every macro id the
// template reads.
func (s Settings) ForNode(node *core.Node, refs RefProvider, record func(macroID string)) (*Scope, error) {
	config, err := FromGo(node.Config.ToMap())
	if err != nil {
		return nil, fmt.Errorf("config of %s: %w", node.UniqueID, err)
	}

	globals := starlark.StringDict{
		"config": config,
		"env":    starlark.String(s.Env),
		"this":   thisStruct(node),
		"var":    VarBuiltin(s.Vars),
	}
	if s.Target != nil {
		globals["target"] = targetStruct(s.Target)
	}
	if refs != nil {
		maps.Copy(globals, RefBuiltins(refs))
	}
	if s.Macros != nil {
		maps.Copy(globals, s.Macros.Globals(record))
	}
	return newScope(globals, s.Pool), nil
}

// Scope evaluates expressions against a fixed set of globals. It is safe
// for concurrent use when its values are frozen.
type Scope struct {
	globals starlark.StringDict
	pool    *ThreadPool
}

func newScope(globals starlark.StringDict, pool *ThreadPool) *Scope {
	return &Scope{globals: globals, pool: pool}
}

// Has reports whether name is a global of the scope.
func (s *Scope) Has(name string) bool {
	_, ok := s.globals[name]
	return ok
}

// Eval evaluates expr. locals shadow globals. file and line place errors.
func (s *Scope) Eval(expr, file string, line int, locals starlark.StringDict) (starlark.Value, error) {
	env := s.globals
	if len(locals) > 0 {
		env = make(starlark.StringDict, len(s.globals)+len(locals))
		maps.Copy(env, s.globals)
		maps.Copy(env, locals)
	}

	thread := s.pool.Get(file)
	defer s.pool.Put(thread)

	v, err := starlark.EvalOptions(evalOptions, thread, file, expr, env)
	if err != nil {
		return nil, &EvalError{File: file, Line: line, Expr: expr, Err: err}
	}
	return v, nil
}

// EvalString evaluates expr and formats the result as template output.
func (s *Scope) EvalString(expr, file string, line int) (string, error) {
	v, err := s.Eval(expr, file, line, nil)
	if err != nil {
		return "", err
	}
	return ValueString(v), nil
}

// ValueString formats a value for template output: strings are unquoted
// and None is empty.
func ValueString(v starlark.Value) string {
	switch v := v.(type) {
	case starlark.String:
		return string(v)
	case starlark.NoneType:
		return ""
	}
	return v.String()
}

// EvalError is a failed expression. Errors raised by the reference
// callables are reachable through Unwrap.
type EvalError struct {
	File string
	Line int
	Expr string
	Err  error
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %v", e.File, e.Line, e.Expr, e.Err)
	}
	return fmt.Sprintf("%s: error evaluating %q: %v", e.File, e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }
