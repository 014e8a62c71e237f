package starlark

import (
	"fmt"

	"go.starlark.net/starlark"
)

// RefProvider answers the reference callables. At load time it records the
// call; at compile time it returns the relation or CTE name to splice in.
type RefProvider interface {
	// Ref handles ref(name) and ref(package, name). pkg is empty for the
	// one-argument form.
	Ref(pkg, name string) (string, error)
	// Source handles source(source_name, table_name).
	Source(sourceName, tableName string) (string, error)
	// Doc handles doc(name) and doc(package, name).
	Doc(pkg, name string) (string, error)
}

// RefBuiltins returns the ref, source and doc callables backed by p.
func RefBuiltins(p RefProvider) starlark.StringDict {
	return starlark.StringDict{
		"ref":    starlark.NewBuiltin("ref", packagedCall(p.Ref)),
		"source": starlark.NewBuiltin("source", sourceCall(p)),
		"doc":    starlark.NewBuiltin("doc", packagedCall(p.Doc)),
	}
}

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

// packagedCall adapts a (package, name) lookup to a callable taking
// either (name) or (package, name).
func packagedCall(lookup func(pkg, name string) (string, error)) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
		}
		var first, second string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, nil, 1, &first, &second); err != nil {
			return nil, err
		}
		pkg, name := "", first
		if len(args) == 2 {
			pkg, name = first, second
		}
		out, err := lookup(pkg, name)
		if err != nil {
			return nil, err
		}
		return starlark.String(out), nil
	}
}

func sourceCall(p RefProvider) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var sourceName, tableName string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "source_name", &sourceName, "table_name", &tableName); err != nil {
			return nil, err
		}
		out, err := p.Source(sourceName, tableName)
		if err != nil {
			return nil, err
		}
		return starlark.String(out), nil
	}
}

// VarBuiltin returns var(name, default=None). A missing variable without a
// default is an error.
func VarBuiltin(vars map[string]any) *starlark.Builtin {
	return starlark.NewBuiltin("var", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		var fallback starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &fallback); err != nil {
			return nil, err
		}
		if v, ok := vars[name]; ok {
			return FromGo(v)
		}
		if fallback != nil {
			return fallback, nil
		}
		return nil, fmt.Errorf("required var %q not found in project vars", name)
	})
}
