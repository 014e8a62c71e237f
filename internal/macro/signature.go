package macro

import (
	"strings"

	"go.starlark.net/syntax"
)

// Signature describes an exported macro function as written in its file.
type Signature struct {
	Name   string
	Params []string
	Doc    string
	Line   int
}

// String renders the call form, e.g. "dollars(col, scale=2)".
func (s Signature) String() string {
	return s.Name + "(" + strings.Join(s.Params, ", ") + ")"
}

// Describe is the node description: the call form followed by the docstring.
func (s Signature) Describe() string {
	if s.Doc == "" {
		return s.String()
	}
	return s.String() + ": " + s.Doc
}

// scanSignatures reads the top-level public defs of a .star file without
// executing it.
func scanSignatures(path string, content []byte) ([]Signature, error) {
	file, err := syntax.Parse(path, content, 0)
	if err != nil {
		return nil, err
	}

	var sigs []Signature
	for _, stmt := range file.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok || strings.HasPrefix(def.Name.Name, "_") {
			continue
		}
		sig := Signature{
			Name: def.Name.Name,
			Line: int(def.Name.NamePos.Line),
			Doc:  docstring(def.Body),
		}
		for _, p := range def.Params {
			if s := param(p); s != "" {
				sig.Params = append(sig.Params, s)
			}
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func param(e syntax.Expr) string {
	switch p := e.(type) {
	case *syntax.Ident:
		return p.Name
	case *syntax.BinaryExpr:
		if id, ok := p.X.(*syntax.Ident); ok && p.Op == syntax.EQ {
			return id.Name + "=" + literal(p.Y)
		}
	case *syntax.UnaryExpr:
		if p.X == nil {
			// bare * separating keyword-only params
			return "*"
		}
		if id, ok := p.X.(*syntax.Ident); ok {
			return p.Op.String() + id.Name
		}
	}
	return ""
}

// literal shortens a default value to something readable in a signature.
func literal(e syntax.Expr) string {
	switch v := e.(type) {
	case *syntax.Literal:
		return v.Raw
	case *syntax.Ident:
		return v.Name
	case *syntax.UnaryExpr:
		if v.Op == syntax.MINUS {
			return "-" + literal(v.X)
		}
	case *syntax.ListExpr:
		return "[]"
	case *syntax.DictExpr:
		return "{}"
	}
	return "..."
}

func docstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	expr, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := expr.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, _ := lit.Value.(string)
	return strings.TrimSpace(s)
}
