package starlark

import (
	"fmt"
	"testing"

	"github.com/leapstack-labs/leapgraph/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRefs echoes its arguments and remembers every call.
type recordingRefs struct {
	calls []string
}

func (r *recordingRefs) Ref(pkg, name string) (string, error) {
	r.calls = append(r.calls, fmt.Sprintf("ref(%s,%s)", pkg, name))
	if name == "broken" {
		return "", fmt.Errorf("model %q not found", name)
	}
	if pkg == "" {
		return "main." + name, nil
	}
	return pkg + "." + name, nil
}

func (r *recordingRefs) Source(sourceName, tableName string) (string, error) {
	r.calls = append(r.calls, fmt.Sprintf("source(%s,%s)", sourceName, tableName))
	return sourceName + "." + tableName, nil
}

func (r *recordingRefs) Doc(pkg, name string) (string, error) {
	r.calls = append(r.calls, fmt.Sprintf("doc(%s,%s)", pkg, name))
	return "docs for " + name, nil
}

// scopeFor builds a scope for a model named orders.
func scopeFor(t *testing.T, s Settings, refs RefProvider) *Scope {
	t.Helper()
	node := &core.Node{UniqueID: "model.shop.orders", Name: "orders", Alias: "orders", Schema: "analytics", Database: "warehouse", ResourceType: core.ResourceModel}
	scope, err := s.ForNode(node, refs, nil)
	require.NoError(t, err)
	return scope
}

func TestRefBuiltins(t *testing.T) {
	refs := &recordingRefs{}
	scope := scopeFor(t, Settings{Env: "dev"}, refs)

	tests := []struct {
		expr string
		want string
	}{
		{`ref("orders")`, "main.orders"},
		{`ref("shop", "orders")`, "shop.orders"},
		{`source("raw", "payments")`, "raw.payments"},
		{`source(source_name="raw", table_name="events")`, "raw.events"},
		{`doc("orders_doc")`, "docs for orders_doc"},
		{`"select * from " + ref("orders")`, "select * from main.orders"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := scope.EvalString(tt.expr, "model.sql", 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "ref(,orders)", refs.calls[0])
	assert.Equal(t, "ref(shop,orders)", refs.calls[1])
}

func TestRefBuiltins_Errors(t *testing.T) {
	scope := scopeFor(t, Settings{}, &recordingRefs{})

	for _, expr := range []string{
		`ref()`,
		`ref("a", "b", "c")`,
		`ref(1)`,
		`ref(name="x")`,
		`source("raw")`,
		`ref("broken")`,
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := scope.Eval(expr, "model.sql", 3, nil)
			var evalErr *EvalError
			require.ErrorAs(t, err, &evalErr)
			assert.Equal(t, 3, evalErr.Line)
			assert.Contains(t, evalErr.Error(), "model.sql:3:")
		})
	}
}

func TestRefBuiltins_AbsentWithoutProvider(t *testing.T) {
	scope := scopeFor(t, Settings{}, nil)
	assert.False(t, scope.Has("ref"))
	assert.False(t, scope.Has("source"))
	assert.True(t, scope.Has("var"))
}

func TestVarBuiltin(t *testing.T) {
	scope := scopeFor(t, Settings{Vars: map[string]any{
		"start_date": "2024-01-01",
		"limit":      10,
		"regions":    []any{"eu", "us"},
	}}, nil)

	for expr, want := range map[string]string{
		`var("start_date")`:          "2024-01-01",
		`var("limit") * 2`:           "20",
		`", ".join(var("regions"))`:  "eu, us",
		`var("missing", "fallback")`: "fallback",
		`var("missing", default=0)`:  "0",
	} {
		got, err := scope.EvalString(expr, "model.sql", 1)
		require.NoError(t, err, expr)
		assert.Equal(t, want, got, expr)
	}

	_, err := scope.Eval(`var("missing")`, "model.sql", 1, nil)
	assert.ErrorContains(t, err, `required var "missing" not found`)
}
