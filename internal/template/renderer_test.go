package template

import (
	"errors"
	"testing"

	starctx "github.com/leapstack-labs/leapgraph/internal/starlark"
	"github.com/leapstack-labs/leapgraph/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScope(t *testing.T) *starctx.Scope {
	t.Helper()
	settings := starctx.Settings{
		Env:    "dev",
		Target: &core.TargetConfig{Type: "duckdb", Schema: "analytics", Database: "warehouse"},
		Vars:   map[string]any{"columns": []any{"id", "email"}},
	}
	node := &core.Node{
		UniqueID:     "model.shop.customers",
		Name:         "customers",
		Alias:        "customers",
		Schema:       "main",
		ResourceType: core.ResourceModel,
		Config:       core.NodeConfig{Enabled: true, Materialized: "table"},
	}
	scope, err := settings.ForNode(node, nil, nil)
	require.NoError(t, err)
	return scope
}

func render(t *testing.T, input string) (string, error) {
	t.Helper()
	return RenderString(input, "models/customers.sql", testScope(t))
}

func TestRender(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "select 1", "select 1"},
		{"target", "from {{ target.schema }}.users", "from analytics.users"},
		{"this and env", "{{ this.name }}_{{ env }}", "customers_dev"},
		{"config", `{{ config["materialized"] }}`, "table"},
		{"none is empty", "a{{ None }}b", "ab"},
		{"int", "{{ 40 + 2 }}", "42"},
		{"bool", "{{ 1 < 2 }}", "True"},
		{"list", "{{ [1, 2] }}", "[1, 2]"},
		{"var", `{{ ", ".join(var("columns")) }}`, "id, email"},
		{"loop", "{* for c in var('columns'): *}{{ c }};{* endfor *}", "id;email;"},
		{"empty loop", "a{* for c in []: *}{{ c }}{* endfor *}b", "ab"},
		{"nested loops", "{* for i in [1, 2]: *}{* for j in 'ab'.elems(): *}{{ i }}{{ j }} {* endfor *}{* endfor *}", "1a 1b 2a 2b "},
		{"if taken", `{* if env == "dev": *}dev{* endif *}`, "dev"},
		{"if skipped", `{* if env == "prod": *}prod{* endif *}`, ""},
		{"elif", `{* if env == "prod": *}p{* elif env == "dev": *}d{* else: *}o{* endif *}`, "d"},
		{"else", `{* if False: *}p{* elif 0: *}d{* else: *}o{* endif *}`, "o"},
		{"if inside for", "{* for x in [1, 2, 3]: *}{* if x % 2: *}{{ x }}{* endif *}{* endfor *}", "13"},
		{"loop helpers", `{* for c in ["a", "b", "c"]: *}{{ loop.index }}{{ c }}{* if not loop.last: *},{* endif *}{* endfor *}`, "1a,2b,3c"},
		{"loop length", `{* for c in "xy".elems(): *}{{ loop.index0 }}/{{ loop.length }}{* if loop.first: *}!{* endif *} {* endfor *}`, "0/2! 1/2 "},
		{"unpacking", `{* for n, k in [("id", "int"), ("email", "text")]: *}{{ n }} {{ k }};{* endfor *}`, "id int;email text;"},
		{"loop var shadows global", `{* for env in ["x"]: *}{{ env }}{* endfor *}{{ env }}`, "xdev"},
		{"docs render nothing", "a{* docs d *}{{ undefined }}{* enddocs *}b", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := render(t, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_Truthiness(t *testing.T) {
	for cond, want := range map[string]string{
		"True": "y", "False": "n", "1": "y", "0": "n",
		`""`: "n", `"a"`: "y", "[]": "n", "[0]": "y", "None": "n",
	} {
		got, err := render(t, "{* if "+cond+": *}y{* else: *}n{* endif *}")
		require.NoError(t, err, cond)
		assert.Equal(t, want, got, cond)
	}
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"undefined name", "select\n  {{ nope }}", "models/customers.sql:2:3: render failed"},
		{"undefined iterable", "{* for x in nope: *}{* endfor *}", "render failed"},
		{"undefined condition", "{* if nope: *}{* endif *}", "render failed"},
		{"not iterable", "{* for x in 42: *}{* endfor *}", "cannot iterate over int"},
		{"bad unpack", "{* for a, b in [1]: *}{* endfor *}", "cannot unpack loop value"},
		{"wrong arity", "{* for a, b in [(1, 2, 3)]: *}{* endfor *}", "want 2 values to unpack, got 3"},
		{"missing var", `{{ var("absent") }}`, `required var "absent" not found`},
		{"syntax", "{{ 1 + }}", "render failed"},
		{"parse", "{* endif *}", "without matching"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := render(t, tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRender_ErrorChain(t *testing.T) {
	_, err := render(t, "select 1\nfrom {{ nope }}")

	var tmplErr *Error
	require.ErrorAs(t, err, &tmplErr)
	assert.Equal(t, Position{File: "models/customers.sql", Line: 2, Column: 6}, tmplErr.Pos)

	var evalErr *starctx.EvalError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "nope", evalErr.Expr)
}
