package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapgraph/internal/macro"
	"github.com/leapstack-labs/leapgraph/internal/testutil"
	"github.com/leapstack-labs/leapgraph/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree writes files relative to dir, creating parent directories.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

var shopProject = map[string]string{
	"leapgraph.yaml": `
name: shop
vars:
  min_amount: 10
models:
  shop:
    +materialized: table
    staging:
      +materialized: view
      +tags: [staging]
on_run_start:
  - "create schema if not exists audit"
on_run_end:
  - "select 1"
`,
	"macros/utils.star": `
def cents(col):
    return col + " / 100"
`,
	"models/sources.yml": `
sources:
  - name: raw
    description: Raw application tables.
    tables:
      - name: orders
        identifier: orders_v2
`,
	"models/staging/stg_orders.sql": `select id, status, {{ utils.cents("amount") }} as amount
from {{ source("raw", "orders") }}`,
	"models/orders.sql": `/*---
description: Orders over the minimum.
tags: [finance]
tests:
  - unique: [id]
    not_null: [id, amount]
  - accepted_values:
      column: status
      values: [open, closed]
---*/
-- {{ doc("orders") }}
select * from {{ ref("stg_orders") }} where amount > {{ var("min_amount") }}`,
	"models/legacy.sql": `/*---
enabled: false
---*/
select 1`,
	"docs/orders.md": `# Orders

{* docs orders *}
All orders placed in the shop.
{* enddocs *}
`,
	"seeds/countries.csv": "code,name\nNL,Netherlands\n",
	"tests/assert_positive.sql": `select * from {{ ref("orders") }} where amount < 0`,
	"packages/lib/leapgraph.yaml": `
name: lib
on_run_start:
  - "select 'lib'"
`,
	"packages/lib/models/lib_dates.sql": `select 1 as d`,
}

func loadShop(t *testing.T, files map[string]string) *Project {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, files)

	p, err := Load(context.Background(), Options{
		ProjectDir: dir,
		Target:     &core.TargetConfig{Type: "duckdb", Schema: "main"},
		Env:        "dev",
		Threads:    4,
		Logger:     testutil.Logger(t),
	})
	require.NoError(t, err)
	return p
}

func getNode(t *testing.T, p *Project, id string) *core.Node {
	t.Helper()
	node, ok := p.Manifest.Get(id)
	require.True(t, ok, "node %s not loaded", id)
	return node
}

func TestLoad_Counts(t *testing.T) {
	p := loadShop(t, shopProject)

	r := p.Result
	assert.Equal(t, 2, r.Packages)
	assert.Equal(t, 3, r.Models)
	assert.Equal(t, 5, r.Tests)
	assert.Equal(t, 1, r.Seeds)
	assert.Equal(t, 3, r.Operations)
	assert.Equal(t, 1, r.Sources)
	assert.Equal(t, 1, r.Docs)
	assert.Equal(t, 1, r.Macros)
	assert.Equal(t, 1, r.Disabled)
	assert.Contains(t, r.Summary(), "3 models, 5 tests")

	assert.Equal(t, filepath.Join(p.Root, "packages", "lib"), p.PackageRoots["lib"])
	assert.Equal(t, 10, p.Render.Vars["min_amount"])
}

func TestLoad_ModelConfigAndCapture(t *testing.T) {
	p := loadShop(t, shopProject)

	stg := getNode(t, p, "model.shop.stg_orders")
	assert.Equal(t, core.MaterializationView, stg.Config.Materialized)
	assert.Equal(t, []string{"staging"}, stg.Config.Tags)
	assert.Equal(t, []string{"shop", "staging", "stg_orders"}, stg.FQN)
	assert.Equal(t, "staging/stg_orders.sql", stg.Path)
	assert.Equal(t, "models/staging/stg_orders.sql", stg.OriginalFilePath)
	assert.Equal(t, "main", stg.Schema)
	assert.Equal(t, []core.SourceCall{{SourceName: "raw", TableName: "orders"}}, stg.SourceRefs)
	assert.Equal(t, []string{macro.MacroID("shop", "utils", "cents")}, stg.DependsOn.Macros)

	orders := getNode(t, p, "model.shop.orders")
	assert.Equal(t, core.MaterializationTable, orders.Config.Materialized)
	assert.Equal(t, []string{"finance"}, orders.Config.Tags)
	assert.Equal(t, "Orders over the minimum.", orders.Description)
	assert.Equal(t, []core.RefCall{{Name: "stg_orders"}}, orders.Refs)
	assert.Equal(t, []core.DocCall{{Name: "orders"}}, orders.DocRefs)
	assert.NotContains(t, orders.RawCode, "/*---")
	assert.Empty(t, orders.DependsOn.Nodes, "dependencies are resolved later")

	lib := getNode(t, p, "model.lib.lib_dates")
	assert.Equal(t, core.MaterializationView, lib.Config.Materialized)
	assert.Equal(t, "lib", lib.PackageName)
}

func TestLoad_SourcesDocsSeeds(t *testing.T) {
	p := loadShop(t, shopProject)

	src := getNode(t, p, "source.shop.raw.orders")
	assert.Equal(t, "raw", src.SourceName)
	assert.Equal(t, "raw", src.Schema)
	assert.Equal(t, "raw.orders_v2", src.RelationName())
	assert.Equal(t, "Raw application tables.", src.Description)

	doc := getNode(t, p, "doc.shop.orders")
	assert.Equal(t, "All orders placed in the shop.", doc.BlockContents)

	seed := getNode(t, p, "seed.shop.countries")
	assert.Equal(t, core.MaterializationSeed, seed.Config.Materialized)
	assert.Equal(t, "seeds/countries.csv", seed.OriginalFilePath)
}

func TestLoad_GeneratedColumnTests(t *testing.T) {
	p := loadShop(t, shopProject)

	for _, id := range []string{
		"test.shop.unique_orders_id",
		"test.shop.not_null_orders_id",
		"test.shop.not_null_orders_amount",
		"test.shop.accepted_values_orders_status",
	} {
		node := getNode(t, p, id)
		require.NotNil(t, node.TestMetadata, id)
		assert.Equal(t, "orders", node.TestMetadata.Model)
		assert.Equal(t, "models/orders.sql", node.OriginalFilePath)
		assert.Equal(t, []core.RefCall{{Name: "orders"}}, node.Refs)
		assert.Equal(t, core.SeverityLevelError, node.Config.Severity)
		assert.True(t, node.IsGenerated())
	}

	av := getNode(t, p, "test.shop.accepted_values_orders_status")
	assert.Equal(t, []string{"open", "closed"}, av.TestMetadata.Values)
	assert.Contains(t, av.RawCode, "status not in ('open', 'closed')")

	singular := getNode(t, p, "test.shop.assert_positive")
	assert.Nil(t, singular.TestMetadata)
	assert.Equal(t, core.MaterializationTest, singular.Config.Materialized)
}

func TestLoad_DisabledAndHooks(t *testing.T) {
	p := loadShop(t, shopProject)

	assert.False(t, p.Manifest.Has("model.shop.legacy"))
	disabled := p.Manifest.Disabled()
	require.Len(t, disabled, 1)
	assert.Equal(t, "model.shop.legacy", disabled[0].UniqueID)

	ops := p.Manifest.NodesOfType(core.ResourceOperation)
	require.Len(t, ops, 3)
	assert.Equal(t, "operation.lib.lib-on-run-start-0", ops[0].UniqueID)
	assert.Equal(t, "operation.shop.shop-on-run-start-0", ops[1].UniqueID)
	assert.Equal(t, "operation.shop.shop-on-run-end-0", ops[2].UniqueID)
	assert.True(t, ops[1].Config.HasTag(TagOnRunStart))
	assert.True(t, ops[2].Config.HasTag(TagOnRunEnd))
	assert.Equal(t, core.MaterializationOperation, ops[1].Config.Materialized)
	assert.Equal(t, "create schema if not exists audit", ops[1].RawCode)
}

func TestLoad_TemplateErrorsAreCollected(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"leapgraph.yaml": "name: shop\n",
		"models/a.sql":   `select {{ var("missing") }}`,
		"models/b.sql":   `select {{ nope }}`,
	})

	_, err := Load(context.Background(), Options{ProjectDir: dir})
	require.Error(t, err)
	var tmplErr *core.TemplateError
	require.ErrorAs(t, err, &tmplErr)
	assert.ErrorContains(t, err, "model.shop.a")
	assert.ErrorContains(t, err, "model.shop.b")
}

func TestLoad_UnknownFrontmatterField(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"leapgraph.yaml": "name: shop\n",
		"models/a.sql":   "/*---\nowner: finance\n---*/\nselect 1",
	})

	_, err := Load(context.Background(), Options{ProjectDir: dir})
	var fieldErr *UnknownFieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "models/a.sql", fieldErr.File)
	assert.Equal(t, "owner", fieldErr.Field)
}

func TestLoad_InvalidMaterialization(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"leapgraph.yaml": "name: shop\n",
		"models/a.sql":   "/*---\nmaterialized: incremental\n---*/\nselect 1",
	})

	_, err := Load(context.Background(), Options{ProjectDir: dir})
	assert.ErrorContains(t, err, `invalid materialized value "incremental"`)
}

func TestLoad_DuplicateMacroNamespace(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"leapgraph.yaml":                 "name: shop\n",
		"macros/utils.star":              "def a():\n    return 1\n",
		"packages/lib/leapgraph.yaml":    "name: lib\n",
		"packages/lib/macros/utils.star": "def b():\n    return 2\n",
	})

	_, err := Load(context.Background(), Options{ProjectDir: dir})
	var regErr *macro.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "utils", regErr.Namespace)
}

func TestLoad_DuplicateModelName(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"leapgraph.yaml":   "name: shop\n",
		"models/a/dup.sql": "select 1",
		"models/b/dup.sql": "select 2",
	})

	_, err := Load(context.Background(), Options{ProjectDir: dir})
	var dupErr *core.DuplicateResourceError
	require.ErrorAs(t, err, &dupErr)
}

func TestLoad_MissingProject(t *testing.T) {
	_, err := Load(context.Background(), Options{ProjectDir: t.TempDir()})
	assert.ErrorContains(t, err, "no leapgraph.yaml found")
}

func TestLocation(t *testing.T) {
	tests := []struct {
		dir, rel, inDir string
		dirs            []string
	}{
		{"models", "models/orders.sql", "orders.sql", nil},
		{"models", "models/staging/stg.sql", "staging/stg.sql", []string{"staging"}},
		{"models/", "models/a/b/c.sql", "a/b/c.sql", []string{"a", "b"}},
		{".", "orders.sql", "orders.sql", nil},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			inDir, dirs := location(tt.dir, tt.rel)
			assert.Equal(t, tt.inDir, inDir)
			assert.Equal(t, tt.dirs, dirs)
		})
	}
}
