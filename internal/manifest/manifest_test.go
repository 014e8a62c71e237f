package manifest

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/leapgraph/internal/testutil"
	"github.com/leapstack-labs/leapgraph/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_AddAndExpect(t *testing.T) {
	m := New()
	node := testutil.Model("shop", "orders", "select 1")

	require.NoError(t, m.Add(node))
	assert.Equal(t, 1, m.Len())

	got, err := m.Expect("model.shop.orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", got.Name)

	// Expect hands out a copy
	got.RawCode = "changed"
	again, err := m.Expect("model.shop.orders")
	require.NoError(t, err)
	assert.Equal(t, "select 1", again.RawCode)
}

func TestManifest_ExpectMissing(t *testing.T) {
	m := New()

	_, err := m.Expect("model.shop.nope")
	var internal *core.InternalError
	require.ErrorAs(t, err, &internal)
	assert.Contains(t, internal.Message, "model.shop.nope")
}

func TestManifest_AddDuplicates(t *testing.T) {
	tests := []struct {
		name   string
		first  *core.Node
		second *core.Node
		reason string
	}{
		{
			name:   "same unique id",
			first:  testutil.Model("shop", "orders", "", testutil.FilePath("models/a/orders.sql")),
			second: testutil.Model("shop", "orders", "", testutil.FilePath("models/b/orders.sql")),
			reason: "unique id",
		},
		{
			name:   "seed and model share a name in one package",
			first:  testutil.Seed("shop", "orders"),
			second: testutil.Model("shop", "orders", "", testutil.Alias("orders_v2")),
			reason: "two resources named",
		},
		{
			name:   "two models render to the same relation",
			first:  testutil.Model("shop", "orders", ""),
			second: testutil.Model("shop", "orders_copy", "", testutil.Alias("orders")),
			reason: "materialize the relation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			require.NoError(t, m.Add(tt.first))

			err := m.Add(tt.second)
			var dup *core.DuplicateResourceError
			require.True(t, errors.As(err, &dup), "expected DuplicateResourceError, got %v", err)
			assert.Contains(t, dup.Reason, tt.reason)
			assert.Equal(t, tt.first.OriginalFilePath, dup.FirstPath)
			assert.Equal(t, tt.second.OriginalFilePath, dup.SecondPath)
		})
	}
}

func TestManifest_AddAllowsSameNameAcrossPackages(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(testutil.Model("shop", "orders", "")))
	require.NoError(t, m.Add(testutil.Model("lib", "orders", "", testutil.Schema("lib"))))

	nodes := m.LookupRefs("", "orders")
	require.Len(t, nodes, 2)
	assert.Equal(t, "model.shop.orders", nodes[0].UniqueID)
	assert.Equal(t, "model.lib.orders", nodes[1].UniqueID)
}

func TestManifest_EphemeralDoesNotOwnRelation(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(testutil.Model("shop", "base", "", testutil.Ephemeral())))
	require.NoError(t, m.Add(testutil.Model("shop", "other", "", testutil.Alias("base"), testutil.Ephemeral())))
}

func TestManifest_Update(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(testutil.Model("shop", "orders", "select 1")))

	node, err := m.Expect("model.shop.orders")
	require.NoError(t, err)
	node.Compiled = true
	node.CompiledCode = "select 1"
	require.NoError(t, m.Update(node.UniqueID, node))

	got, err := m.Expect("model.shop.orders")
	require.NoError(t, err)
	assert.True(t, got.Compiled)

	var internal *core.InternalError

	err = m.Update("model.shop.unknown", node)
	require.ErrorAs(t, err, &internal)

	moved := node.Clone()
	moved.OriginalFilePath = "models/elsewhere.sql"
	err = m.Update(node.UniqueID, moved)
	require.ErrorAs(t, err, &internal)
	assert.Contains(t, internal.Message, "original file path changed")
}

func TestManifest_LookupRefs(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(testutil.Model("lib", "orders", "", testutil.Schema("lib"))))
	require.NoError(t, m.Add(testutil.Model("shop", "orders", "")))

	all := m.LookupRefs("", "orders")
	require.Len(t, all, 2)
	assert.Equal(t, "model.lib.orders", all[0].UniqueID, "insertion order")

	shop := m.LookupRefs("shop", "orders")
	require.Len(t, shop, 1)
	assert.Equal(t, "model.shop.orders", shop[0].UniqueID)

	assert.Empty(t, m.LookupRefs("other", "orders"))
}

func TestManifest_SourcesDocsAndDisabled(t *testing.T) {
	m := New()
	require.NoError(t, m.AddSource(testutil.Source("shop", "raw", "orders")))
	require.NoError(t, m.AddDoc(testutil.Doc("shop", "orders_doc", "All orders.")))
	m.AddDisabled(testutil.Model("shop", "legacy", "", testutil.Disabled()))
	m.AddDisabled(testutil.Source("shop", "raw", "old_orders", testutil.Disabled()))

	assert.Len(t, m.LookupSources("", "raw", "orders"), 1)
	assert.Empty(t, m.LookupSources("lib", "raw", "orders"))
	assert.Len(t, m.LookupDocs("shop", "orders_doc"), 1)

	// Sources and docs never answer ref lookups
	assert.Empty(t, m.LookupRefs("", "orders"))

	assert.Len(t, m.LookupDisabled(core.ResourceModel, "", "legacy"), 1)
	assert.Len(t, m.LookupDisabled(core.ResourceSeed, "", "legacy"), 1, "refable kinds share a namespace")
	assert.Len(t, m.LookupDisabled(core.ResourceSource, "shop", "raw.old_orders"), 1)
	assert.Empty(t, m.LookupDisabled(core.ResourceModel, "lib", "legacy"))
	assert.Len(t, m.Disabled(), 2)

	var internal *core.InternalError
	require.ErrorAs(t, m.AddSource(testutil.Model("shop", "x", "")), &internal)
}

func TestManifest_InsertionOrder(t *testing.T) {
	m := New()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, m.Add(testutil.Model("shop", name, "")))
	}

	assert.Equal(t, []string{"model.shop.c", "model.shop.a", "model.shop.b"}, m.UniqueIDs())
	assert.Len(t, m.NodesOfType(core.ResourceModel), 3)
	assert.Empty(t, m.NodesOfType(core.ResourceSeed))
}

func TestManifest_Disable(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(testutil.Model("shop", "orders", "", testutil.Materialized(core.MaterializationTable))))
	require.NoError(t, m.Add(testutil.Model("lib", "orders", "", testutil.Schema("lib"))))
	require.NoError(t, m.Add(testutil.Test("shop", "check", "")))

	require.NoError(t, m.Disable("model.shop.orders"))
	require.NoError(t, m.Disable("test.shop.check"))

	assert.Equal(t, []string{"model.lib.orders"}, m.UniqueIDs())
	assert.False(t, m.Has("model.shop.orders"))
	refs := m.LookupRefs("", "orders")
	require.Len(t, refs, 1)
	assert.Equal(t, "model.lib.orders", refs[0].UniqueID)

	disabled := m.LookupDisabled(core.ResourceModel, "shop", "orders")
	require.Len(t, disabled, 1)
	assert.False(t, disabled[0].Config.Enabled)
	assert.Len(t, m.Disabled(), 2)

	// the relation is free again
	require.NoError(t, m.Add(testutil.Model("shop", "orders_v2", "", testutil.Alias("orders"), testutil.Materialized(core.MaterializationTable))))

	var internal *core.InternalError
	assert.ErrorAs(t, m.Disable("model.shop.ghost"), &internal)
}
