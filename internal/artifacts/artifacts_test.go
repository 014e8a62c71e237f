package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapgraph/internal/dag"
	"github.com/leapstack-labs/leapgraph/internal/testutil"
	"github.com/leapstack-labs/leapgraph/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, testutil.Logger(t))

	require.NoError(t, w.Write("compiled/shop/models/orders.sql", "select 1"))

	data, err := os.ReadFile(filepath.Join(dir, "compiled", "shop", "models", "orders.sql"))
	require.NoError(t, err)
	assert.Equal(t, "select 1", string(data))

	require.NoError(t, w.Write("compiled/shop/models/orders.sql", "select 2"), "overwrites")
	data, err = os.ReadFile(filepath.Join(dir, "compiled", "shop", "models", "orders.sql"))
	require.NoError(t, err)
	assert.Equal(t, "select 2", string(data))
}

func TestWriter_RejectsEscapingPaths(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)

	for _, rel := range []string{"../outside.sql", "/etc/passwd", ""} {
		assert.Error(t, w.Write(rel, "x"), rel)
	}
}

func TestWriter_WriteGraph(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)

	g := dag.NewGraph()
	g.AddNode("model.shop.a")
	g.AddNode("model.shop.b")
	require.NoError(t, g.AddEdge("model.shop.a", "model.shop.b"))
	lookup := func(id string) (*core.Node, bool) {
		return testutil.Model("shop", id[len("model.shop."):], "select 1"), true
	}

	require.NoError(t, w.WriteGraph(dag.NewSnapshot(g, lookup)))

	f, err := os.Open(filepath.Join(dir, GraphFile))
	require.NoError(t, err)
	defer f.Close()
	snap, err := dag.ReadSnapshot(f)
	require.NoError(t, err)

	restored, err := snap.Graph()
	require.NoError(t, err)
	assert.True(t, restored.HasEdge("model.shop.a", "model.shop.b"))
	node, ok := snap.Node("model.shop.b")
	require.True(t, ok)
	assert.Equal(t, "b", node.Name)
}

func TestWriter_WriteJSONAndClean(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)

	require.NoError(t, w.WriteJSON("run/results.json", map[string]int{"ok": 3}))
	data, err := os.ReadFile(filepath.Join(dir, "run", "results.json"))
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 3, got["ok"])

	require.NoError(t, w.Clean("run"))
	_, err = os.Stat(filepath.Join(dir, "run"))
	assert.True(t, os.IsNotExist(err))
}
