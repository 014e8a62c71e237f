package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapgraph/pkg/adapter"
	"github.com/leapstack-labs/leapgraph/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, cfg core.AdapterConfig) *Adapter {
	t.Helper()
	adp := New(nil)
	require.NoError(t, adp.Connect(context.Background(), cfg))
	t.Cleanup(func() { _ = adp.Close() })
	return adp
}

func TestAdapter_FileDatabaseIsCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.duckdb")
	connect(t, core.AdapterConfig{Path: path})
	assert.FileExists(t, path)
}

func TestAdapter_BeforeConnect(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)

	assert.ErrorIs(t, adp.Exec(ctx, "SELECT 1"), adapter.ErrNotConnected)
	_, err := adp.Scalar(ctx, "SELECT 1")
	assert.ErrorIs(t, err, adapter.ErrNotConnected)
	assert.ErrorIs(t, adp.LoadCSV(ctx, "seed", "seed.csv"), adapter.ErrNotConnected)
	assert.NoError(t, adp.Close())
}

func TestAdapter_MaterializeIntoTargetSchema(t *testing.T) {
	ctx := context.Background()
	adp := connect(t, core.AdapterConfig{Schema: "analytics"})

	require.NoError(t, adp.Exec(ctx, `
		CREATE TABLE analytics.orders AS
		SELECT * FROM (VALUES (1, 9.5), (2, 0.5)) AS t(id, amount)`))
	require.NoError(t, adp.Exec(ctx, "CREATE VIEW analytics.big_orders AS SELECT * FROM analytics.orders WHERE amount > 1"))

	n, err := adp.Scalar(ctx, "SELECT COUNT(*) FROM analytics.big_orders")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// a test query counting failing rows
	n, err = adp.Scalar(ctx, "SELECT COUNT(*) FROM (SELECT id FROM analytics.orders WHERE id IS NULL)")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdapter_LoadCSVReplaces(t *testing.T) {
	ctx := context.Background()
	adp := connect(t, core.AdapterConfig{Path: ":memory:"})

	dir := t.TempDir()
	seed := filepath.Join(dir, "raw_customers.csv")
	require.NoError(t, os.WriteFile(seed, []byte("id,name,tier\n1,Alice,gold\n2,Bob,silver\n3,Carol,gold\n"), 0o600))

	require.NoError(t, adp.LoadCSV(ctx, "raw_customers", seed))
	require.NoError(t, os.WriteFile(seed, []byte("id,name,tier\n1,Alice,gold\n"), 0o600))
	require.NoError(t, adp.LoadCSV(ctx, "raw_customers", seed))

	n, err := adp.Scalar(ctx, "SELECT COUNT(*) FROM raw_customers")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// types are inferred
	n, err = adp.Scalar(ctx, "SELECT SUM(id) FROM raw_customers")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAdapter_SettingsApplied(t *testing.T) {
	adp := connect(t, core.AdapterConfig{
		Params: map[string]any{"settings": map[string]any{"threads": "2"}},
	})

	n, err := adp.Scalar(context.Background(), "SELECT current_setting('threads')::BIGINT")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAdapter_InvalidParams(t *testing.T) {
	err := New(nil).Connect(context.Background(), core.AdapterConfig{
		Params: map[string]any{"extensionz": []any{"json"}},
	})
	assert.ErrorContains(t, err, "invalid duckdb params")
}

func TestAdapter_Registered(t *testing.T) {
	adp, err := adapter.NewAdapter(core.AdapterConfig{Type: "DuckDB"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Adapter{}, adp)
	assert.Equal(t, "duckdb", adp.Dialect())
}
