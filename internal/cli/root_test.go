package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgraph/internal/cli/testutil"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leapgraph v"+Version)
}

func TestHelpCommand(t *testing.T) {
	out, _, err := execute(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"compile", "run", "ls", "graph", "show", "init", "completion"} {
		assert.Contains(t, out, name)
	}
}

func TestInvalidOutputFormat(t *testing.T) {
	dir := testutil.ShopProject(t)
	_, _, err := execute(t, "--project-dir", dir, "ls", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestListCommand(t *testing.T) {
	dir := testutil.ShopProject(t)

	out, _, err := execute(t, "--project-dir", dir, "ls", "-o", "json", "-t", "model")
	require.NoError(t, err)

	var nodes []struct {
		UniqueID     string `json:"unique_id"`
		Materialized string `json:"materialized"`
		Relation     string `json:"relation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 3)
	assert.Equal(t, "model.shop.customers", nodes[0].UniqueID)
	assert.Equal(t, "table", nodes[0].Materialized)
	assert.Equal(t, "main.customers", nodes[0].Relation)
	assert.Equal(t, "model.shop.stg_customers", nodes[2].UniqueID)
	assert.Equal(t, "ephemeral", nodes[2].Materialized)
	assert.Empty(t, nodes[2].Relation)
}

func TestListUnknownSelection(t *testing.T) {
	dir := testutil.ShopProject(t)

	_, _, err := execute(t, "--project-dir", dir, "ls", "-s", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestCompileAndShow(t *testing.T) {
	dir := testutil.ShopProject(t)

	out, _, err := execute(t, "--project-dir", dir, "compile", "-o", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Compile")
	assert.Contains(t, out, "- model.shop.customers")

	runSQL, err := os.ReadFile(filepath.Join(dir, "target", "run", "shop", "models", "customers.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(runSQL), "__leapgraph__cte__stg_customers")
	_, err = os.Stat(filepath.Join(dir, "target", "graph.json"))
	require.NoError(t, err)

	out, _, err = execute(t, "--project-dir", dir, "show", "customers", "-o", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# model.shop.customers")
	assert.Contains(t, out, "- **Relation:** main.customers")
	assert.Contains(t, out, "```sql")
	assert.Contains(t, out, "__leapgraph__cte__stg_customers")
	testutil.AssertNoANSI(t, out)
}

func TestGraphCommand(t *testing.T) {
	dir := testutil.ShopProject(t)

	out, _, err := execute(t, "--project-dir", dir, "graph", "-o", "json", "-s", "gold_customers", "--upstream")
	require.NoError(t, err)

	var graph struct {
		Levels []struct {
			Level int `json:"level"`
			Nodes []struct {
				UniqueID string `json:"unique_id"`
			} `json:"nodes"`
		} `json:"levels"`
		Roots      []string `json:"roots"`
		Leaves     []string `json:"leaves"`
		TotalNodes int      `json:"total_nodes"`
		TotalEdges int      `json:"total_edges"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &graph))
	assert.Equal(t, 4, graph.TotalNodes)
	assert.Equal(t, 3, graph.TotalEdges, "only direct dependencies are shown")
	assert.Equal(t, []string{"seed.shop.raw_customers"}, graph.Roots)
	assert.Equal(t, []string{"model.shop.gold_customers"}, graph.Leaves)
	require.Len(t, graph.Levels, 4)
	assert.Equal(t, "seed.shop.raw_customers", graph.Levels[0].Nodes[0].UniqueID)
	assert.Equal(t, "model.shop.gold_customers", graph.Levels[3].Nodes[0].UniqueID)
}

func TestRunCommand(t *testing.T) {
	dir := testutil.ShopProject(t)

	out, _, err := execute(t, "--project-dir", dir, "run", "-o", "json")
	require.NoError(t, err)

	var run struct {
		RunID   string         `json:"run_id"`
		Status  string         `json:"status"`
		Summary map[string]int `json:"summary"`
		Results []struct {
			UniqueID     string `json:"unique_id"`
			Status       string `json:"status"`
			RowsAffected int64  `json:"rows_affected"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 5, run.Summary["success"])
	assert.Zero(t, run.Summary["failed"])

	rows := make(map[string]int64)
	for _, r := range run.Results {
		rows[r.UniqueID] = r.RowsAffected
	}
	assert.Equal(t, int64(3), rows["seed.shop.raw_customers"])
	assert.Equal(t, int64(3), rows["model.shop.customers"])

	_, err = os.Stat(filepath.Join(dir, ".leapgraph", "state.db"))
	require.NoError(t, err, "state database is created under the project")
	_, err = os.Stat(filepath.Join(dir, "target", "run_results.json"))
	require.NoError(t, err)
}

func TestRunCommandReportsFailures(t *testing.T) {
	dir := testutil.ShopProject(t)
	broken := filepath.Join(dir, "models", "customers.sql")
	require.NoError(t, os.WriteFile(broken, []byte("select * from does_not_exist"), 0o600))

	out, _, err := execute(t, "--project-dir", dir, "run", "-o", "markdown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 node(s) failed")
	assert.Contains(t, out, "| model.shop.customers | failed |")
	assert.Contains(t, out, "skipped")
}
