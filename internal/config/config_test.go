package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapgraph/pkg/adapter"
	"github.com/leapstack-labs/leapgraph/pkg/core"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leapgraph/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapgraph/pkg/adapters/postgres"
)

func writeProject(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o600))
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, `
name: jaffle_shop
models_dir: transform
vars:
  start_date: "2024-01-01"
models:
  jaffle_shop:
    +materialized: table
    staging:
      materialized: view
      tags: [staging]
on_run_start:
  - "create schema if not exists audit"
`)

	cfg, err := LoadProject(dir)
	require.NoError(t, err)

	assert.Equal(t, "jaffle_shop", cfg.Name)
	assert.Equal(t, "transform", cfg.ModelsDir)
	assert.Equal(t, DefaultSeedsDir, cfg.SeedsDir)
	assert.Equal(t, DefaultMacrosDir, cfg.MacrosDir)
	assert.Equal(t, "2024-01-01", cfg.Vars["start_date"])
	assert.Equal(t, []string{"create schema if not exists audit"}, cfg.OnRunStart)

	pkgTree, ok := cfg.Models["jaffle_shop"].(map[string]any)
	require.True(t, ok, "models tree should be nested maps")
	assert.Equal(t, "table", pkgTree["+materialized"])
	staging, ok := pkgTree["staging"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "view", staging["materialized"])
}

func TestLoadProject_NameDefaultsToDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "analytics")
	require.NoError(t, os.Mkdir(dir, 0o750))
	writeProject(t, dir, "models_dir: models\n")

	cfg, err := LoadProject(dir)
	require.NoError(t, err)
	assert.Equal(t, "analytics", cfg.Name)
}

func TestLoadProject_Missing(t *testing.T) {
	_, err := LoadProject(t.TempDir())
	var missing *MissingProjectError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, err.Error(), ConfigFileName)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, "name: p\n")
	nested := filepath.Join(root, "models", "staging")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Empty(t, FindProjectRoot(t.TempDir()))
}

func TestFindConfigFile_AltName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileNameAlt), []byte("name: p\n"), 0o600))
	assert.Equal(t, filepath.Join(dir, ConfigFileNameAlt), FindConfigFile(dir))
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name      string
		target    core.TargetConfig
		errSubstr string
	}{
		{name: "empty type", target: core.TargetConfig{}, errSubstr: "target type is required"},
		{name: "duckdb", target: core.TargetConfig{Type: "duckdb"}},
		{name: "duckdb uppercase", target: core.TargetConfig{Type: "DuckDB"}},
		{name: "postgres", target: core.TargetConfig{Type: "postgres"}},
		{name: "mysql", target: core.TargetConfig{Type: "mysql"}, errSubstr: "unknown adapter type"},
		{name: "snowflake", target: core.TargetConfig{Type: "snowflake"}, errSubstr: "unknown adapter type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTarget(&tt.target)
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestValidateTarget_ListsAvailable(t *testing.T) {
	err := ValidateTarget(&core.TargetConfig{Type: "invalid_db"})
	var unknown *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, unknown.Available, "duckdb")
	assert.Contains(t, err.Error(), ConfigFileName)
}

func TestDefaultSchemaForType(t *testing.T) {
	tests := []struct {
		dbType   string
		expected string
	}{
		{"duckdb", "main"},
		{"DUCKDB", "main"},
		{"postgres", "public"},
		{"snowflake", "main"},
		{"", "main"},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			assert.Equal(t, tt.expected, DefaultSchemaForType(tt.dbType))
		})
	}
}

func TestApplyTargetDefaults(t *testing.T) {
	pg := &core.TargetConfig{Type: "Postgres"}
	ApplyTargetDefaults(pg)
	assert.Equal(t, "postgres", pg.Type)
	assert.Equal(t, "public", pg.Schema)
	assert.Equal(t, 5432, pg.Port)
	assert.Equal(t, DefaultThreads(), pg.Threads)

	duck := &core.TargetConfig{Type: "duckdb", Schema: "analytics", Threads: 2}
	ApplyTargetDefaults(duck)
	assert.Equal(t, "analytics", duck.Schema)
	assert.Zero(t, duck.Port)
	assert.Equal(t, 2, duck.Threads)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "value_one")
	t.Setenv("TEST_VAR_TWO", "value_two")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single variable", "${TEST_VAR_ONE}", "value_one"},
		{"multiple variables", "${TEST_VAR_ONE}/${TEST_VAR_TWO}", "value_one/value_two"},
		{"unset variable stays as-is", "${UNSET_VARIABLE}", "${UNSET_VARIABLE}"},
		{"mixed set and unset", "${TEST_VAR_ONE}:${UNSET_VAR}", "value_one:${UNSET_VAR}"},
		{"no variables", "plain string", "plain string"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestMergeTargetConfig(t *testing.T) {
	base := &core.TargetConfig{
		Type:     "postgres",
		Host:     "localhost",
		Database: "dev",
		Schema:   "public",
		Options:  map[string]string{"sslmode": "disable", "app": "leapgraph"},
		Params:   map[string]any{"a": 1},
	}

	t.Run("nil base returns override", func(t *testing.T) {
		assert.Same(t, base, MergeTargetConfig(nil, base))
	})

	t.Run("nil override returns base", func(t *testing.T) {
		assert.Same(t, base, MergeTargetConfig(base, nil))
	})

	t.Run("override wins field by field", func(t *testing.T) {
		merged := MergeTargetConfig(base, &core.TargetConfig{
			Host:    "prod.internal",
			Schema:  "analytics",
			Options: map[string]string{"sslmode": "require"},
			Params:  map[string]any{"b": 2},
		})

		assert.Equal(t, "postgres", merged.Type)
		assert.Equal(t, "prod.internal", merged.Host)
		assert.Equal(t, "dev", merged.Database)
		assert.Equal(t, "analytics", merged.Schema)
		assert.Equal(t, map[string]string{"sslmode": "require", "app": "leapgraph"}, merged.Options)
		assert.Equal(t, map[string]any{"a": 1, "b": 2}, merged.Params)

		// base is untouched
		assert.Equal(t, "disable", base.Options["sslmode"])
		assert.Equal(t, "localhost", base.Host)
	})
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(LoadOptions{ProjectDir: dir})
	require.NoError(t, err)

	assert.Equal(t, dir, s.ProjectDir)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), s.StatePath)
	assert.Equal(t, filepath.Join(dir, DefaultTargetDir), s.TargetDir)
	assert.Equal(t, DefaultEnv, s.Environment)
	assert.Equal(t, DefaultOutput, s.OutputFormat)
	require.NotNil(t, s.Target)
	assert.Equal(t, "duckdb", s.Target.Type)
	assert.Equal(t, ":memory:", s.Target.Database)
	assert.Equal(t, "main", s.Target.Schema)
	assert.Equal(t, s.Target.Threads, s.Threads)
	assert.Empty(t, s.ConfigFile)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, `
name: shop
threads: 2
fail_fast: true
target:
  type: duckdb
  database: warehouse.duckdb
environments:
  prod:
    target:
      schema: analytics
      threads: 16
`)
	t.Setenv("LEAPGRAPH_THREADS", "6")
	t.Setenv("LEAPGRAPH_ENVIRONMENT", "prod")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("threads", 1, "")
	flags.String("state", "", "")
	flags.Bool("warn-error", false, "")
	require.NoError(t, flags.Parse([]string{"--state", "custom/state.db", "--warn-error"}))

	s, err := Load(LoadOptions{ProjectDir: dir, Flags: flags})
	require.NoError(t, err)

	// env beats file; the unchanged --threads flag does not count
	assert.Equal(t, 6, s.Threads)
	assert.Equal(t, "prod", s.Environment)
	assert.True(t, s.FailFast)
	assert.True(t, s.WarnError)
	assert.Equal(t, core.RunFlags{WarnError: true, FailFast: true}, s.RunFlags())
	assert.Equal(t, filepath.Join(dir, "custom", "state.db"), s.StatePath)
	assert.Equal(t, filepath.Join(dir, ConfigFileName), s.ConfigFile)

	assert.Equal(t, filepath.Join(dir, "warehouse.duckdb"), s.Target.Database)
	assert.Equal(t, "analytics", s.Target.Schema)
	assert.Equal(t, 16, s.Target.Threads)
}

func TestLoad_EnvironmentOption(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, `
target:
  type: duckdb
environments:
  ci:
    target:
      schema: ci_schema
`)

	s, err := Load(LoadOptions{ProjectDir: dir, Environment: "ci"})
	require.NoError(t, err)
	assert.Equal(t, "ci", s.Environment)
	assert.Equal(t, "ci_schema", s.Target.Schema)
}

func TestLoad_ExpandsTargetSecrets(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, `
target:
  type: postgres
  host: ${PG_TEST_HOST}
  password: ${PG_TEST_PASSWORD}
`)
	t.Setenv("PG_TEST_HOST", "db.internal")
	t.Setenv("PG_TEST_PASSWORD", "hunter2")

	s, err := Load(LoadOptions{ProjectDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "db.internal", s.Target.Host)
	assert.Equal(t, "hunter2", s.Target.Password)
	assert.Equal(t, 5432, s.Target.Port)
	assert.Equal(t, "public", s.Target.Schema)

	cfg := AdapterConfig(s.Target)
	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, "hunter2", cfg.Password)
}

func TestLoad_UnknownTarget(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, "target:\n  type: oracle\n")

	_, err := Load(LoadOptions{ProjectDir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid target configuration")
	assert.Contains(t, err.Error(), "unknown adapter type")
}
