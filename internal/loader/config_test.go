package loader

import (
	"testing"

	"github.com/leapstack-labs/leapgraph/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLayers_Defaults(t *testing.T) {
	cfg, err := newConfigLayers(core.ResourceModel).decode()
	require.NoError(t, err)
	assert.Equal(t, core.MaterializationView, cfg.Materialized)
	assert.True(t, cfg.Enabled)
	assert.Empty(t, cfg.Severity)

	cfg, err = newConfigLayers(core.ResourceTest).decode()
	require.NoError(t, err)
	assert.Equal(t, core.MaterializationTest, cfg.Materialized)
	assert.Equal(t, core.SeverityLevelError, cfg.Severity)
}

func TestConfigLayers_WalkTree(t *testing.T) {
	tree := map[string]any{
		"+tags": []any{"all"},
		"shop": map[string]any{
			"+materialized": "table",
			"+meta":         map[string]any{"owner": "data"},
			"staging": map[string]any{
				"materialized": "view",
				"tags":         []any{"staging", "all"},
				"meta":         map[string]any{"tier": 2},
				"schema":       "stg",
			},
			"marts": map[string]any{
				"+enabled": false,
			},
		},
	}

	layers := newConfigLayers(core.ResourceModel)
	layers.walkTree(tree, []string{"shop", "staging", "deep"})
	layers.apply(map[string]any{"tags": []any{"hourly"}, "on_schema_change": "fail"})
	cfg, err := layers.decode()
	require.NoError(t, err)

	assert.Equal(t, core.MaterializationView, cfg.Materialized)
	assert.Equal(t, "stg", cfg.Schema)
	assert.Equal(t, []string{"all", "staging", "hourly"}, cfg.Tags)
	assert.Equal(t, map[string]any{"owner": "data", "tier": 2}, cfg.Meta)
	assert.Equal(t, "fail", cfg.Extra["on_schema_change"])

	marts := newConfigLayers(core.ResourceModel)
	marts.walkTree(tree, []string{"shop", "marts"})
	cfg, err = marts.decode()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, core.MaterializationTable, cfg.Materialized)
}

func TestConfigLayers_WeakTyping(t *testing.T) {
	layers := newConfigLayers(core.ResourceModel)
	layers.apply(map[string]any{"enabled": "false", "tags": "nightly"})
	cfg, err := layers.decode()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, []string{"nightly"}, cfg.Tags)
}

func TestConfigLayers_Invalid(t *testing.T) {
	layers := newConfigLayers(core.ResourceTest)
	layers.apply(map[string]any{"severity": "fatal"})
	_, err := layers.decode()
	assert.ErrorContains(t, err, `invalid severity "fatal"`)
}
