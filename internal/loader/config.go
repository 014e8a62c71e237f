package loader

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

var validMaterializations = []string{
	core.MaterializationTable,
	core.MaterializationView,
	core.MaterializationEphemeral,
	core.MaterializationSeed,
	core.MaterializationTest,
	core.MaterializationSnapshot,
	core.MaterializationOperation,
}

// configLayers accumulates config maps from lowest to highest precedence.
// Tags append, meta merges key by key, anything else overrides.
type configLayers map[string]any

func newConfigLayers(rt core.ResourceType) configLayers {
	c := configLayers{
		"materialized": core.DefaultMaterialization(rt),
		"enabled":      true,
	}
	if rt == core.ResourceTest {
		c["severity"] = core.SeverityLevelError
	}
	return c
}

func (c configLayers) apply(opts map[string]any) {
	for k, v := range opts {
		switch k {
		case "tags":
			for _, tag := range toStrings(v) {
				existing := toStrings(c["tags"])
				if !slices.Contains(existing, tag) {
					c["tags"] = append(existing, tag)
				}
			}
		case "meta":
			merged := map[string]any{}
			if prev, ok := c["meta"].(map[string]any); ok {
				maps.Copy(merged, prev)
			}
			if next, ok := v.(map[string]any); ok {
				maps.Copy(merged, next)
			}
			c["meta"] = merged
		default:
			c[k] = v
		}
	}
}

// walkTree applies a package's config tree along the node's directory path.
// Each level contributes its options before the walk descends.
func (c configLayers) walkTree(tree map[string]any, dirs []string) {
	level := tree
	for i := 0; level != nil; i++ {
		opts, subdirs := splitLevel(level)
		c.apply(opts)
		if i >= len(dirs) {
			return
		}
		level = subdirs[dirs[i]]
	}
}

// splitLevel separates the options of one config tree level from its
// subdirectories. "+"-prefixed keys and scalar values are options; other
// mappings, except meta, descend one directory.
func splitLevel(level map[string]any) (opts map[string]any, subdirs map[string]map[string]any) {
	opts = make(map[string]any)
	subdirs = make(map[string]map[string]any)
	for k, v := range level {
		if name, ok := strings.CutPrefix(k, "+"); ok {
			opts[name] = v
			continue
		}
		if m, isMap := v.(map[string]any); isMap && k != "meta" {
			subdirs[k] = m
			continue
		}
		opts[k] = v
	}
	return opts, subdirs
}

// decode turns the merged layers into a NodeConfig. Keys without a field
// land in Extra.
func (c configLayers) decode() (core.NodeConfig, error) {
	var cfg core.NodeConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(map[string]any(c)); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	if !slices.Contains(validMaterializations, cfg.Materialized) {
		return cfg, fmt.Errorf("invalid materialized value %q, must be one of: %s",
			cfg.Materialized, strings.Join(validMaterializations, ", "))
	}
	switch cfg.Severity {
	case "", core.SeverityLevelError, core.SeverityLevelWarn:
	default:
		return cfg, fmt.Errorf("invalid severity %q, must be error or warn", cfg.Severity)
	}
	return cfg, nil
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}
