package core

import "maps"

// Test severities.
const (
	SeverityLevelError = "error"
	SeverityLevelWarn  = "warn"
)

// NodeConfig is the resolved configuration of a node after merging project
// defaults, package config and inline overrides.
// Keys without a dedicated field are kept in Extra.
type NodeConfig struct {
	Materialized string         `mapstructure:"materialized" json:"materialized"`
	Enabled      bool           `mapstructure:"enabled" json:"enabled"`
	Database     string         `mapstructure:"database" json:"database,omitempty"`
	Schema       string         `mapstructure:"schema" json:"schema,omitempty"`
	Alias        string         `mapstructure:"alias" json:"alias,omitempty"`
	Tags         []string       `mapstructure:"tags" json:"tags,omitempty"`
	Severity     string         `mapstructure:"severity" json:"severity,omitempty"`
	Meta         map[string]any `mapstructure:"meta" json:"meta,omitempty"`
	Extra        map[string]any `mapstructure:",remain" json:"extra,omitempty"`
}

// GetString returns an extra option as a string.
func (c NodeConfig) GetString(key string) (string, bool) {
	v, ok := c.Extra[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBool returns an extra option as a bool.
func (c NodeConfig) GetBool(key string) (bool, bool) {
	v, ok := c.Extra[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// HasTag reports whether the config carries the given tag.
func (c NodeConfig) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ToMap returns the config as a flat map, used for the template "config" global.
func (c NodeConfig) ToMap() map[string]any {
	m := make(map[string]any, len(c.Extra)+8)
	maps.Copy(m, c.Extra)
	m["materialized"] = c.Materialized
	m["enabled"] = c.Enabled
	if c.Database != "" {
		m["database"] = c.Database
	}
	if c.Schema != "" {
		m["schema"] = c.Schema
	}
	if c.Alias != "" {
		m["alias"] = c.Alias
	}
	if len(c.Tags) > 0 {
		m["tags"] = append([]string(nil), c.Tags...)
	}
	if c.Severity != "" {
		m["severity"] = c.Severity
	}
	if len(c.Meta) > 0 {
		m["meta"] = maps.Clone(c.Meta)
	}
	return m
}

// Clone returns a copy that shares no mutable state with c.
func (c NodeConfig) Clone() NodeConfig {
	out := c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	out.Meta = maps.Clone(c.Meta)
	out.Extra = maps.Clone(c.Extra)
	return out
}
