package testutil

import (
	"path"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// NodeOption customizes a node built by the helpers below.
type NodeOption func(*core.Node)

// Model builds an enabled view model in pkg.
func Model(pkg, name, sql string, opts ...NodeOption) *core.Node {
	return build(core.ResourceModel, pkg, name, sql, core.MaterializationView, opts)
}

// Test builds a data test in pkg.
func Test(pkg, name, sql string, opts ...NodeOption) *core.Node {
	return build(core.ResourceTest, pkg, name, sql, core.MaterializationTest, opts)
}

// Seed builds a seed in pkg.
func Seed(pkg, name string, opts ...NodeOption) *core.Node {
	return build(core.ResourceSeed, pkg, name, "", core.MaterializationSeed, opts)
}

// Source builds a source table node.
func Source(pkg, sourceName, table string, opts ...NodeOption) *core.Node {
	n := &core.Node{
		UniqueID:         core.NodeID(core.ResourceSource, pkg, sourceName, table),
		Name:             table,
		PackageName:      pkg,
		ResourceType:     core.ResourceSource,
		FQN:              []string{pkg, sourceName, table},
		OriginalFilePath: "models/sources.yaml",
		SourceName:       sourceName,
		Identifier:       table,
		Schema:           sourceName,
		Config:           core.NodeConfig{Enabled: true},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Doc builds a documentation block node.
func Doc(pkg, name, contents string) *core.Node {
	return &core.Node{
		UniqueID:         core.NodeID(core.ResourceDocumentation, pkg, name),
		Name:             name,
		PackageName:      pkg,
		ResourceType:     core.ResourceDocumentation,
		OriginalFilePath: "docs/" + name + ".md",
		BlockContents:    contents,
		Config:           core.NodeConfig{Enabled: true},
	}
}

// Ephemeral marks the node as inlined by its dependents.
func Ephemeral() NodeOption {
	return func(n *core.Node) { n.Config.Materialized = core.MaterializationEphemeral }
}

// Materialized sets the materialization.
func Materialized(m string) NodeOption {
	return func(n *core.Node) { n.Config.Materialized = m }
}

// Disabled turns the node off.
func Disabled() NodeOption {
	return func(n *core.Node) { n.Config.Enabled = false }
}

// Refs records captured ref() calls by name.
func Refs(names ...string) NodeOption {
	return func(n *core.Node) {
		for _, name := range names {
			n.Refs = append(n.Refs, core.RefCall{Name: name})
		}
	}
}

// PackageRef records a captured two-argument ref() call.
func PackageRef(pkg, name string) NodeOption {
	return func(n *core.Node) { n.Refs = append(n.Refs, core.RefCall{Package: pkg, Name: name}) }
}

// SourceRef records a captured source() call.
func SourceRef(sourceName, table string) NodeOption {
	return func(n *core.Node) {
		n.SourceRefs = append(n.SourceRefs, core.SourceCall{SourceName: sourceName, TableName: table})
	}
}

// DependsOn sets resolved dependency ids directly.
func DependsOn(ids ...string) NodeOption {
	return func(n *core.Node) {
		for _, id := range ids {
			n.DependsOn.AddNode(id)
		}
	}
}

// FilePath overrides the original file path.
func FilePath(p string) NodeOption {
	return func(n *core.Node) { n.OriginalFilePath = p }
}

// Alias overrides the relation alias.
func Alias(a string) NodeOption {
	return func(n *core.Node) { n.Alias = a }
}

// Schema overrides the relation schema.
func Schema(s string) NodeOption {
	return func(n *core.Node) { n.Schema = s }
}

// Severity sets the test severity.
func Severity(s string) NodeOption {
	return func(n *core.Node) { n.Config.Severity = s }
}

func build(rt core.ResourceType, pkg, name, sql, materialized string, opts []NodeOption) *core.Node {
	dir := "models"
	if rt == core.ResourceTest {
		dir = "tests"
	} else if rt == core.ResourceSeed {
		dir = "seeds"
	}
	n := &core.Node{
		UniqueID:         core.NodeID(rt, pkg, name),
		Name:             name,
		PackageName:      pkg,
		ResourceType:     rt,
		FQN:              []string{pkg, name},
		Path:             name + ".sql",
		OriginalFilePath: path.Join(dir, name+".sql"),
		RawCode:          sql,
		Schema:           "main",
		Config:           core.NodeConfig{Materialized: materialized, Enabled: true},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}
