package core

import (
	"slices"
	"strings"
)

// ResourceType identifies what kind of unit a Node represents.
type ResourceType string

// Resource type constants.
const (
	ResourceModel         ResourceType = "model"
	ResourceTest          ResourceType = "test"
	ResourceSnapshot      ResourceType = "snapshot"
	ResourceSeed          ResourceType = "seed"
	ResourceAnalysis      ResourceType = "analysis"
	ResourceOperation     ResourceType = "operation"
	ResourceMacro         ResourceType = "macro"
	ResourceSource        ResourceType = "source"
	ResourceDocumentation ResourceType = "doc"
)

// IsRefable reports whether nodes of this type can be the target of ref().
func (r ResourceType) IsRefable() bool {
	switch r {
	case ResourceModel, ResourceSeed, ResourceSnapshot:
		return true
	default:
		return false
	}
}

// IsExecutable reports whether nodes of this type produce a relation or run
// SQL against the warehouse.
func (r ResourceType) IsExecutable() bool {
	switch r {
	case ResourceModel, ResourceSeed, ResourceSnapshot, ResourceTest, ResourceOperation:
		return true
	default:
		return false
	}
}

// IsCompilable reports whether nodes of this type carry a template to compile.
func (r ResourceType) IsCompilable() bool {
	switch r {
	case ResourceModel, ResourceSnapshot, ResourceTest, ResourceAnalysis, ResourceOperation:
		return true
	default:
		return false
	}
}

// RefCall is a captured ref() call: ref("name") or ref("package", "name").
type RefCall struct {
	Package string
	Name    string
}

// String renders the call the way a user wrote it.
func (r RefCall) String() string {
	if r.Package != "" {
		return r.Package + "." + r.Name
	}
	return r.Name
}

// SourceCall is a captured source("source_name", "table_name") call.
type SourceCall struct {
	SourceName string
	TableName  string
}

// DocCall is a captured doc() call.
type DocCall struct {
	Package string
	Name    string
}

// DependsOn holds the resolved upstream ids of a node.
// Membership is idempotent: adding an id twice is a no-op.
type DependsOn struct {
	Nodes  []string `json:"nodes"`
	Macros []string `json:"macros"`
}

// AddNode appends a node id if it is not already present.
func (d *DependsOn) AddNode(id string) {
	if !slices.Contains(d.Nodes, id) {
		d.Nodes = append(d.Nodes, id)
	}
}

// AddMacro appends a macro id if it is not already present.
func (d *DependsOn) AddMacro(id string) {
	if !slices.Contains(d.Macros, id) {
		d.Macros = append(d.Macros, id)
	}
}

// TestMetadata describes a generated column test.
type TestMetadata struct {
	// Name is the test kind: unique, not_null or accepted_values.
	Name   string   `json:"name"`
	Model  string   `json:"model"`
	Column string   `json:"column"`
	Values []string `json:"values,omitempty"`
}

// InjectedCTE is one CTE spliced into a node's compiled SQL.
type InjectedCTE struct {
	ID  string `json:"id"`
	SQL string `json:"sql"`
}

// Node is the central unit of the project graph: a model, test, snapshot,
// seed, analysis, operation, macro, source or documentation block.
type Node struct {
	// UniqueID is "<resource_type>.<package>.<name>" and never changes.
	UniqueID     string       `json:"unique_id"`
	Name         string       `json:"name"`
	PackageName  string       `json:"package_name"`
	ResourceType ResourceType `json:"resource_type"`
	// FQN is the package followed by the directory path and the node name.
	FQN []string `json:"fqn"`
	// Path is relative to the resource directory of its package.
	Path             string `json:"path"`
	OriginalFilePath string `json:"original_file_path"`
	RawCode          string `json:"raw_code"`

	DependsOn DependsOn  `json:"depends_on"`
	Config    NodeConfig `json:"config"`

	// Captured during the parse render, resolved by the resolver.
	Refs       []RefCall    `json:"refs,omitempty"`
	SourceRefs []SourceCall `json:"sources,omitempty"`
	DocRefs    []DocCall    `json:"docs,omitempty"`

	// Relation coordinates.
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
	Alias    string `json:"alias,omitempty"`

	// Source-only fields.
	SourceName string `json:"source_name,omitempty"`
	Identifier string `json:"identifier,omitempty"`

	// Documentation-only field.
	BlockContents string `json:"block_contents,omitempty"`

	Description string `json:"description,omitempty"`

	// TestMetadata is set on tests generated from a model's column tests.
	TestMetadata *TestMetadata `json:"test_metadata,omitempty"`

	// Compiled-only fields.
	Compiled          bool          `json:"compiled"`
	CompiledCode      string        `json:"compiled_code,omitempty"`
	ExtraCTEsInjected bool          `json:"extra_ctes_injected"`
	ExtraCTEs         []InjectedCTE `json:"extra_ctes,omitempty"`
	InjectedCode      string        `json:"injected_code,omitempty"`
}

// IsEphemeral reports whether the node is inlined as a CTE by its dependents.
func (n *Node) IsEphemeral() bool {
	return n.Config.Materialized == MaterializationEphemeral
}

// IsGenerated reports whether the node was synthesized from configuration
// rather than read from a file of its own.
func (n *Node) IsGenerated() bool {
	return n.TestMetadata != nil || n.ResourceType == ResourceOperation
}

// IsDataTest reports whether the node is an assertion query.
func (n *Node) IsDataTest() bool {
	return n.ResourceType == ResourceTest
}

// RelationName returns the identifier other nodes use to select from this node.
func (n *Node) RelationName() string {
	ident := n.Alias
	if n.ResourceType == ResourceSource {
		ident = n.Identifier
	}
	if ident == "" {
		ident = n.Name
	}
	parts := make([]string, 0, 3)
	if n.Database != "" {
		parts = append(parts, n.Database)
	}
	if n.Schema != "" {
		parts = append(parts, n.Schema)
	}
	parts = append(parts, ident)
	return strings.Join(parts, ".")
}

// SetCTE adds or replaces an injected CTE by id.
// A new id appends; an existing id keeps its position and gets the new sql.
func (n *Node) SetCTE(id, sql string) {
	n.ExtraCTEs = MergeCTE(n.ExtraCTEs, InjectedCTE{ID: id, SQL: sql})
}

// MergeCTE merges cte into ctes by id (last write wins, first-seen position kept).
func MergeCTE(ctes []InjectedCTE, cte InjectedCTE) []InjectedCTE {
	for i := range ctes {
		if ctes[i].ID == cte.ID {
			ctes[i].SQL = cte.SQL
			return ctes
		}
	}
	return append(ctes, cte)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.FQN = slices.Clone(n.FQN)
	c.DependsOn = DependsOn{
		Nodes:  slices.Clone(n.DependsOn.Nodes),
		Macros: slices.Clone(n.DependsOn.Macros),
	}
	c.Config = n.Config.Clone()
	c.Refs = slices.Clone(n.Refs)
	c.SourceRefs = slices.Clone(n.SourceRefs)
	c.DocRefs = slices.Clone(n.DocRefs)
	c.ExtraCTEs = slices.Clone(n.ExtraCTEs)
	if n.TestMetadata != nil {
		tm := *n.TestMetadata
		tm.Values = slices.Clone(n.TestMetadata.Values)
		c.TestMetadata = &tm
	}
	return &c
}

// NodeID builds a unique id from a resource type, package and name parts.
func NodeID(resourceType ResourceType, pkg string, name ...string) string {
	parts := append([]string{string(resourceType), pkg}, name...)
	return strings.Join(parts, ".")
}
