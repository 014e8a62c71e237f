package macro

import (
	"fmt"
	"maps"
	"slices"

	"github.com/leapstack-labs/leapgraph/pkg/core"
	"go.starlark.net/starlark"
)

// reserved names are template globals a macro namespace would shadow.
var reserved = map[string]bool{
	"config": true, "env": true, "target": true, "this": true,
	"ref": true, "source": true, "doc": true, "var": true,
}

// Registry is the single macro namespace table shared by all packages.
type Registry struct {
	modules map[string]*LoadedModule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*LoadedModule)}
}

// RegisterAll adds modules in order, stopping at the first reserved or
// already registered namespace.
func (r *Registry) RegisterAll(modules []*LoadedModule) error {
	for _, m := range modules {
		if reserved[m.Namespace] {
			return &RegistryError{Namespace: m.Namespace, Message: "namespace is reserved"}
		}
		if prev, ok := r.modules[m.Namespace]; ok {
			return &RegistryError{Namespace: m.Namespace, Message: "already defined in " + prev.Path}
		}
		r.modules[m.Namespace] = m
	}
	return nil
}

// Nodes returns a macro node per exported name, ordered by namespace and
// then name.
func (r *Registry) Nodes() []*core.Node {
	var nodes []*core.Node
	for _, ns := range slices.Sorted(maps.Keys(r.modules)) {
		m := r.modules[ns]
		for _, name := range slices.Sorted(maps.Keys(m.Exports)) {
			node := &core.Node{
				UniqueID:         MacroID(m.Package, ns, name),
				Name:             ns + "." + name,
				PackageName:      m.Package,
				ResourceType:     core.ResourceMacro,
				FQN:              []string{m.Package, ns, name},
				Path:             m.RelPath,
				OriginalFilePath: m.RelPath,
				Config:           core.NodeConfig{Enabled: true},
			}
			if sig, ok := m.Signature(name); ok {
				node.Description = sig.Describe()
			}
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// MacroID builds the unique id of an exported macro, e.g.
// macro.shop.money.dollars.
func MacroID(pkg, namespace, name string) string {
	return core.NodeID(core.ResourceMacro, pkg, namespace, name)
}

// Globals exposes every namespace as a template global. record, when set,
// receives the macro id of each export a template reads.
func (r *Registry) Globals(record func(macroID string)) starlark.StringDict {
	dict := make(starlark.StringDict, len(r.modules))
	for ns, m := range r.modules {
		dict[ns] = &namespace{name: ns, pkg: m.Package, exports: m.Exports, record: record}
	}
	return dict
}

// RegistryError reports a namespace that could not be registered.
type RegistryError struct {
	Namespace string
	Message   string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("macro namespace %q: %s", e.Namespace, e.Message)
}

// namespace is the Starlark value of a macro file: its exports are
// attributes.
type namespace struct {
	name    string
	pkg     string
	exports starlark.StringDict
	record  func(macroID string)
}

var _ starlark.HasAttrs = (*namespace)(nil)

func (n *namespace) String() string        { return "<macros " + n.name + ">" }
func (n *namespace) Type() string          { return "macros" }
func (n *namespace) Freeze()               { n.exports.Freeze() }
func (n *namespace) Truth() starlark.Bool  { return starlark.True }
func (n *namespace) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: macros") }

func (n *namespace) Attr(name string) (starlark.Value, error) {
	v, ok := n.exports[name]
	if !ok {
		return nil, starlark.NoSuchAttrError(fmt.Sprintf("macros %s has no attribute %q", n.name, name))
	}
	if n.record != nil {
		n.record(MacroID(n.pkg, n.name, name))
	}
	return v, nil
}

func (n *namespace) AttrNames() []string {
	return slices.Sorted(maps.Keys(n.exports))
}
