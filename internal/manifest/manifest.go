// Package manifest provides the in-memory node store.
// It owns every node of a project by unique id and maintains the name
// indices the resolver searches: refable nodes by name and by
// (package, name), sources by (source, table), docs by name, plus the
// same indices for disabled nodes.
package manifest

import (
	"slices"
	"sync"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// Manifest is the canonical node table of a compile pass.
// Nodes are stored by value; lookups hand out clones so that every mutation
// goes through Update.
type Manifest struct {
	mu sync.RWMutex

	// nodes maps unique ids to nodes: "model.shop.orders" → *Node
	nodes map[string]*core.Node
	// order preserves insertion order, which is the tie-break inside a search tier
	order []string

	// refsByName maps refable node names to ids: "orders" → ["model.shop.orders", "model.lib.orders"]
	refsByName map[string][]string
	// sourcesByKey maps "source.table" to source ids
	sourcesByKey map[string][]string
	// docsByName maps doc block names to doc ids
	docsByName map[string][]string
	// relations maps materialized relation names to the node that owns them
	relations map[string]string

	// disabled holds nodes whose config turned them off, in insertion order
	disabled []*core.Node
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{
		nodes:        make(map[string]*core.Node),
		refsByName:   make(map[string][]string),
		sourcesByKey: make(map[string][]string),
		docsByName:   make(map[string][]string),
		relations:    make(map[string]string),
	}
}

// Add registers a live node.
// It fails with *core.DuplicateResourceError when the unique id is taken,
// when a refable node with the same (package, name) exists, or when an
// executable node would materialize to a relation that is already owned.
func (m *Manifest) Add(node *core.Node) error {
	if node == nil || node.UniqueID == "" {
		return core.Internalf("cannot add a node without a unique id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.nodes[node.UniqueID]; ok {
		return duplicate("unique id "+node.UniqueID+" is defined twice", existing, node)
	}

	if node.ResourceType.IsRefable() {
		for _, id := range m.refsByName[node.Name] {
			existing := m.nodes[id]
			if existing.PackageName == node.PackageName {
				return duplicate("two resources named \""+node.Name+"\" in package \""+node.PackageName+"\"", existing, node)
			}
		}
	}

	relation := ""
	if materializesRelation(node) {
		relation = node.RelationName()
		if ownerID, ok := m.relations[relation]; ok {
			return duplicate("two resources materialize the relation \""+relation+"\"", m.nodes[ownerID], node)
		}
	}

	stored := node.Clone()
	m.nodes[stored.UniqueID] = stored
	m.order = append(m.order, stored.UniqueID)
	if relation != "" {
		m.relations[relation] = stored.UniqueID
	}

	switch stored.ResourceType {
	case core.ResourceSource:
		key := sourceKey(stored.SourceName, stored.Name)
		m.sourcesByKey[key] = append(m.sourcesByKey[key], stored.UniqueID)
	case core.ResourceDocumentation:
		m.docsByName[stored.Name] = append(m.docsByName[stored.Name], stored.UniqueID)
	default:
		if stored.ResourceType.IsRefable() {
			m.refsByName[stored.Name] = append(m.refsByName[stored.Name], stored.UniqueID)
		}
	}

	return nil
}

// AddSource registers a source table node.
func (m *Manifest) AddSource(node *core.Node) error {
	if node.ResourceType != core.ResourceSource {
		return core.Internalf("AddSource called with %s node %q", node.ResourceType, node.UniqueID)
	}
	return m.Add(node)
}

// AddDoc registers a documentation block node.
func (m *Manifest) AddDoc(node *core.Node) error {
	if node.ResourceType != core.ResourceDocumentation {
		return core.Internalf("AddDoc called with %s node %q", node.ResourceType, node.UniqueID)
	}
	return m.Add(node)
}

// AddMacro registers a macro node.
func (m *Manifest) AddMacro(node *core.Node) error {
	if node.ResourceType != core.ResourceMacro {
		return core.Internalf("AddMacro called with %s node %q", node.ResourceType, node.UniqueID)
	}
	return m.Add(node)
}

// AddDisabled registers a node that exists but is turned off.
// Disabled nodes never collide with live ones.
func (m *Manifest) AddDisabled(node *core.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = append(m.disabled, node.Clone())
}

// Disable moves a live node to the disabled set: it leaves every live
// index and is stored with enabled turned off.
func (m *Manifest) Disable(uniqueID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[uniqueID]
	if !ok {
		return core.Internalf("cannot disable %q: not in the manifest", uniqueID)
	}

	drop := func(index map[string][]string, key string) {
		index[key] = slices.DeleteFunc(index[key], func(id string) bool { return id == uniqueID })
		if len(index[key]) == 0 {
			delete(index, key)
		}
	}
	drop(m.refsByName, node.Name)
	drop(m.sourcesByKey, sourceKey(node.SourceName, node.Name))
	drop(m.docsByName, node.Name)
	if m.relations[node.RelationName()] == uniqueID {
		delete(m.relations, node.RelationName())
	}
	delete(m.nodes, uniqueID)
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == uniqueID })

	node.Config.Enabled = false
	m.disabled = append(m.disabled, node)
	return nil
}

// Expect returns a copy of the node with the given id.
// It fails with *core.InternalError when the id is unknown; callers are
// expected to have validated existence already.
func (m *Manifest) Expect(uniqueID string) (*core.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[uniqueID]
	if !ok {
		return nil, core.Internalf("expected node %q to be in the manifest", uniqueID)
	}
	return node.Clone(), nil
}

// Get returns a copy of the node with the given id, if present.
func (m *Manifest) Get(uniqueID string) (*core.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[uniqueID]
	if !ok {
		return nil, false
	}
	return node.Clone(), true
}

// Has reports whether a live node with the id exists.
func (m *Manifest) Has(uniqueID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nodes[uniqueID]
	return ok
}

// Update replaces a node in place.
// It fails with *core.InternalError when the id is unknown, when the new node
// carries a different id, or when the update would move the node to another
// source file.
func (m *Manifest) Update(uniqueID string, node *core.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.nodes[uniqueID]
	if !ok {
		return core.Internalf("cannot update %q: not in the manifest", uniqueID)
	}
	if node.UniqueID != uniqueID {
		return core.Internalf("cannot update %q with node %q", uniqueID, node.UniqueID)
	}
	if node.OriginalFilePath != existing.OriginalFilePath {
		return core.Internalf("cannot update %q: original file path changed from %q to %q",
			uniqueID, existing.OriginalFilePath, node.OriginalFilePath)
	}

	m.nodes[uniqueID] = node.Clone()
	return nil
}

// LookupRefs returns live refable nodes named name, restricted to pkg unless
// pkg is empty. Results keep insertion order.
func (m *Manifest) LookupRefs(pkg, name string) []*core.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.refsByName[name], pkg)
}

// LookupSources returns live source tables matching (sourceName, table).
func (m *Manifest) LookupSources(pkg, sourceName, table string) []*core.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.sourcesByKey[sourceKey(sourceName, table)], pkg)
}

// LookupDocs returns live doc blocks named name.
func (m *Manifest) LookupDocs(pkg, name string) []*core.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.docsByName[name], pkg)
}

// LookupDisabled returns disabled nodes of the given resource type matching
// the key, restricted to pkg unless pkg is empty.
// For sources the key is "source_name.table", otherwise the node name.
func (m *Manifest) LookupDisabled(resourceType core.ResourceType, pkg, key string) []*core.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.Node
	for _, node := range m.disabled {
		if !sameKind(node.ResourceType, resourceType) {
			continue
		}
		if pkg != "" && node.PackageName != pkg {
			continue
		}
		nodeKey := node.Name
		if node.ResourceType == core.ResourceSource {
			nodeKey = sourceKey(node.SourceName, node.Name)
		}
		if nodeKey == key {
			out = append(out, node.Clone())
		}
	}
	return out
}

// UniqueIDs returns all live node ids in insertion order.
func (m *Manifest) UniqueIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Nodes returns copies of all live nodes in insertion order.
func (m *Manifest) Nodes() []*core.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*core.Node, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.nodes[id].Clone())
	}
	return out
}

// NodesOfType returns copies of live nodes with the given resource type.
func (m *Manifest) NodesOfType(resourceType core.ResourceType) []*core.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.Node
	for _, id := range m.order {
		if n := m.nodes[id]; n.ResourceType == resourceType {
			out = append(out, n.Clone())
		}
	}
	return out
}

// Disabled returns copies of all disabled nodes.
func (m *Manifest) Disabled() []*core.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*core.Node, 0, len(m.disabled))
	for _, n := range m.disabled {
		out = append(out, n.Clone())
	}
	return out
}

// Len returns the number of live nodes.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// collect resolves ids to clones, keeping only nodes of pkg when pkg is set.
// Callers must hold the read lock.
func (m *Manifest) collect(ids []string, pkg string) []*core.Node {
	var out []*core.Node
	for _, id := range ids {
		node := m.nodes[id]
		if pkg != "" && node.PackageName != pkg {
			continue
		}
		out = append(out, node.Clone())
	}
	return out
}

// materializesRelation reports whether the node owns a physical relation.
func materializesRelation(node *core.Node) bool {
	return node.ResourceType.IsRefable() && !node.IsEphemeral()
}

// sameKind treats all refable types as one namespace, since ref() can target any of them.
func sameKind(a, b core.ResourceType) bool {
	if a.IsRefable() && b.IsRefable() {
		return true
	}
	return a == b
}

func sourceKey(sourceName, table string) string {
	return sourceName + "." + table
}

func duplicate(reason string, first, second *core.Node) *core.DuplicateResourceError {
	return &core.DuplicateResourceError{
		Reason:     reason,
		FirstID:    first.UniqueID,
		FirstPath:  first.OriginalFilePath,
		SecondID:   second.UniqueID,
		SecondPath: second.OriginalFilePath,
	}
}
