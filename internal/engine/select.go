package engine

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// Selection picks nodes from the graph.
//
// Each entry of Nodes is a unique id, a node name, a package-qualified name
// (pkg.name), tag:<tag> or path:<prefix> matched against the file path
// relative to the package root.
type Selection struct {
	Nodes []string
	// Upstream adds every ancestor of the matched nodes.
	Upstream bool
	// Downstream adds every descendant of the matched nodes.
	Downstream bool
	// Exclude removes matches of these entries after expansion.
	Exclude []string
}

// Empty reports whether the selection matches everything.
func (s Selection) Empty() bool {
	return len(s.Nodes) == 0 && len(s.Exclude) == 0
}

// Select returns the sorted ids the selection matches. Entries matching no
// live node fail with *core.SelectionError.
func (e *Engine) Select(sel Selection) ([]string, error) {
	if e.project == nil {
		return nil, ErrNotLoaded
	}

	nodes := e.project.Manifest.Nodes()
	picked := make(map[string]bool)
	if len(sel.Nodes) == 0 {
		for _, node := range nodes {
			picked[node.UniqueID] = true
		}
	}

	var missing, matched []string
	for _, entry := range sel.Nodes {
		ids := match(nodes, entry)
		if len(ids) == 0 {
			missing = append(missing, entry)
			continue
		}
		matched = append(matched, ids...)
	}
	for _, id := range matched {
		picked[id] = true
		if sel.Upstream {
			for _, anc := range e.graph.Ancestors(id) {
				picked[anc] = true
			}
		}
	}
	if sel.Downstream {
		for _, id := range e.graph.GetAffectedNodes(matched) {
			picked[id] = true
		}
	}
	if len(missing) > 0 {
		return nil, &core.SelectionError{Missing: missing}
	}

	for _, entry := range sel.Exclude {
		for _, id := range match(nodes, entry) {
			delete(picked, id)
		}
	}

	out := make([]string, 0, len(picked))
	for id := range picked {
		// Disabled nodes are graph vertices but never selectable.
		if e.project.Manifest.Has(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// match returns the ids of nodes one selector entry names.
func match(nodes []*core.Node, entry string) []string {
	var ids []string
	switch {
	case strings.HasPrefix(entry, "tag:"):
		tag := strings.TrimPrefix(entry, "tag:")
		for _, node := range nodes {
			if node.Config.HasTag(tag) {
				ids = append(ids, node.UniqueID)
			}
		}
	case strings.HasPrefix(entry, "path:"):
		prefix := strings.TrimSuffix(strings.TrimPrefix(entry, "path:"), "/")
		for _, node := range nodes {
			p := node.OriginalFilePath
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				ids = append(ids, node.UniqueID)
			}
		}
	default:
		for _, node := range nodes {
			if node.UniqueID == entry ||
				node.Name == entry ||
				node.PackageName+"."+node.Name == entry {
				ids = append(ids, node.UniqueID)
			}
		}
	}
	return ids
}

// runnable reports whether a node occupies a worker during a run.
// Operations are excluded; they run as hooks around the worker pool.
func runnable(node *core.Node) bool {
	return node.ResourceType.IsExecutable() &&
		node.ResourceType != core.ResourceOperation &&
		!node.IsEphemeral()
}
