package dag

import (
	"log/slog"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// NodeStore is the part of the node store the linker needs.
type NodeStore interface {
	Nodes() []*core.Node
	Disabled() []*core.Node
	Has(uniqueID string) bool
	Disable(uniqueID string) error
}

// Link builds the dependency graph from resolved depends_on sets.
//
// Every live and disabled node becomes a vertex. Reference problems found by
// the resolver are raised while their node is linked: a test with a problem
// is logged and disabled so it never compiles or runs, any other problem is
// returned. Dangling
// dependency ids fail with *core.MissingDependencyError and cycles with
// *core.CycleError.
func Link(nodes NodeStore, problems []*core.ReferenceError, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	byNode := make(map[string][]*core.ReferenceError)
	for _, p := range problems {
		byNode[p.NodeID] = append(byNode[p.NodeID], p)
	}

	g := NewGraph()
	live := nodes.Nodes()
	for _, node := range live {
		g.AddNode(node.UniqueID)
	}
	for _, node := range nodes.Disabled() {
		g.AddNode(node.UniqueID)
	}

	for _, node := range live {
		if problems := byNode[node.UniqueID]; len(problems) > 0 {
			for _, p := range problems {
				if !p.Warn {
					return nil, p
				}
				logger.Warn("unresolved reference in test, disabling it",
					slog.String("node", p.NodeID),
					slog.String("kind", string(p.Kind)),
					slog.String("target", p.Target),
					slog.Bool("disabled", p.Disabled))
			}
			if err := nodes.Disable(node.UniqueID); err != nil {
				return nil, err
			}
			continue
		}

		for _, depID := range node.DependsOn.Nodes {
			if !nodes.Has(depID) {
				return nil, &core.MissingDependencyError{NodeID: node.UniqueID, DependencyID: depID}
			}
			if err := g.AddEdge(depID, node.UniqueID); err != nil {
				return nil, core.Internalf("linking %s: %v", node.UniqueID, err)
			}
		}
	}

	if cycle := g.FindCycle(); cycle != nil {
		return nil, &core.CycleError{Path: cycle}
	}

	logger.Debug("linked graph",
		slog.Int("nodes", g.NodeCount()),
		slog.Int("edges", g.EdgeCount()))

	return g, nil
}
