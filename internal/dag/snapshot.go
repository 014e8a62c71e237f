package dag

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// SnapshotVersion is bumped when the graph.json layout changes.
const SnapshotVersion = 1

// Snapshot is the serialized form of a linked graph with node attributes.
type Snapshot struct {
	Version int            `json:"version"`
	Nodes   []SnapshotNode `json:"nodes"`
	Edges   []SnapshotEdge `json:"edges"`
}

// SnapshotNode is one vertex. Node is nil for ids the lookup did not know.
type SnapshotNode struct {
	ID   string     `json:"id"`
	Node *core.Node `json:"node,omitempty"`
}

// SnapshotEdge is parent → child.
type SnapshotEdge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// NewSnapshot captures g together with the attributes lookup returns for each vertex.
func NewSnapshot(g *Graph, lookup func(id string) (*core.Node, bool)) *Snapshot {
	s := &Snapshot{Version: SnapshotVersion}
	for _, id := range g.Nodes() {
		sn := SnapshotNode{ID: id}
		if lookup != nil {
			if node, ok := lookup(id); ok {
				sn.Node = node
			}
		}
		s.Nodes = append(s.Nodes, sn)
	}
	for _, e := range g.Edges() {
		s.Edges = append(s.Edges, SnapshotEdge{Parent: e[0], Child: e[1]})
	}
	return s
}

// Graph rebuilds the graph described by the snapshot.
func (s *Snapshot) Graph() (*Graph, error) {
	g := NewGraph()
	for _, n := range s.Nodes {
		g.AddNode(n.ID)
	}
	for _, e := range s.Edges {
		if err := g.AddEdge(e.Parent, e.Child); err != nil {
			return nil, fmt.Errorf("invalid snapshot edge: %w", err)
		}
	}
	return g, nil
}

// Node returns the stored attributes of id.
func (s *Snapshot) Node(id string) (*core.Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n.Node, n.Node != nil
		}
	}
	return nil, false
}

// Write encodes the snapshot as indented JSON.
func (s *Snapshot) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ReadSnapshot decodes a snapshot written by Write.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode graph snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported graph snapshot version %d", s.Version)
	}
	return &s, nil
}
