// Package resolver turns captured ref(), source() and doc() calls into
// concrete dependency ids.
//
// Unqualified lookups search three tiers in order: the current project, the
// requesting node's package, then any package. The live index is searched
// across all tiers before the disabled index is consulted, so a disabled
// node never shadows a live one further down the list.
package resolver

import (
	"log/slog"

	"github.com/leapstack-labs/leapgraph/internal/manifest"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// Status is the outcome of a lookup.
type Status int

// Lookup outcomes.
const (
	NotFound Status = iota
	Found
	Disabled
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Disabled:
		return "disabled"
	default:
		return "not found"
	}
}

// Resolution is the result of resolving one reference.
// Node is set for Found and Disabled.
type Resolution struct {
	Status Status
	Node   *core.Node
}

// anyPackage is the wildcard tier.
const anyPackage = ""

// Resolver resolves references against a manifest.
type Resolver struct {
	manifest       *manifest.Manifest
	currentProject string
	logger         *slog.Logger
}

// New creates a resolver. currentProject is the package that started the
// compile, not necessarily the package of the node being resolved.
func New(m *manifest.Manifest, currentProject string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{manifest: m, currentProject: currentProject, logger: logger}
}

// index abstracts the live and disabled lookups for one reference kind.
type index struct {
	live     func(pkg string) []*core.Node
	disabled func(pkg string) []*core.Node
}

// ResolveRef resolves ref(name) or ref(package, name) from a node in nodePackage.
func (r *Resolver) ResolveRef(call core.RefCall, nodePackage string) Resolution {
	return r.resolve(index{
		live: func(pkg string) []*core.Node { return r.manifest.LookupRefs(pkg, call.Name) },
		disabled: func(pkg string) []*core.Node {
			return r.manifest.LookupDisabled(core.ResourceModel, pkg, call.Name)
		},
	}, call.Package, nodePackage)
}

// ResolveSource resolves source(source_name, table_name).
// Sources carry no package qualifier, so the tiered search always applies.
func (r *Resolver) ResolveSource(call core.SourceCall, nodePackage string) Resolution {
	return r.resolve(index{
		live: func(pkg string) []*core.Node {
			return r.manifest.LookupSources(pkg, call.SourceName, call.TableName)
		},
		disabled: func(pkg string) []*core.Node {
			return r.manifest.LookupDisabled(core.ResourceSource, pkg, call.SourceName+"."+call.TableName)
		},
	}, "", nodePackage)
}

// ResolveDoc resolves doc(name) or doc(package, name).
func (r *Resolver) ResolveDoc(call core.DocCall, nodePackage string) Resolution {
	return r.resolve(index{
		live: func(pkg string) []*core.Node { return r.manifest.LookupDocs(pkg, call.Name) },
		disabled: func(pkg string) []*core.Node {
			return r.manifest.LookupDisabled(core.ResourceDocumentation, pkg, call.Name)
		},
	}, call.Package, nodePackage)
}

func (r *Resolver) resolve(idx index, pkg, nodePackage string) Resolution {
	tiers := []string{pkg}
	if pkg == "" {
		tiers = r.tiers(nodePackage)
	}

	// Live nodes that are turned off count as misses but are remembered as
	// disabled candidates for their tier.
	var offByTier [][]*core.Node
	for _, tier := range tiers {
		var off []*core.Node
		for _, node := range idx.live(tier) {
			if node.Config.Enabled {
				return Resolution{Status: Found, Node: node}
			}
			off = append(off, node)
		}
		offByTier = append(offByTier, off)
	}

	for i, tier := range tiers {
		if candidates := idx.disabled(tier); len(candidates) > 0 {
			return Resolution{Status: Disabled, Node: candidates[0]}
		}
		if len(offByTier[i]) > 0 {
			return Resolution{Status: Disabled, Node: offByTier[i][0]}
		}
	}

	return Resolution{Status: NotFound}
}

// tiers returns the unqualified search order.
func (r *Resolver) tiers(nodePackage string) []string {
	tiers := make([]string, 0, 3)
	if r.currentProject != "" {
		tiers = append(tiers, r.currentProject)
	}
	if nodePackage != "" && nodePackage != r.currentProject {
		tiers = append(tiers, nodePackage)
	}
	return append(tiers, anyPackage)
}
