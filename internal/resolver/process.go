package resolver

import (
	"log/slog"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// ProcessRefs resolves the captured references of every live node and
// writes the resulting dependency ids back to the manifest.
//
// Unresolved or disabled targets do not stop processing. They are returned
// so the linker can raise them when the offending node is linked: fatal for
// most nodes, a warning for tests.
func (r *Resolver) ProcessRefs() ([]*core.ReferenceError, error) {
	var problems []*core.ReferenceError

	for _, node := range r.manifest.Nodes() {
		if len(node.Refs) == 0 && len(node.SourceRefs) == 0 && len(node.DocRefs) == 0 {
			continue
		}

		for _, call := range node.Refs {
			res := r.ResolveRef(call, node.PackageName)
			if p := r.record(node, res, core.ReferenceRef, call.String()); p != nil {
				problems = append(problems, p)
			}
		}
		for _, call := range node.SourceRefs {
			res := r.ResolveSource(call, node.PackageName)
			if p := r.record(node, res, core.ReferenceSource, call.SourceName+"."+call.TableName); p != nil {
				problems = append(problems, p)
			}
		}
		for _, call := range node.DocRefs {
			res := r.ResolveDoc(call, node.PackageName)
			target := call.Name
			if call.Package != "" {
				target = call.Package + "." + call.Name
			}
			// Docs feed descriptions, not execution order.
			if res.Status != Found {
				problems = append(problems, r.problem(node, res, core.ReferenceDoc, target))
			}
		}

		if err := r.manifest.Update(node.UniqueID, node); err != nil {
			return nil, err
		}
	}

	return problems, nil
}

// record applies a resolution to node: the target becomes a dependency and,
// when ephemeral, gets an empty CTE slot the compiler fills later.
func (r *Resolver) record(node *core.Node, res Resolution, kind core.ReferenceKind, target string) *core.ReferenceError {
	if res.Status != Found {
		return r.problem(node, res, kind, target)
	}

	node.DependsOn.AddNode(res.Node.UniqueID)
	if res.Node.IsEphemeral() {
		node.SetCTE(res.Node.UniqueID, "")
	}
	r.logger.Debug("resolved reference",
		slog.String("node", node.UniqueID),
		slog.String("kind", string(kind)),
		slog.String("target", res.Node.UniqueID))
	return nil
}

func (r *Resolver) problem(node *core.Node, res Resolution, kind core.ReferenceKind, target string) *core.ReferenceError {
	return &core.ReferenceError{
		Kind:     kind,
		Target:   target,
		NodeID:   node.UniqueID,
		NodePath: node.OriginalFilePath,
		Disabled: res.Status == Disabled,
		Warn:     node.IsDataTest(),
	}
}
