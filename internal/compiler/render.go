package compiler

import (
	"context"
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapgraph/internal/resolver"
	starctx "github.com/leapstack-labs/leapgraph/internal/starlark"
	"github.com/leapstack-labs/leapgraph/internal/template"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// TemplateRenderer renders a node's raw template with references resolved:
// ref() and source() return relation names, or the CTE name for ephemeral
// targets, and doc() returns the block contents.
type TemplateRenderer struct {
	resolver *resolver.Resolver
	settings starctx.Settings
}

// NewTemplateRenderer creates a renderer that resolves references through r.
func NewTemplateRenderer(r *resolver.Resolver, settings starctx.Settings) *TemplateRenderer {
	return &TemplateRenderer{resolver: r, settings: settings}
}

// Render implements Renderer.
func (t *TemplateRenderer) Render(ctx context.Context, node *core.Node) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	scope, err := t.settings.ForNode(node, &resolvingRefs{node: node, resolver: t.resolver}, nil)
	if err != nil {
		return "", err
	}
	return template.RenderString(node.RawCode, node.OriginalFilePath, scope)
}

// resolvingRefs answers reference calls during compilation. Every target
// must already be a recorded dependency of the node: a call that the load
// render did not capture cannot be scheduled correctly.
type resolvingRefs struct {
	node     *core.Node
	resolver *resolver.Resolver
}

func (p *resolvingRefs) Ref(pkg, name string) (string, error) {
	call := core.RefCall{Package: pkg, Name: name}
	target, err := p.dependency(p.resolver.ResolveRef(call, p.node.PackageName), core.ReferenceRef, call.String())
	if err != nil {
		return "", err
	}
	if target.IsEphemeral() {
		return CTEName(target), nil
	}
	return target.RelationName(), nil
}

func (p *resolvingRefs) Source(sourceName, tableName string) (string, error) {
	call := core.SourceCall{SourceName: sourceName, TableName: tableName}
	target, err := p.dependency(p.resolver.ResolveSource(call, p.node.PackageName), core.ReferenceSource, sourceName+"."+tableName)
	if err != nil {
		return "", err
	}
	return target.RelationName(), nil
}

func (p *resolvingRefs) Doc(pkg, name string) (string, error) {
	res := p.resolver.ResolveDoc(core.DocCall{Package: pkg, Name: name}, p.node.PackageName)
	if res.Status != resolver.Found {
		return "", p.problem(res, core.ReferenceDoc, core.RefCall{Package: pkg, Name: name}.String())
	}
	return res.Node.BlockContents, nil
}

func (p *resolvingRefs) dependency(res resolver.Resolution, kind core.ReferenceKind, target string) (*core.Node, error) {
	if res.Status != resolver.Found {
		return nil, p.problem(res, kind, target)
	}
	if !slices.Contains(p.node.DependsOn.Nodes, res.Node.UniqueID) {
		return nil, fmt.Errorf("%s %q resolved to %s, which is not a recorded dependency of %s; "+
			"unable to infer dependencies", kind, target, res.Node.UniqueID, p.node.UniqueID)
	}
	return res.Node, nil
}

func (p *resolvingRefs) problem(res resolver.Resolution, kind core.ReferenceKind, target string) error {
	return &core.ReferenceError{
		Kind:     kind,
		Target:   target,
		NodeID:   p.node.UniqueID,
		NodePath: p.node.OriginalFilePath,
		Disabled: res.Status == resolver.Disabled,
	}
}
