package loader

import (
	"context"
	"errors"
	"slices"
	"sync"

	starctx "github.com/leapstack-labs/leapgraph/internal/starlark"
	"github.com/leapstack-labs/leapgraph/internal/template"
	"github.com/leapstack-labs/leapgraph/pkg/core"
	"golang.org/x/sync/errgroup"
)

// captureAll renders every enabled template once, recording the ref, source
// and doc calls and the macros each node touches. Renders run in parallel;
// each goroutine writes only to its own node. All failures are reported.
func captureAll(ctx context.Context, settings starctx.Settings, pending []*core.Node, threads int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, node := range pending {
		if !node.Config.Enabled || !node.ResourceType.IsCompilable() {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := capture(settings, node); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// capture renders one node with recording reference callables.
func capture(settings starctx.Settings, node *core.Node) error {
	refs := &captureRefs{node: node}
	scope, err := settings.ForNode(node, refs, node.DependsOn.AddMacro)
	if err != nil {
		return err
	}
	if _, err := template.RenderString(node.RawCode, node.OriginalFilePath, scope); err != nil {
		return &core.TemplateError{NodeID: node.UniqueID, File: node.OriginalFilePath, Cause: err}
	}
	return nil
}

// captureRefs records reference calls on the node being loaded. Calls
// return a stand-in so templates that use the result still render.
type captureRefs struct {
	node *core.Node
}

func (c *captureRefs) Ref(pkg, name string) (string, error) {
	call := core.RefCall{Package: pkg, Name: name}
	if !slices.Contains(c.node.Refs, call) {
		c.node.Refs = append(c.node.Refs, call)
	}
	return call.String(), nil
}

func (c *captureRefs) Source(sourceName, tableName string) (string, error) {
	call := core.SourceCall{SourceName: sourceName, TableName: tableName}
	if !slices.Contains(c.node.SourceRefs, call) {
		c.node.SourceRefs = append(c.node.SourceRefs, call)
	}
	return sourceName + "." + tableName, nil
}

func (c *captureRefs) Doc(pkg, name string) (string, error) {
	call := core.DocCall{Package: pkg, Name: name}
	if !slices.Contains(c.node.DocRefs, call) {
		c.node.DocRefs = append(c.node.DocRefs, call)
	}
	return "", nil
}
