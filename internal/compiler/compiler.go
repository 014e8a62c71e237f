// Package compiler turns parsed nodes into executable SQL.
//
// Compilation has two steps. The node's template is rendered by a Renderer,
// then every ephemeral dependency is compiled on demand and spliced into the
// node's SQL as a CTE. The result is written back to the manifest, and a node
// that is already injected is returned as-is.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapgraph/internal/manifest"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

const (
	// EphemeralPrefix is prepended to ephemeral node names to form CTE names.
	EphemeralPrefix = "__leapgraph__cte__"
	// TestBodyCTE is the reserved CTE id a data test body is wrapped in.
	TestBodyCTE = "__leapgraph__test_body"
)

// Renderer renders a node's raw template into SQL.
type Renderer interface {
	Render(ctx context.Context, node *core.Node) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, node *core.Node) (string, error)

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, node *core.Node) (string, error) {
	return f(ctx, node)
}

// ArtifactWriter persists compiled SQL for inspection.
type ArtifactWriter interface {
	Write(path, text string) error
}

// CTEName returns the identifier an ephemeral node is inlined under.
func CTEName(node *core.Node) string {
	name := node.Alias
	if name == "" {
		name = node.Name
	}
	return EphemeralPrefix + name
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithArtifactWriter sets the sink for compiled and injected SQL.
func WithArtifactWriter(w ArtifactWriter) Option {
	return func(c *Compiler) { c.writer = w }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Compiler compiles nodes stored in a manifest.
// It is meant to run on a single goroutine, before execution starts.
type Compiler struct {
	manifest *manifest.Manifest
	renderer Renderer
	writer   ArtifactWriter
	logger   *slog.Logger
}

// New creates a compiler.
func New(m *manifest.Manifest, r Renderer, opts ...Option) *Compiler {
	c := &Compiler{
		manifest: m,
		renderer: r,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile renders and injects the node with the given id, writes it back to
// the manifest and returns it with the CTEs spliced into its SQL.
func (c *Compiler) Compile(ctx context.Context, uniqueID string) (*core.Node, []core.InjectedCTE, error) {
	node, err := c.manifest.Expect(uniqueID)
	if err != nil {
		return nil, nil, err
	}
	return c.compileNode(ctx, node)
}

func (c *Compiler) compileNode(ctx context.Context, node *core.Node) (*core.Node, []core.InjectedCTE, error) {
	if node.ExtraCTEsInjected {
		return node, node.ExtraCTEs, nil
	}

	if !node.Compiled {
		if err := c.render(ctx, node); err != nil {
			return nil, nil, err
		}
	}

	var ctes []core.InjectedCTE
	for _, slot := range node.ExtraCTEs {
		if slot.ID == TestBodyCTE {
			ctes = core.MergeCTE(ctes, slot)
			continue
		}

		dep, ok := c.manifest.Get(slot.ID)
		if !ok {
			return nil, nil, &core.UnresolvedCTEError{NodeID: node.UniqueID, CTEID: slot.ID}
		}

		var inherited []core.InjectedCTE
		switch {
		case dep.Compiled && dep.ExtraCTEsInjected:
			inherited = dep.ExtraCTEs
		case !dep.IsEphemeral():
			return nil, nil, &core.InvalidEphemeralError{
				NodeID: node.UniqueID, DependencyID: dep.UniqueID,
				Reason: "dependency is neither compiled nor ephemeral",
			}
		case !dep.ResourceType.IsCompilable():
			return nil, nil, &core.InvalidEphemeralError{
				NodeID: node.UniqueID, DependencyID: dep.UniqueID,
				Reason: fmt.Sprintf("a %s cannot be ephemeral", dep.ResourceType),
			}
		default:
			var err error
			dep, inherited, err = c.compileNode(ctx, dep)
			if err != nil {
				return nil, nil, err
			}
		}

		for _, cte := range inherited {
			ctes = core.MergeCTE(ctes, cte)
		}
		ctes = core.MergeCTE(ctes, core.InjectedCTE{
			ID:  dep.UniqueID,
			SQL: CTEName(dep) + " as (\n" + dep.CompiledCode + "\n)",
		})
	}

	node.ExtraCTEs = ctes
	node.InjectedCode = injectCTEs(node.CompiledCode, ctes)
	node.ExtraCTEsInjected = true

	if err := c.manifest.Update(node.UniqueID, node); err != nil {
		return nil, nil, err
	}

	c.logger.Debug("compiled node",
		slog.String("node", node.UniqueID),
		slog.Int("ctes", len(ctes)))

	return node, ctes, nil
}

// render fills CompiledCode. A data test body is moved into the reserved CTE
// and replaced by a row count over it.
func (c *Compiler) render(ctx context.Context, node *core.Node) error {
	sql, err := c.renderer.Render(ctx, node)
	if err != nil {
		var tmplErr *core.TemplateError
		if errors.As(err, &tmplErr) {
			return err
		}
		return &core.TemplateError{NodeID: node.UniqueID, File: node.OriginalFilePath, Cause: err}
	}

	if node.IsDataTest() {
		node.SetCTE(TestBodyCTE, TestBodyCTE+" as (\n"+sql+"\n)")
		sql = "select count(*) from " + TestBodyCTE
	}

	node.CompiledCode = sql
	node.Compiled = true
	return nil
}
