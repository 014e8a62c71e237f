package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapgraph/internal/artifacts"
	"github.com/leapstack-labs/leapgraph/internal/compiler"
	"github.com/leapstack-labs/leapgraph/internal/dag"
	"github.com/leapstack-labs/leapgraph/internal/loader"
	"github.com/leapstack-labs/leapgraph/internal/resolver"
)

// Load discovers the project, resolves every captured reference and links
// the dependency graph. It can be called again to reload from disk.
func (e *Engine) Load(ctx context.Context) error {
	start := time.Now()

	project, err := loader.Load(ctx, loader.Options{
		ProjectDir: e.cfg.ProjectDir,
		Project:    e.cfg.Project,
		Target:     e.cfg.Target,
		Env:        e.cfg.Environment,
		Vars:       e.cfg.Vars,
		Threads:    e.cfg.Threads,
		Logger:     e.logger,
	})
	if err != nil {
		return err
	}

	res := resolver.New(project.Manifest, project.Config.Name, e.logger)
	problems, err := res.ProcessRefs()
	if err != nil {
		return err
	}
	if e.cfg.Flags.WarnError {
		for _, p := range problems {
			p.Warn = false
		}
	}

	g, err := dag.Link(project.Manifest, problems, e.logger)
	if err != nil {
		return err
	}

	opts := []compiler.Option{compiler.WithLogger(e.logger)}
	if e.artifacts != nil {
		opts = append(opts, compiler.WithArtifactWriter(e.artifacts))
	}

	e.project = project
	e.graph = g
	e.compiler = compiler.New(project.Manifest,
		compiler.NewTemplateRenderer(res, project.Render), opts...)

	e.logger.Info("graph linked",
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Compile compiles the selected nodes, or every node when sel is empty, and
// writes graph.json for the selection. Ephemeral dependencies outside the
// selection are compiled on demand. It returns the compiled ids in
// dependency order.
func (e *Engine) Compile(ctx context.Context, sel Selection) ([]string, error) {
	if e.project == nil {
		return nil, ErrNotLoaded
	}

	g := e.graph
	if !sel.Empty() {
		ids, err := e.Select(sel)
		if err != nil {
			return nil, err
		}
		if g, err = e.graph.InducedSubgraph(ids); err != nil {
			return nil, err
		}
	}

	compiled, err := e.compiler.CompileAll(ctx, g)
	if err != nil {
		return compiled, err
	}
	e.writeGraph(g)
	return compiled, nil
}

// CompileNode compiles a single node and returns its injected SQL.
func (e *Engine) CompileNode(ctx context.Context, uniqueID string) (string, error) {
	if e.project == nil {
		return "", ErrNotLoaded
	}
	node, _, err := e.compiler.Compile(ctx, uniqueID)
	if err != nil {
		return "", err
	}
	return node.InjectedCode, nil
}

func (e *Engine) writeGraph(g *dag.Graph) {
	if e.artifacts == nil {
		return
	}
	if err := e.artifacts.WriteGraph(dag.NewSnapshot(g, e.project.Manifest.Get)); err != nil {
		e.logger.Warn("failed to write graph", "file", artifacts.GraphFile, "error", err)
	}
}

// Describe returns a one-line summary of the loaded project.
func (e *Engine) Describe() string {
	if e.project == nil {
		return "project not loaded"
	}
	return fmt.Sprintf("%s: %s", e.project.Config.Name, e.project.Result.Summary())
}
