package compiler

import (
	"context"
	"log/slog"
	"path"

	"github.com/leapstack-labs/leapgraph/internal/dag"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// Artifact directories under the target dir.
const (
	CompiledDir = "compiled"
	RunDir      = "run"
)

// CompileAll compiles every compilable node of g in dependency order and
// returns the compiled ids. Disabled nodes, sources, docs and macros are
// skipped. Artifact write failures are logged and never stop compilation.
func (c *Compiler) CompileAll(ctx context.Context, g *dag.Graph) ([]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	var compiled []string
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return compiled, err
		}

		node, ok := c.manifest.Get(id)
		if !ok || !node.ResourceType.IsCompilable() {
			continue
		}

		node, _, err := c.compileNode(ctx, node)
		if err != nil {
			return compiled, err
		}
		compiled = append(compiled, id)
		c.writeArtifacts(node)
	}

	c.logger.Info("compiled project", slog.Int("nodes", len(compiled)))
	return compiled, nil
}

// ArtifactPath returns where a node's SQL is written under dir. Generated
// nodes share their defining file, so they nest under it by name.
func ArtifactPath(dir string, node *core.Node) string {
	if node.IsGenerated() {
		return path.Join(dir, node.PackageName, node.OriginalFilePath, node.Name+".sql")
	}
	return path.Join(dir, node.PackageName, node.OriginalFilePath)
}

func (c *Compiler) writeArtifacts(node *core.Node) {
	if c.writer == nil || node.IsEphemeral() {
		return
	}
	if err := c.writer.Write(ArtifactPath(CompiledDir, node), node.CompiledCode); err != nil {
		c.logger.Warn("failed to write compiled sql",
			slog.String("node", node.UniqueID), slog.String("error", err.Error()))
	}
	if err := c.writer.Write(ArtifactPath(RunDir, node), node.InjectedCode); err != nil {
		c.logger.Warn("failed to write injected sql",
			slog.String("node", node.UniqueID), slog.String("error", err.Error()))
	}
}
