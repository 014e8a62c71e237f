package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgraph/internal/cli/output"
	"github.com/leapstack-labs/leapgraph/internal/dag"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	var sel selectionFlags

	cmd := &cobra.Command{
		Use:     "graph",
		Aliases: []string{"dag"},
		Short:   "Show the dependency graph",
		Long: `Display the dependency graph grouped by execution level.

Nodes on the same level have no dependencies on each other and can run in
parallel. Level 0 holds the roots: sources, seeds and nodes with no parents.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the whole graph
  leapgraph graph

  # Show what feeds one model
  leapgraph graph -s order_totals --upstream

  # Output as JSON
  leapgraph graph -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			g := cmdCtx.Engine.Graph()
			if s := sel.selection(); !s.Empty() {
				ids, err := cmdCtx.Engine.Select(s)
				if err != nil {
					return err
				}
				if g, err = g.ContractedSubgraph(ids); err != nil {
					return err
				}
			}

			levels, err := g.GetExecutionLevels()
			if err != nil {
				return fmt.Errorf("failed to get execution levels: %w", err)
			}

			r := cmdCtx.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return graphJSON(r, g, levels)
			case output.ModeMarkdown:
				graphMarkdown(r, g, levels)
			default:
				graphText(r, g, levels)
			}
			return nil
		},
	}

	sel.bind(cmd)
	return cmd
}

func graphText(r *output.Renderer, g *dag.Graph, levels [][]string) {
	styles := r.Styles()

	r.Header(1, "Dependency Graph")
	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, id := range level {
			r.Printf("  %s\n", styles.NodeID.Render(id))
			if parents := g.Parents(id); len(parents) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(parents, ", "))
			}
			if children := g.Children(id); len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}
	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d nodes, %d dependencies", g.NodeCount(), g.EdgeCount())))
	r.Println(styles.Muted.Render("Leaves: " + strings.Join(g.Leaves(), ", ")))
}

func graphMarkdown(r *output.Renderer, g *dag.Graph, levels [][]string) {
	r.Header(1, "Dependency Graph")
	for i, level := range levels {
		name := fmt.Sprintf("Level %d", i)
		if i == 0 {
			name = "Level 0 (Roots)"
		}
		r.Println(output.FormatHeader(2, name))
		for _, id := range level {
			r.Printf("- %s\n", id)
			if parents := g.Parents(id); len(parents) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(parents, ", "))
			}
			if children := g.Children(id); len(children) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Nodes", fmt.Sprintf("%d", g.NodeCount())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", g.EdgeCount())))
	r.Println(output.FormatKeyValue("Roots", strings.Join(g.Roots(), ", ")))
	r.Println(output.FormatKeyValue("Leaves", strings.Join(g.Leaves(), ", ")))
}

type graphLevel struct {
	Level int         `json:"level"`
	Nodes []graphNode `json:"nodes"`
}

type graphNode struct {
	UniqueID  string   `json:"unique_id"`
	DependsOn []string `json:"depends_on"`
	UsedBy    []string `json:"used_by"`
}

type graphOutput struct {
	Levels     []graphLevel `json:"levels"`
	Roots      []string     `json:"roots"`
	Leaves     []string     `json:"leaves"`
	TotalNodes int          `json:"total_nodes"`
	TotalEdges int          `json:"total_edges"`
}

func graphJSON(r *output.Renderer, g *dag.Graph, levels [][]string) error {
	out := graphOutput{
		Levels:     make([]graphLevel, 0, len(levels)),
		Roots:      append([]string{}, g.Roots()...),
		Leaves:     append([]string{}, g.Leaves()...),
		TotalNodes: g.NodeCount(),
		TotalEdges: g.EdgeCount(),
	}
	for i, level := range levels {
		gl := graphLevel{Level: i, Nodes: make([]graphNode, 0, len(level))}
		for _, id := range level {
			gl.Nodes = append(gl.Nodes, graphNode{
				UniqueID:  id,
				DependsOn: append([]string{}, g.Parents(id)...),
				UsedBy:    append([]string{}, g.Children(id)...),
			})
		}
		out.Levels = append(out.Levels, gl)
	}
	return r.JSON(out)
}
