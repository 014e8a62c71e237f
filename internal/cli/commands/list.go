package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgraph/internal/cli/output"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// NewListCommand creates the ls command.
func NewListCommand() *cobra.Command {
	var sel selectionFlags
	var types []string

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List project nodes",
		Long: `List the nodes of the project with their type, materialization and relation.

Selection flags narrow the list the same way they narrow compile and run.`,
		Example: `  # Every node
  leapgraph ls

  # Only models and seeds
  leapgraph ls -t model -t seed

  # What runs downstream of a seed
  leapgraph ls -s raw_orders --downstream -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ids, err := cmdCtx.Engine.Select(sel.selection())
			if err != nil {
				return err
			}
			m := cmdCtx.Engine.Manifest()
			nodes := make([]*core.Node, 0, len(ids))
			for _, id := range ids {
				node, ok := m.Get(id)
				if !ok {
					continue
				}
				if len(types) > 0 && !slices.Contains(types, string(node.ResourceType)) {
					continue
				}
				nodes = append(nodes, node)
			}
			return renderList(cmdCtx.Renderer, nodes)
		},
	}

	sel.bind(cmd)
	cmd.Flags().StringSliceVarP(&types, "resource-type", "t", nil, "Only list nodes of these resource types")
	_ = cmd.RegisterFlagCompletionFunc("resource-type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"model", "seed", "snapshot", "test", "analysis", "operation", "source", "doc", "macro"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

type listNode struct {
	UniqueID     string            `json:"unique_id"`
	ResourceType core.ResourceType `json:"resource_type"`
	Materialized string            `json:"materialized,omitempty"`
	Relation     string            `json:"relation,omitempty"`
	Path         string            `json:"original_file_path,omitempty"`
	DependsOn    []string          `json:"depends_on"`
	Tags         []string          `json:"tags,omitempty"`
}

func renderList(r *output.Renderer, nodes []*core.Node) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]listNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, listNode{
				UniqueID:     n.UniqueID,
				ResourceType: n.ResourceType,
				Materialized: n.Config.Materialized,
				Relation:     relationOf(n),
				Path:         n.OriginalFilePath,
				DependsOn:    append([]string{}, n.DependsOn.Nodes...),
				Tags:         n.Config.Tags,
			})
		}
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Nodes (%d)", len(nodes)))
	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{
			n.UniqueID,
			string(n.ResourceType),
			n.Config.Materialized,
			relationOf(n),
			strings.Join(n.Config.Tags, ","),
		})
	}
	r.Table([]string{"Node", "Type", "Materialized", "Relation", "Tags"}, rows)
	return nil
}

// relationOf returns the relation a node builds or names, if any.
func relationOf(n *core.Node) string {
	switch {
	case n.ResourceType == core.ResourceSource:
		return n.RelationName()
	case n.ResourceType.IsExecutable() && n.ResourceType != core.ResourceTest &&
		n.ResourceType != core.ResourceOperation && !n.IsEphemeral():
		return n.RelationName()
	}
	return ""
}
