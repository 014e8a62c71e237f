package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgraph/internal/cli/output"
	"github.com/leapstack-labs/leapgraph/internal/engine"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// NewShowCommand creates the show command.
func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <node>",
		Short: "Show a node and its compiled SQL",
		Long: `Compile one node and print its metadata together with the SQL that would
be executed, ephemeral dependencies injected as CTEs.

The node can be named by unique id, name or package-qualified name.`,
		Example: `  leapgraph show orders
  leapgraph show model.shop.order_totals -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ids, err := cmdCtx.Engine.Select(engine.Selection{Nodes: args})
			if err != nil {
				return err
			}
			if len(ids) != 1 {
				return fmt.Errorf("%q is ambiguous, matches: %s", args[0], strings.Join(ids, ", "))
			}
			node, err := cmdCtx.Engine.Manifest().Expect(ids[0])
			if err != nil {
				return err
			}

			var code string
			if node.ResourceType.IsCompilable() {
				if code, err = cmdCtx.Engine.CompileNode(cmd.Context(), node.UniqueID); err != nil {
					return err
				}
			}
			return renderShow(cmdCtx.Renderer, node, code)
		},
	}
	return cmd
}

type showOutput struct {
	UniqueID     string            `json:"unique_id"`
	ResourceType core.ResourceType `json:"resource_type"`
	Path         string            `json:"original_file_path,omitempty"`
	Materialized string            `json:"materialized,omitempty"`
	Relation     string            `json:"relation,omitempty"`
	DependsOn    []string          `json:"depends_on"`
	Tags         []string          `json:"tags,omitempty"`
	Description  string            `json:"description,omitempty"`
	CompiledCode string            `json:"compiled_code,omitempty"`
}

func renderShow(r *output.Renderer, node *core.Node, code string) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(showOutput{
			UniqueID:     node.UniqueID,
			ResourceType: node.ResourceType,
			Path:         node.OriginalFilePath,
			Materialized: node.Config.Materialized,
			Relation:     relationOf(node),
			DependsOn:    append([]string{}, node.DependsOn.Nodes...),
			Tags:         node.Config.Tags,
			Description:  node.Description,
			CompiledCode: code,
		})
	}

	fields := [][2]string{
		{"Type", string(node.ResourceType)},
		{"Path", node.OriginalFilePath},
		{"Materialized", node.Config.Materialized},
		{"Relation", relationOf(node)},
		{"Depends on", strings.Join(node.DependsOn.Nodes, ", ")},
		{"Tags", strings.Join(node.Config.Tags, ", ")},
	}

	r.Header(1, node.UniqueID)
	markdown := r.EffectiveMode() == output.ModeMarkdown
	styles := r.Styles()
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if markdown {
			r.Println(output.FormatKeyValue(f[0], f[1]))
		} else {
			r.Printf("%s %s\n", styles.Muted.Render(f[0]+":"), f[1])
		}
	}
	if node.Description != "" {
		r.Println("")
		r.Println(node.Description)
	}
	if code == "" {
		return nil
	}

	r.Println("")
	if markdown {
		r.Println("```sql")
		r.Println(strings.TrimRight(code, "\n"))
		r.Println("```")
		return nil
	}
	r.Println(strings.TrimRight(code, "\n"))
	return nil
}
