package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgraph/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a starter project",
		Long: `Create a small working project: a seed, an ephemeral staging model, a table
and a view, generic and singular tests, a Starlark macro and a DuckDB target.

  leapgraph.yaml   project configuration
  seeds/           CSV files loaded as tables
  models/          SQL models
  tests/           singular data tests
  macros/          Starlark macros`,
		Example: `  # Initialize in the current directory
  leapgraph init

  # Initialize in a new directory
  leapgraph init shop

  # Overwrite existing files
  leapgraph init --force`,
		Args: cobra.MaximumNArgs(1),
		// Runs before any project exists, so it skips settings loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			r := GetRenderer(cmd)

			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
			configPath := filepath.Join(dir, config.ConfigFileName)
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists. Use --force to overwrite", configPath)
			}

			files, err := copyTemplate("starter", dir, force)
			if err != nil {
				return fmt.Errorf("failed to initialize project: %w", err)
			}
			styles := r.Styles()
			for _, f := range files {
				r.Printf("  %s\n", styles.NodeID.Render(f))
			}

			r.Println("")
			r.Success("Project initialized in " + dir)
			r.Println("")
			r.Println("Next steps:")
			r.Println("  leapgraph ls       List the nodes of the project")
			r.Println("  leapgraph compile  Render SQL into target/")
			r.Println("  leapgraph run      Build and test everything in dependency order")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	return cmd
}
