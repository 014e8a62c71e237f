// Package cli provides the command-line interface for leapgraph.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgraph/internal/cli/commands"
	"github.com/leapstack-labs/leapgraph/internal/cli/output"
	"github.com/leapstack-labs/leapgraph/internal/config"

	// Built-in adapters register themselves on import.
	_ "github.com/leapstack-labs/leapgraph/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapgraph/pkg/adapters/postgres"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var (
		projectDir string
		cfgFile    string
		envFlag    string
	)

	rootCmd := &cobra.Command{
		Use:   "leapgraph",
		Short: "leapgraph - SQL dependency graph compiler and runner",
		Long: `leapgraph builds a dependency graph from templated SQL files and runs it.

Models, seeds, snapshots and tests reference each other with ref() and
source(). leapgraph resolves those references, links the graph, compiles
every node to plain SQL with ephemeral models inlined as CTEs, and executes
the result in dependency order on a pool of workers.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "version" {
				return nil
			}

			settings, err := config.Load(config.LoadOptions{
				ProjectDir:  projectDir,
				ConfigFile:  cfgFile,
				Environment: envFlag,
				Flags:       cmd.Root().PersistentFlags(),
			})
			if err != nil {
				return err
			}
			mode, err := output.ParseMode(settings.OutputFormat)
			if err != nil {
				return err
			}

			logger := newLogger(cmd, settings.Verbose)
			if settings.ConfigFile != "" {
				logger.Debug("using config file", "path", settings.ConfigFile)
			}

			ctx := commands.WithSettings(cmd.Context(), settings)
			ctx = commands.WithLogger(ctx, logger)
			ctx = commands.WithRenderer(ctx, output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode))
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags. Names map onto settings keys: --target-dir
	// sets target_dir, --state sets state_path.
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&projectDir, "project-dir", "", "Project root (default: nearest directory with leapgraph.yaml)")
	flags.StringVar(&cfgFile, "config", "", "Project file (default: <project-dir>/leapgraph.yaml)")
	flags.StringVar(&envFlag, "env", "", "Environment whose target overrides apply")
	flags.String("state", "", "Path to the state database")
	flags.String("target-dir", "", "Directory for compiled SQL and artifacts")
	flags.Int("threads", 0, "Worker count (default: target threads)")
	flags.Bool("fail-fast", false, "Cancel the run on the first failure")
	flags.Bool("warn-error", false, "Treat warnings as errors")
	flags.BoolP("verbose", "v", false, "Verbose output")
	flags.StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	// Register completion for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("env", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"dev", "staging", "prod"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(commands.BuildInfo{Version: Version, Commit: GitCommit, Date: BuildDate}))
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewCompileCommand())
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewGraphCommand())
	rootCmd.AddCommand(commands.NewShowCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// newLogger writes text logs to stderr: debug when verbose, warnings
// otherwise.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for leapgraph.

To load completions:

Bash:
  $ source <(leapgraph completion bash)
  
  # To load completions for each session, execute once:
  # Linux:
  $ leapgraph completion bash > /etc/bash_completion.d/leapgraph
  # macOS:
  $ leapgraph completion bash > $(brew --prefix)/etc/bash_completion.d/leapgraph

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc
  
  # To load completions for each session, execute once:
  $ leapgraph completion zsh > "${fpath[1]}/_leapgraph"
  
  # You will need to start a new shell for this setup to take effect.

Fish:
  $ leapgraph completion fish | source
  
  # To load completions for each session, execute once:
  $ leapgraph completion fish > ~/.config/fish/completions/leapgraph.fish

PowerShell:
  PS> leapgraph completion powershell | Out-String | Invoke-Expression
  
  # To load completions for every new session, run:
  PS> leapgraph completion powershell > leapgraph.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}
