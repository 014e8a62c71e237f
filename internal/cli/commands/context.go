package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgraph/internal/cli/output"
	"github.com/leapstack-labs/leapgraph/internal/config"
	"github.com/leapstack-labs/leapgraph/internal/engine"
)

type settingsKey struct{}

type loggerKey struct{}

type rendererKey struct{}

// WithSettings stores the loaded settings in ctx.
func WithSettings(ctx context.Context, s *config.Settings) context.Context {
	return context.WithValue(ctx, settingsKey{}, s)
}

// WithLogger stores the logger in ctx.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// WithRenderer stores the renderer in ctx.
func WithRenderer(ctx context.Context, r *output.Renderer) context.Context {
	return context.WithValue(ctx, rendererKey{}, r)
}

// GetSettings returns the settings stored by the root command.
func GetSettings(ctx context.Context) (*config.Settings, error) {
	if s, ok := ctx.Value(settingsKey{}).(*config.Settings); ok {
		return s, nil
	}
	return nil, fmt.Errorf("settings not loaded")
}

// GetLogger returns the command logger, or a discarding one.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// GetRenderer returns the command renderer, falling back to auto mode on
// the command's writers.
func GetRenderer(cmd *cobra.Command) *output.Renderer {
	if r, ok := cmd.Context().Value(rendererKey{}).(*output.Renderer); ok {
		return r
	}
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ModeAuto)
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Settings *config.Settings
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates an engine from the settings and loads the
// project. The returned cleanup func must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	ctx := cmd.Context()
	settings, err := GetSettings(ctx)
	if err != nil {
		return nil, nil, err
	}
	logger := GetLogger(ctx)

	eng, err := createEngine(settings, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := eng.Close(); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
	}

	if err := eng.Load(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	return &CommandContext{
		Settings: settings,
		Logger:   logger,
		Engine:   eng,
		Renderer: GetRenderer(cmd),
	}, cleanup, nil
}

func createEngine(s *config.Settings, logger *slog.Logger) (*engine.Engine, error) {
	// Ensure state directory exists
	if s.StatePath != "" && s.StatePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.StatePath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	return engine.New(engine.Config{
		ProjectDir:  s.ProjectDir,
		StatePath:   s.StatePath,
		TargetDir:   s.TargetDir,
		Environment: s.Environment,
		Target:      s.Target,
		Threads:     s.Threads,
		Flags:       s.RunFlags(),
		Logger:      logger,
	})
}

// selectionFlags binds the node selection flags shared by compile, run
// and ls.
type selectionFlags struct {
	nodes      []string
	exclude    []string
	upstream   bool
	downstream bool
}

func (f *selectionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.nodes, "select", "s", nil, "Nodes to select (name, unique id, pkg.name, tag:<tag>, path:<prefix>)")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Nodes to remove from the selection")
	cmd.Flags().BoolVar(&f.upstream, "upstream", false, "Include ancestors of the selected nodes")
	cmd.Flags().BoolVar(&f.downstream, "downstream", false, "Include descendants of the selected nodes")
}

func (f *selectionFlags) selection() engine.Selection {
	return engine.Selection{
		Nodes:      f.nodes,
		Upstream:   f.upstream,
		Downstream: f.downstream,
		Exclude:    f.exclude,
	}
}
