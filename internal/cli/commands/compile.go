package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgraph/internal/cli/output"
	"github.com/leapstack-labs/leapgraph/internal/engine"
)

// watchDebounce coalesces bursts of file events into one rebuild.
const watchDebounce = 100 * time.Millisecond

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	var sel selectionFlags
	var watch bool

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile nodes to executable SQL",
		Long: `Render every selected node, inject its ephemeral dependencies as CTEs and
write the result to the target directory:

  target/compiled/<package>/<path>   the rendered SQL
  target/run/<package>/<path>        the SQL as executed, CTEs injected
  target/graph.json                  the selected subgraph

With --watch the project is reloaded and recompiled whenever a file changes.`,
		Example: `  # Compile everything
  leapgraph compile

  # Compile one model and everything downstream of it
  leapgraph compile -s orders --downstream

  # Recompile on every change
  leapgraph compile --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := compileOnce(cmd.Context(), cmdCtx, sel.selection()); err != nil {
				if !watch {
					return err
				}
				cmdCtx.Renderer.Error(err.Error())
			}
			if !watch {
				return nil
			}
			return watchProject(cmd.Context(), cmdCtx, sel.selection())
		},
	}

	sel.bind(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Recompile when project files change")

	return cmd
}

// compileOutput is the JSON shape of a compile.
type compileOutput struct {
	Compiled []string `json:"compiled"`
	Count    int      `json:"count"`
	Target   string   `json:"target_dir"`
}

func compileOnce(ctx context.Context, cmdCtx *CommandContext, sel engine.Selection) error {
	start := time.Now()
	ids, err := cmdCtx.Engine.Compile(ctx, sel)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(compileOutput{Compiled: ids, Count: len(ids), Target: cmdCtx.Settings.TargetDir})
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Compile"))
		r.Println("")
		for _, id := range ids {
			r.Printf("- %s\n", id)
		}
		r.Println("")
		r.Println(output.FormatKeyValue("Compiled", fmt.Sprintf("%d nodes", len(ids))))
		r.Println(output.FormatKeyValue("Target", cmdCtx.Settings.TargetDir))
	default:
		styles := r.Styles()
		for _, id := range ids {
			r.Printf("  %s\n", styles.NodeID.Render(id))
		}
		r.Success(fmt.Sprintf("Compiled %d nodes in %s", len(ids), time.Since(start).Round(time.Millisecond)))
	}
	return nil
}

// watchProject recompiles on every relevant change until ctx is done.
func watchProject(ctx context.Context, cmdCtx *CommandContext, sel engine.Selection) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	root := cmdCtx.Settings.ProjectDir
	if err := watchDir(watcher, root, cmdCtx.Settings.TargetDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	cmdCtx.Renderer.Warning(fmt.Sprintf("watching %s for changes, press Ctrl+C to stop", root))

	rebuild := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !watchedFile(event.Name) {
				continue
			}
			// New directories need their own watch.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchDir(watcher, event.Name, cmdCtx.Settings.TargetDir)
				}
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				select {
				case rebuild <- struct{}{}:
				default:
				}
			})
		case <-rebuild:
			cmdCtx.Logger.Debug("project changed, recompiling")
			if err := cmdCtx.Engine.Load(ctx); err != nil {
				cmdCtx.Renderer.Error(err.Error())
				continue
			}
			if err := compileOnce(ctx, cmdCtx, sel); err != nil {
				cmdCtx.Renderer.Error(err.Error())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cmdCtx.Logger.Warn("watch error", "error", err)
		}
	}
}

// watchDir recursively adds a directory to the watcher, skipping hidden
// directories and the target directory.
func watchDir(watcher *fsnotify.Watcher, dir, targetDir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path == targetDir || (path != dir && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func watchedFile(name string) bool {
	switch filepath.Ext(name) {
	case ".sql", ".yaml", ".yml", ".csv", ".star", ".md", "":
		return true
	}
	return false
}
