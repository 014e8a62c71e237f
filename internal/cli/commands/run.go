package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgraph/internal/cli/output"
	"github.com/leapstack-labs/leapgraph/internal/engine"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var sel selectionFlags
	var noHooks bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile and execute nodes in dependency order",
		Long: `Compile the selected nodes and execute them against the target.

Models, seeds, snapshots and tests run on --threads workers; a node starts
as soon as all of its parents have finished. A failed node skips every node
downstream of it. With --fail-fast the first failure cancels the run.

Tests with severity warn report a warning instead of failing, unless
--warn-error is set. Every run is recorded in the state database.`,
		Example: `  # Run everything
  leapgraph run

  # Run the finance models and their tests
  leapgraph run -s tag:finance

  # Rebuild one seed and everything that reads it
  leapgraph run -s raw_orders --downstream --threads 8

  # Machine readable results
  leapgraph run -o json`,
		Aliases: []string{"build"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			result, runErr := cmdCtx.Engine.Run(cmd.Context(), engine.RunOptions{
				Selection: sel.selection(),
				NoHooks:   noHooks,
			})
			if result == nil {
				return runErr
			}
			if err := renderRun(cmdCtx.Renderer, result); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}
			if failed := result.Count(core.NodeRunStatusFailed); failed > 0 {
				return fmt.Errorf("%d node(s) failed", failed)
			}
			return nil
		},
	}

	sel.bind(cmd)
	cmd.Flags().BoolVar(&noHooks, "no-hooks", false, "Skip on-run-start and on-run-end hooks")

	return cmd
}

// runOutput is the JSON shape of a run.
type runOutput struct {
	RunID      string          `json:"run_id"`
	Status     core.RunStatus  `json:"status"`
	DurationMS int64           `json:"duration_ms"`
	Results    []runResultJSON `json:"results"`
	Summary    map[string]int  `json:"summary"`
}

type runResultJSON struct {
	UniqueID     string             `json:"unique_id"`
	Status       core.NodeRunStatus `json:"status"`
	RowsAffected int64              `json:"rows_affected"`
	Failures     int64              `json:"failures,omitempty"`
	Message      string             `json:"message,omitempty"`
	DurationMS   int64              `json:"duration_ms"`
}

var summaryStatuses = []core.NodeRunStatus{
	core.NodeRunStatusSuccess,
	core.NodeRunStatusWarn,
	core.NodeRunStatusFailed,
	core.NodeRunStatusSkipped,
}

func renderRun(r *output.Renderer, result *engine.RunResult) error {
	summary := make(map[string]int, len(summaryStatuses))
	for _, s := range summaryStatuses {
		summary[string(s)] = result.Count(s)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		out := runOutput{
			RunID:      result.Run.ID,
			Status:     result.Run.Status,
			DurationMS: result.Duration.Milliseconds(),
			Results:    make([]runResultJSON, 0, len(result.Results)),
			Summary:    summary,
		}
		for _, res := range result.Results {
			out.Results = append(out.Results, runResultJSON{
				UniqueID:     res.UniqueID,
				Status:       res.Status,
				RowsAffected: res.RowsAffected,
				Failures:     res.Failures,
				Message:      res.Message,
				DurationMS:   res.Duration.Milliseconds(),
			})
		}
		return r.JSON(out)
	case output.ModeMarkdown:
		r.Header(1, "Run "+result.Run.ID)
	}

	styles := r.Styles()
	rows := make([][]string, 0, len(result.Results))
	for _, res := range result.Results {
		status := string(res.Status)
		switch res.Status {
		case core.NodeRunStatusSuccess:
			status = styles.Success.Render(status)
		case core.NodeRunStatusWarn:
			status = styles.Warning.Render(status)
		case core.NodeRunStatusFailed:
			status = styles.Error.Render(status)
		case core.NodeRunStatusSkipped:
			status = styles.Skipped.Render(status)
		}
		rows = append(rows, []string{
			res.UniqueID,
			status,
			strconv.FormatInt(res.RowsAffected, 10),
			res.Duration.Round(time.Millisecond).String(),
			res.Message,
		})
	}
	r.Table([]string{"Node", "Status", "Rows", "Duration", "Message"}, rows)
	r.Println("")

	line := fmt.Sprintf("%s in %s: %d success, %d warn, %d failed, %d skipped",
		result.Run.Status, result.Duration.Round(time.Millisecond),
		summary["success"], summary["warn"], summary["failed"], summary["skipped"])
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue("Result", line))
		return nil
	}
	if result.Succeeded() {
		r.Success(line)
	} else {
		r.Error(line)
	}
	return nil
}
