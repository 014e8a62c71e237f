package commands

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgraph/internal/cli/output"
	"github.com/leapstack-labs/leapgraph/pkg/adapter"
)

// BuildInfo identifies the binary.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type versionReport struct {
	BuildInfo
	Go       string   `json:"go"`
	Adapters []string `json:"adapters"`
}

// NewVersionCommand creates the version command. It runs without a
// project, so it reads --output itself.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Show the leapgraph version, build metadata and the warehouse adapters compiled in.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("output")
			mode, err := output.ParseMode(format)
			if err != nil {
				return err
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			report := versionReport{BuildInfo: info, Go: runtime.Version(), Adapters: adapter.Available()}
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(report)
			}

			r.Printf("leapgraph v%s\n", info.Version)
			if r.EffectiveMode() == output.ModeMarkdown {
				r.Println(output.FormatKeyValue("Commit", info.Commit))
				r.Println(output.FormatKeyValue("Built", info.Date))
				r.Println(output.FormatKeyValue("Go", report.Go))
				r.Println(output.FormatKeyValue("Adapters", strings.Join(report.Adapters, ", ")))
				return nil
			}
			muted := r.Styles().Muted
			r.Println(muted.Render("commit " + info.Commit + ", built " + info.Date + ", " + report.Go))
			r.Println(muted.Render("adapters: " + strings.Join(report.Adapters, ", ")))
			return nil
		},
	}
}
