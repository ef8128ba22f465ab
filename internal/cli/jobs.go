package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"flight-deals/internal/service"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <flight-id>",
	Short: "Evaluate one flight and create or refresh its deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid flight id %q", args[0])
		}
		return getApp().EvaluateFlight(cmd.Context(), id)
	},
}

var analyzeRecentCmd = &cobra.Command{
	Use:   "analyze-recent",
	Short: "Evaluate every flight scraped within the recent window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AnalyzeRecent(cmd.Context())
	},
}

var reevaluateCmd = &cobra.Command{
	Use:   "reevaluate",
	Short: "Re-check every active deal against fresh statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Reevaluate(cmd.Context())
	},
}

// jobCommands expose the scheduled jobs as one-shot commands.
func jobCommands() []*cobra.Command {
	jobs := []struct {
		use, job, short string
	}{
		{"drain", service.JobDrain, "Send pending deal notifications"},
		{"sweep", service.JobSweep, "Delete expired deals and their notifications"},
		{"digest", service.JobDigest, "Send the weekly digest to weekly subscribers"},
		{"ingest", service.JobIngest, "Scrape the configured routes from the fare feed"},
	}

	cmds := make([]*cobra.Command, 0, len(jobs))
	for _, j := range jobs {
		job := j.job
		cmds = append(cmds, &cobra.Command{
			Use:   j.use,
			Short: j.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return getApp().RunJob(cmd.Context(), job)
			},
		})
	}
	return cmds
}

var ingestFileCmd = &cobra.Command{
	Use:   "ingest-file <path|->",
	Short: "Load scraped fares from a JSON-lines file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().IngestFile(cmd.Context(), args[0])
	},
}
