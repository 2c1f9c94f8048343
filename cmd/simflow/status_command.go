package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"simflow/internal/scheduler"
	"simflow/internal/stage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where every job stands without dispatching anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.openProject()
			if err != nil {
				return err
			}
			defer ctx.close()

			report, err := p.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, newReportView(report))
			}

			out := cmd.OutOrStdout()
			if len(report.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs; create some with `simflow init <manifest>`")
				return nil
			}
			rows := make([][]string, 0, len(report.Jobs))
			for _, jr := range report.Jobs {
				stageName := stage.Label(jr.Stage)
				if jr.Terminal {
					stageName = "-"
				}
				rows = append(rows, []string{
					shortID(jr.JobID),
					jr.Label,
					stageName,
					progress(jr),
					statusLabel(jr),
					truncate(jr.Blocker, 48),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"ID", "Job", "Stage", "Progress", "Status", "Waiting On"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintln(out)
			fmt.Fprintln(out, summarizeCounts(report))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the plan as JSON")
	return cmd
}

func statusLabel(jr scheduler.JobReport) string {
	if jr.Terminal {
		return "complete"
	}
	return strings.ReplaceAll(string(jr.Status), "_", " ")
}

func summarizeCounts(report scheduler.Report) string {
	counts := report.Counts()
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses)+1)
	parts = append(parts, fmt.Sprintf("%d complete", report.Terminal()))
	for _, s := range statuses {
		parts = append(parts, fmt.Sprintf("%d %s", counts[scheduler.Status(s)], strings.ReplaceAll(s, "_", " ")))
	}
	return fmt.Sprintf("%d jobs: %s", len(report.Jobs), strings.Join(parts, ", "))
}
