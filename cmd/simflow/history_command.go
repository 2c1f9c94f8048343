package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"simflow/internal/ledger"
	"simflow/internal/stage"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var jobPrefix string
	var limit int
	var failures int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded stage dispatches",
		Long: "Show recorded stage dispatches from the ledger. The ledger is a\n" +
			"history only; job progress is always derived from the workspace.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.openProject()
			if err != nil {
				return err
			}
			defer ctx.close()
			out := cmd.OutOrStdout()

			if failures > 0 {
				repeated, err := p.Ledger().RepeatedFailures(cmd.Context(), failures)
				if err != nil {
					return err
				}
				if len(repeated) == 0 {
					fmt.Fprintf(out, "No stage has failed %d times in a row\n", failures)
					return nil
				}
				rows := make([][]string, 0, len(repeated))
				for _, f := range repeated {
					rows = append(rows, []string{
						shortID(f.JobID), stage.Label(f.Stage), strconv.Itoa(f.Failures),
						formatTime(f.LastFailure), truncate(f.LastError, 60),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Job", "Stage", "Failures", "Last Failure", "Last Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			}

			var dispatches []ledger.Dispatch
			if jobPrefix != "" {
				j, err := p.Jobs().Resolve(jobPrefix)
				if err != nil {
					return err
				}
				dispatches, err = p.Ledger().ForJob(cmd.Context(), j.ID, limit)
				if err != nil {
					return err
				}
			} else {
				dispatches, err = p.Ledger().Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
			}
			if len(dispatches) == 0 {
				fmt.Fprintln(out, "No dispatches recorded")
				return nil
			}
			fmt.Fprintln(out, renderDispatches(dispatches))
			return nil
		},
	}

	cmd.Flags().StringVar(&jobPrefix, "job", "", "Restrict to one job (id or unique id prefix)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of dispatches to show")
	cmd.Flags().IntVar(&failures, "failures", 0, "List stages whose latest N or more dispatches all failed")
	return cmd
}

func renderDispatches(dispatches []ledger.Dispatch) string {
	rows := make([][]string, 0, len(dispatches))
	for _, d := range dispatches {
		detail := d.ErrorKind
		if d.ErrorMessage != "" {
			detail = truncate(d.ErrorKind+": "+d.ErrorMessage, 60)
		}
		rows = append(rows, []string{
			formatTime(d.StartedAt),
			shortID(d.PassID),
			shortID(d.JobID),
			stage.Label(d.Stage),
			string(d.Outcome),
			d.Duration().Round(time.Millisecond).String(),
			detail,
		})
	}
	return renderTable(
		[]string{"Started", "Pass", "Job", "Stage", "Outcome", "Took", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
