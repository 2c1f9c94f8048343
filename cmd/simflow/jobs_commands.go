package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"simflow/internal/job"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and maintain job workspaces",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsRenameMoleculeCommand(ctx))
	return jobsCmd
}

type jobView struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Workspace  string         `json:"workspace"`
	Statepoint job.Statepoint `json:"statepoint"`
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var molecule string
	var engine string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.openProject()
			if err != nil {
				return err
			}
			defer ctx.close()

			jobs, err := p.Jobs().Find(func(sp job.Statepoint) bool {
				return (molecule == "" || sp.Molecule == molecule) && (engine == "" || sp.Engine == engine)
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				views := make([]jobView, 0, len(jobs))
				for _, j := range jobs {
					views = append(views, jobView{ID: j.ID, Label: j.Statepoint.Label(), Workspace: j.Workspace, Statepoint: j.Statepoint})
				}
				return writeJSON(cmd, views)
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				sp := j.Statepoint
				rows = append(rows, []string{
					j.ShortID(), sp.Molecule, sp.Engine,
					formatNumber(sp.Temperature), formatNumber(sp.Pressure),
					fmt.Sprintf("%d", sp.Replica),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Molecule", "Engine", "T (K)", "P (kPa)", "Replica"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit jobs as JSON")
	cmd.Flags().StringVar(&molecule, "molecule", "", "Only jobs of this molecule")
	cmd.Flags().StringVar(&engine, "engine", "", "Only jobs of this engine")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job's statepoint, document, and recent dispatches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.openProject()
			if err != nil {
				return err
			}
			defer ctx.close()

			j, err := p.Jobs().Resolve(args[0])
			if err != nil {
				return err
			}
			values, err := j.Document().Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:       %s\n", j.ID)
			fmt.Fprintf(out, "Label:     %s\n", j.Statepoint.Label())
			fmt.Fprintf(out, "Workspace: %s\n", j.Workspace)

			fmt.Fprintln(out, "\nStatepoint:")
			encoded, err := json.MarshalIndent(j.Statepoint, "  ", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s\n", encoded)

			fmt.Fprintln(out, "\nDocument:")
			keys := values.Keys()
			if len(keys) == 0 {
				fmt.Fprintln(out, "  (empty)")
			}
			for _, key := range keys {
				fmt.Fprintf(out, "  %s = %v\n", key, values[key])
			}

			dispatches, err := p.Ledger().ForJob(cmd.Context(), j.ID, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "\nRecent dispatches:")
			if len(dispatches) == 0 {
				fmt.Fprintln(out, "  (none recorded)")
				return nil
			}
			fmt.Fprintln(out, renderDispatches(dispatches))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of dispatches to show")
	return cmd
}

func newJobsRenameMoleculeCommand(ctx *commandContext) *cobra.Command {
	var from, to string
	var engines []string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "rename-molecule",
		Short: "Re-key every job of a molecule under a new molecule name",
		RunE: func(cmd *cobra.Command, args []string) error {
			from = strings.TrimSpace(from)
			to = strings.TrimSpace(to)
			if from == "" || to == "" {
				return fmt.Errorf("--from and --to are required")
			}
			if from == to {
				return fmt.Errorf("--from and --to name the same molecule")
			}

			p, err := ctx.openProject()
			if err != nil {
				return err
			}
			defer ctx.close()
			if !dryRun {
				if err := p.Lock(); err != nil {
					return err
				}
				defer p.Unlock()
			}

			renames, err := p.RenameMolecule(cmd.Context(), from, to, engines, dryRun)
			out := cmd.OutOrStdout()
			verb := "Renamed"
			if dryRun {
				verb = "Would rename"
			}
			for _, r := range renames {
				fmt.Fprintf(out, "%s %s -> %s (%s)\n", verb, shortID(r.OldID), shortID(r.NewID), r.Label)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %d jobs\n", verb, len(renames))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Current molecule name")
	cmd.Flags().StringVar(&to, "to", "", "New molecule name")
	cmd.Flags().StringSliceVar(&engines, "engines", nil, "Restrict to these engines (default all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the renames without applying them")
	return cmd
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%g", v)
}
