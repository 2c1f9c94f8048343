package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"simflow/internal/manifest"
)

func newInitCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init <manifest>",
		Short: "Create job workspaces for every statepoint of a grid manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			sps, err := m.Expand()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				for _, sp := range sps {
					fmt.Fprintln(out, sp.Label())
				}
				fmt.Fprintf(out, "%d statepoints\n", len(sps))
				return nil
			}

			p, err := ctx.openProject()
			if err != nil {
				return err
			}
			defer ctx.close()
			created, existing, err := p.Init(cmd.Context(), sps)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Created %d jobs (%d already existed) in %s\n", created, existing, p.Jobs().Root())
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the statepoints without creating jobs")
	return cmd
}
