package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"simflow/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, engine inputs, and external programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderSectionHeader("Configuration", colorize))
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, ctx.configPath, colorize))

			fmt.Fprintln(out, renderSectionHeader("Preflight", colorize))
			results := preflight.RunAll(cfg)
			for _, r := range results {
				kind := statusOK
				switch {
				case !r.Passed && r.Optional:
					kind = statusWarn
				case !r.Passed:
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			fmt.Fprintln(out, renderSectionHeader("External programs", colorize))
			statuses := preflight.CheckSystemDeps(cfg)
			if len(statuses) == 0 {
				fmt.Fprintln(out, renderStatusLine("Engines", statusInfo, "no external commands configured", colorize))
			}
			missing := 0
			for _, s := range statuses {
				kind := statusOK
				detail := s.Command
				if !s.Available {
					detail = s.Detail
					if s.Optional {
						kind = statusWarn
					} else {
						kind = statusError
						missing++
					}
				}
				fmt.Fprintln(out, renderStatusLine(s.Name, kind, detail, colorize))
			}

			failed := len(preflight.Failed(results))
			if failed > 0 || missing > 0 {
				return fmt.Errorf("%d preflight checks failed, %d required programs missing", failed, missing)
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
}
