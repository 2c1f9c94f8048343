package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"simflow/internal/config"
	"simflow/internal/preflight"
	"simflow/internal/project"
	"simflow/internal/scheduler"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scheduling pass over every job",
		Long: "Run one scheduling pass: every job is evaluated and the first eligible\n" +
			"stage of each is dispatched. Passes are cheap to repeat; run this from\n" +
			"cron or a batch allocation to advance the project.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, ctx, func(runCtx context.Context, p *project.Project) error {
				report, err := p.Pass(runCtx)
				if jsonOutput {
					if encErr := writeJSON(cmd, newReportView(report)); encErr != nil {
						return encErr
					}
				} else {
					printPassSummary(cmd.OutOrStdout(), report)
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the pass report as JSON")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Repeat passes until every job is complete",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, ctx, func(runCtx context.Context, p *project.Project) error {
				out := cmd.OutOrStdout()
				err := p.Watch(runCtx, func(report scheduler.Report) {
					printPassSummary(out, report)
				})
				if errors.Is(err, context.Canceled) {
					fmt.Fprintln(out, "Interrupted; the next pass resumes from the workspace state")
					return nil
				}
				return err
			})
		},
	}
}

// withRunner opens the project, verifies preflight, and holds the project
// lock while fn runs. SIGINT and SIGTERM cancel the pass context.
func withRunner(cmd *cobra.Command, ctx *commandContext, fn func(context.Context, *project.Project) error) error {
	p, err := ctx.openProject()
	if err != nil {
		return err
	}
	defer ctx.close()

	if err := requirePreflight(ctx.config); err != nil {
		return err
	}
	if err := p.Lock(); err != nil {
		return err
	}
	defer p.Unlock()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(runCtx, p)
}

func requirePreflight(cfg *config.Config) error {
	failed := preflight.Failed(preflight.RunAll(cfg))
	if len(failed) == 0 {
		return nil
	}
	problems := make([]string, 0, len(failed))
	for _, r := range failed {
		problems = append(problems, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return fmt.Errorf("preflight failed (run `simflow check`): %s", strings.Join(problems, "; "))
}
