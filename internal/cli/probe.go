package cli

import (
	"context"
	"fmt"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dataspace/adapters/gocommand"
	dataspacecommand "github.com/goliatone/go-dataspace/command"
	"github.com/goliatone/go-dataspace/core"
	"github.com/spf13/cobra"
)

func newProbeCommand(opts *RootOptions) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "probe <victim-consumer-id>",
		Short: "Replay a consumer's latest credentials from the prober",
		Long: `Load the victim consumer's latest successful transaction from the ledger and
replay its transfer id, agreement and token from the configured prober.
Fails when a probe expected to be rejected succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				return runProbes(cmd.Context(), a, opts, runID, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id recorded with the reports (generated when empty)")
	return cmd
}

func runProbes(ctx context.Context, a *app, opts *RootOptions, runID string, victimID string) error {
	collector := gocmd.NewResult[core.ProbeRun]()
	err := gocommand.Dispatch(gocmd.ContextWithResult(ctx, collector), dataspacecommand.RunProbesMessage{
		RunID:    runID,
		VictimID: victimID,
	})
	if err != nil {
		return err
	}
	run, _ := collector.Load()
	views := make([]probeView, 0, len(run.Reports))
	unexpected := 0
	for _, report := range run.Reports {
		views = append(views, newProbeView(run.VictimID, report))
		if report.Outcome == core.ProbeOutcomeUnexpectedSuccess {
			unexpected++
		}
	}
	if err := newPrinter(opts).probes(run.RunID, views); err != nil {
		return err
	}
	if unexpected > 0 {
		return fmt.Errorf("%d probe(s) reused %s's credentials successfully", unexpected, victimID)
	}
	return nil
}
